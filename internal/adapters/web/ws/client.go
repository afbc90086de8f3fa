// Package ws connects browser map engines to their map sessions.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var (
	errClientClosed = errors.New("websocket client closed")
	errSlowClient   = errors.New("websocket client send buffer full")
)

// W3C GeolocationPositionError codes.
const (
	codePermissionDenied    = 1
	codePositionUnavailable = 2
	codeTimeout             = 3
)

// WSMessage is the envelope for both directions.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type geoRequest struct {
	ID                 string `json:"id"`
	EnableHighAccuracy bool   `json:"enableHighAccuracy"`
	Timeout            int64  `json:"timeout,omitempty"`
	MaximumAge         int64  `json:"maximumAge"`
}

type geoPosition struct {
	ID        string  `json:"id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Timestamp int64   `json:"timestamp"` // ms since epoch
}

type geoError struct {
	ID      string `json:"id"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type geoReply struct {
	fix domain.Fix
	err error
}

// Client is one browser connection. It draws markers, applies views and
// styles, and answers geolocation requests for its session.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending map[string]chan geoReply
}

func newClient(conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		logger:  logger,
		closed:  make(chan struct{}),
		pending: make(map[string]chan geoReply),
	}
}

func (c *Client) Name() string { return "browser" }

// RequestPosition asks the browser for a position and waits for the answer.
func (c *Client) RequestPosition(ctx context.Context, opts domain.AcquireOptions) (domain.Fix, error) {
	id := uuid.NewString()
	reply := make(chan geoReply, 1)

	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	err := c.enqueue("geolocation.request", geoRequest{
		ID:                 id,
		EnableHighAccuracy: opts.HighAccuracy,
		Timeout:            opts.TimeoutMs,
		MaximumAge:         opts.MaxAgeMs,
	})
	if err != nil {
		return domain.Fix{}, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}

	select {
	case <-ctx.Done():
		return domain.Fix{}, ctx.Err()
	case <-c.closed:
		return domain.Fix{}, fmt.Errorf("%w: browser disconnected", domain.ErrUnavailable)
	case r := <-reply:
		return r.fix, r.err
	}
}

// resolve hands a browser answer to the waiting request. Unknown ids are
// answers to requests that already gave up.
func (c *Client) resolve(id string, r geoReply) bool {
	c.mu.Lock()
	ch, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- r:
		return true
	default:
		return false
	}
}

func (c *Client) PlaceMarker(ctx context.Context, marker domain.Marker) error {
	return c.enqueue("marker.place", marker)
}

func (c *Client) RemoveMarker(ctx context.Context, id string) error {
	return c.enqueue("marker.remove", map[string]string{"id": id})
}

func (c *Client) ApplyView(ctx context.Context, view domain.ViewState) error {
	return c.enqueue("view", view)
}

func (c *Client) ApplyStyle(ctx context.Context, style domain.MapStyle) error {
	return c.enqueue("style", style)
}

func (c *Client) sendError(err error) {
	_ = c.enqueue("error", map[string]string{"message": err.Error()})
}

// enqueue never blocks; callers may hold a component lock.
func (c *Client) enqueue(msgType string, payload interface{}) error {
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: payload})
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return errClientClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSlowClient
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write failed", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// browserError maps a W3C geolocation error to the location sentinels.
func browserError(code int, message string) error {
	switch code {
	case codePermissionDenied:
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, message)
	case codeTimeout:
		return fmt.Errorf("%w: %s", domain.ErrTimeout, message)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnavailable, message)
	}
}

func (p geoPosition) fix() domain.Fix {
	captured := time.Now()
	if p.Timestamp > 0 {
		captured = time.UnixMilli(p.Timestamp)
	}
	return domain.Fix{
		Position:   domain.GeoPosition{Latitude: p.Latitude, Longitude: p.Longitude},
		Accuracy:   p.Accuracy,
		Source:     "browser",
		CapturedAt: captured,
	}
}
