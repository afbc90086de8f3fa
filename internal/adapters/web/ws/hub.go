package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lcalzada-xor/geoview/internal/adapters/location"
	"github.com/lcalzada-xor/geoview/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/services/mapcomponent"
	"github.com/lcalzada-xor/geoview/internal/core/services/session"
)

// Hub upgrades browser connections and gives each one a map session. The
// session lives exactly as long as the connection.
type Hub struct {
	sessions *session.Manager
	sources  location.Factory
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

// NewHub creates a hub. With no allowed origins only same-host pages may connect.
func NewHub(sessions *session.Manager, sources location.Factory, allowedOrigins []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		sessions: sessions,
		sources:  sources,
		logger:   logger,
		clients:  make(map[string]*Client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins, logger),
	}
	return h
}

func originChecker(allowed []string, logger *slog.Logger) func(r *http.Request) bool {
	if logger == nil {
		logger = slog.Default()
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if len(allowed) == 0 {
			return origin == "http://"+r.Host || origin == "https://"+r.Host
		}
		for _, a := range allowed {
			if a == "*" || origin == a {
				return true
			}
		}
		logger.Warn("websocket origin rejected", "origin", origin)
		return false
	}
}

// Count returns the number of connected browsers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWebSocket serves GET /ws. ?session= resumes the saved view of an
// earlier session with that id.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(conn, h.logger)
	defer client.close()

	sources := h.sources
	if sources == nil {
		sources = location.NewFactory(nil)
	}
	ctx := context.Background()
	comp, err := h.sessions.Create(ctx, session.Binding{
		ID:        r.URL.Query().Get("session"),
		Source:    sources(middleware.ClientIP(r), client),
		Presenter: client,
		Surface:   client,
	})
	if err != nil {
		// No writer runs yet, so answer inline.
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(WSMessage{Type: "error", Payload: map[string]string{"message": err.Error()}})
		return
	}
	id := comp.SessionID()
	client.logger = h.logger.With("session", id)
	go client.writePump()

	h.mu.Lock()
	h.clients[id] = client
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
		if err := h.sessions.Destroy(ctx, id); err != nil {
			h.logger.Debug("session already gone", "session", id, "error", err)
		}
		client.logger.Info("websocket disconnected")
	}()

	_ = client.enqueue("session", map[string]interface{}{
		"id":     id,
		"styles": comp.Styles(),
	})
	if _, err := comp.Start(ctx); err != nil {
		client.sendError(err)
	}
	client.logger.Info("websocket connected", "remote", middleware.ClientIP(r))

	h.readLoop(ctx, client, comp)
}

func (h *Hub) readLoop(ctx context.Context, c *Client, comp *mapcomponent.Component) {
	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(fmt.Errorf("malformed message: %w", err))
			continue
		}
		if err := h.dispatch(ctx, c, comp, msg); err != nil {
			c.sendError(err)
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Client, comp *mapcomponent.Component, msg inbound) error {
	switch msg.Type {
	case "geolocation.position":
		var p geoPosition
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("geolocation.position: %w", err)
		}
		if !c.resolve(p.ID, geoReply{fix: p.fix()}) {
			c.logger.Debug("late geolocation answer ignored", "request", p.ID)
		}
	case "geolocation.error":
		var e geoError
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			return fmt.Errorf("geolocation.error: %w", err)
		}
		if !c.resolve(e.ID, geoReply{err: browserError(e.Code, e.Message)}) {
			c.logger.Debug("late geolocation error ignored", "request", e.ID)
		}
	case "locate":
		_, err := comp.Locate()
		return err
	case "recenter.user":
		return comp.RecenterToUser(ctx)
	case "style.select":
		var body struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(msg.Payload, &body); err != nil {
			return fmt.Errorf("style.select: %w", err)
		}
		_, err := comp.SelectStyle(ctx, body.Name)
		return err
	case "search":
		var body struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(msg.Payload, &body); err != nil {
			return fmt.Errorf("search: %w", err)
		}
		results, err := comp.Search(ctx, body.Query)
		if err != nil {
			return err
		}
		return c.enqueue("search.results", map[string]interface{}{"query": body.Query, "results": results})
	case "search.select":
		var result domain.SearchResult
		if err := json.Unmarshal(msg.Payload, &result); err != nil {
			return fmt.Errorf("search.select: %w", err)
		}
		return comp.SelectSearchResult(ctx, result)
	default:
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	return nil
}

// CloseAll disconnects every browser. Their sessions are destroyed as the
// read loops exit.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
