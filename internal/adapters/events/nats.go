// Package events publishes map component events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
)

const (
	SubjectViewChanged = "geoview.view.changed"
	SubjectFixAcquired = "geoview.fix.acquired"
)

// ViewEvent is the payload published on SubjectViewChanged.
type ViewEvent struct {
	SessionID string           `json:"session_id"`
	View      domain.ViewState `json:"view"`
	At        time.Time        `json:"at"`
}

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher implements ports.EventPublisher over a core NATS connection.
type Publisher struct {
	conn conn
	now  func() time.Time
}

// NewPublisher connects to NATS.
func NewPublisher(url string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("geoview"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: nc, now: time.Now}, nil
}

// PublishView announces a view change. Subjects are suffixed with the session id.
func (p *Publisher) PublishView(ctx context.Context, sessionID string, view domain.ViewState) error {
	data, err := json.Marshal(ViewEvent{SessionID: sessionID, View: view, At: p.now()})
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectViewChanged+"."+sessionID, data)
}

// PublishFix announces an acquisition attempt, successful or not.
func (p *Publisher) PublishFix(ctx context.Context, record domain.FixRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectFixAcquired+"."+record.SessionID, data)
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
