// Package session keeps one map component per connected client.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/ports"
	"github.com/lcalzada-xor/geoview/internal/core/services/acquire"
	"github.com/lcalzada-xor/geoview/internal/core/services/mapcomponent"
	"github.com/lcalzada-xor/geoview/internal/core/services/view"
	"github.com/lcalzada-xor/geoview/internal/telemetry"
)

var (
	// ErrSessionExists is returned when a caller-chosen id is already live.
	ErrSessionExists = errors.New("session already exists")
	// ErrInvalidSessionID rejects ids that are not 1-64 of [A-Za-z0-9_-].
	ErrInvalidSessionID = errors.New("invalid session id")
)

// Session ids are used as single NATS subject tokens and URL path segments.
var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Options are shared by every session the manager creates.
type Options struct {
	Component mapcomponent.Config
	Styles    []domain.MapStyle
	Store     ports.HistoryStore
	Recorder  ports.FixRecorder
	Publisher ports.EventPublisher
	Geocoder  ports.Geocoder
	Logger    *slog.Logger
}

// Binding connects a new session to its client. Nil ports are allowed; a
// headless API session has no presenter or surface.
type Binding struct {
	ID        string
	Source    ports.LocationSource
	Presenter ports.MarkerPresenter
	Surface   ports.MapSurface
}

// Manager handles the lifecycle of map sessions.
type Manager struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*mapcomponent.Component
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Styles) == 0 {
		opts.Styles = domain.DefaultStyles()
	}
	return &Manager{
		opts:     opts,
		sessions: make(map[string]*mapcomponent.Component),
	}
}

// Create builds a component for b. A view saved under the same id by an
// earlier session becomes the starting view. The component is not started.
func (m *Manager) Create(ctx context.Context, b Binding) (*mapcomponent.Component, error) {
	id := b.ID
	if id == "" {
		id = uuid.NewString()
	}
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	cfg := m.opts.Component
	cfg.SessionID = id
	if m.opts.Store != nil {
		saved, err := m.opts.Store.LoadView(ctx, id)
		if err != nil {
			m.opts.Logger.Warn("could not load saved view", "session", id, "error", err)
		} else if saved != nil {
			cfg.DefaultView = *saved
		}
	}

	logger := m.opts.Logger.With("session", id)
	comp := mapcomponent.New(cfg, mapcomponent.Deps{
		Acquirer:  acquire.NewAcquirer(b.Source, logger),
		View:      view.NewController(b.Surface, m.opts.Styles, logger),
		Presenter: b.Presenter,
		Geocoder:  m.opts.Geocoder,
		Recorder:  m.opts.Recorder,
		Publisher: m.opts.Publisher,
		Logger:    m.opts.Logger,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		comp.Destroy()
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	m.sessions[id] = comp
	telemetry.ActiveSessions.Inc()
	m.opts.Logger.Info("session created", "session", id)
	return comp, nil
}

// Get returns the live component for id.
func (m *Manager) Get(id string) (*mapcomponent.Component, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	comp, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return comp, nil
}

// List returns the ids of all live sessions, sorted.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Destroy snapshots the session's view and tears the component down.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	m.mu.Lock()
	comp, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}

	m.snapshot(ctx, id, comp)
	comp.Destroy()
	telemetry.ActiveSessions.Dec()
	m.opts.Logger.Info("session destroyed", "session", id)
	return nil
}

// Close destroys every live session.
func (m *Manager) Close(ctx context.Context) {
	for _, id := range m.List() {
		if err := m.Destroy(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			m.opts.Logger.Warn("destroy on close failed", "session", id, "error", err)
		}
	}
}

// History returns persisted fix records for a session, newest first.
func (m *Manager) History(ctx context.Context, id string, limit int) ([]domain.FixRecord, error) {
	if m.opts.Store == nil {
		return nil, nil
	}
	return m.opts.Store.ListFixes(ctx, id, limit)
}

func (m *Manager) snapshot(ctx context.Context, id string, comp *mapcomponent.Component) {
	if m.opts.Store == nil || !comp.Ready() {
		return
	}
	if err := m.opts.Store.SaveView(ctx, id, comp.View()); err != nil {
		m.opts.Logger.Warn("could not save view snapshot", "session", id, "error", err)
	}
}
