// Package mapcomponent wires location acquisition, projection, the view
// controller and the marker presenter into one map instance.
package mapcomponent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/ports"
	"github.com/lcalzada-xor/geoview/internal/core/services/acquire"
	"github.com/lcalzada-xor/geoview/internal/core/services/view"
	"github.com/lcalzada-xor/geoview/internal/geo"
)

// ErrNoGeocoder indicates the component was built without a search backend.
var ErrNoGeocoder = errors.New("geocoding not configured")

// Config holds per-component behaviour.
type Config struct {
	SessionID       string
	DefaultView     domain.ViewState
	StreetZoom      float64
	SearchZoom      float64
	Acquire         domain.AcquireOptions
	MarkerPolicy    domain.MarkerPolicy
	UserMarkerLabel string
	UserMarkerIcon  string
	SearchLimit     int
}

// DefaultConfig returns a whole-world start, street zoom on first fix and
// replace-in-place markers.
func DefaultConfig() Config {
	return Config{
		DefaultView:     domain.DefaultView(),
		StreetZoom:      domain.StreetZoom,
		SearchZoom:      domain.SearchZoom,
		Acquire:         domain.AcquireOptions{HighAccuracy: true, TimeoutMs: 10000},
		MarkerPolicy:    domain.MarkerReplace,
		UserMarkerLabel: "You are here",
		UserMarkerIcon:  "user-location",
		SearchLimit:     5,
	}
}

// Deps are the collaborators of a Component. Only Acquirer and View are required.
type Deps struct {
	Acquirer  *acquire.Acquirer
	View      *view.Controller
	Presenter ports.MarkerPresenter
	Geocoder  ports.Geocoder
	Recorder  ports.FixRecorder
	Publisher ports.EventPublisher
	Logger    *slog.Logger
}

// Component is one live map. All state changes happen under mu, so a fix
// arriving after Destroy cannot touch the view or the markers.
type Component struct {
	cfg  Config
	deps Deps

	lifetime context.Context
	stop     context.CancelFunc
	newID    func() string

	mu             sync.Mutex
	alive          bool
	userLocation   *domain.GeoPosition
	userMarkerID   string
	searchMarkerID string
	markers        []domain.Marker
	pending        map[*acquire.Request]struct{}
}

// New creates a component. It does nothing until Start or Locate is called.
func New(cfg Config, deps Deps) *Component {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("session", cfg.SessionID)

	lifetime, stop := context.WithCancel(context.Background())
	return &Component{
		cfg:      cfg,
		deps:     deps,
		lifetime: lifetime,
		stop:     stop,
		newID:    func() string { return uuid.NewString() },
		alive:    true,
		pending:  make(map[*acquire.Request]struct{}),
	}
}

// SessionID identifies the component.
func (c *Component) SessionID() string {
	return c.cfg.SessionID
}

// Start initializes the view with the default world view and asks for the
// user's location. The returned request completes after the fix was applied.
func (c *Component) Start(ctx context.Context) (*acquire.Request, error) {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return nil, domain.ErrDestroyed
	}
	def := c.cfg.DefaultView
	if _, err := c.deps.View.Initialize(ctx, def.Center, def.ZoomLevel); err != nil && !errors.Is(err, domain.ErrAlreadyInitialized) {
		c.mu.Unlock()
		return nil, fmt.Errorf("initialize view: %w", err)
	}
	c.mu.Unlock()

	return c.Locate()
}

// Locate requests a one-shot fix. It returns immediately; the fix is applied
// by the completion callback, which is a no-op once the component is destroyed.
func (c *Component) Locate() (*acquire.Request, error) {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return nil, domain.ErrDestroyed
	}
	req := c.deps.Acquirer.AcquireOnce(c.lifetime, c.cfg.Acquire)
	c.pending[req] = struct{}{}
	c.mu.Unlock()

	req.OnComplete(func(fix domain.Fix, err error) {
		c.handleFix(req, fix, err)
	})
	return req, nil
}

func (c *Component) handleFix(req *acquire.Request, fix domain.Fix, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, req)

	if !c.alive {
		c.deps.Logger.Debug("discarding location result for destroyed component")
		return
	}

	record := domain.FixRecord{
		SessionID:  c.cfg.SessionID,
		Outcome:    domain.Outcome(err),
		Source:     fix.Source,
		AcquiredAt: time.Now(),
	}
	defer func() { c.record(record) }()

	if err != nil {
		record.Error = err.Error()
		c.deps.Logger.Warn("could not acquire user location, keeping current view", "outcome", record.Outcome, "error", err)
		return
	}

	record.Latitude = fix.Position.Latitude
	record.Longitude = fix.Position.Longitude
	record.Accuracy = fix.Accuracy
	record.AcquiredAt = fix.CapturedAt

	point, perr := geo.ProjectClamped(fix.Position)
	if perr != nil {
		record.Outcome = domain.OutcomeUnavailable
		record.Error = perr.Error()
		c.deps.Logger.Warn("location fix cannot be projected", "error", perr)
		return
	}

	pos := fix.Position
	c.userLocation = &pos

	if err := c.recenterLocked(c.lifetime, point, c.cfg.StreetZoom, "fix"); err != nil {
		c.deps.Logger.Warn("could not recenter on user location", "error", err)
		return
	}

	id := c.newID()
	if c.cfg.MarkerPolicy == domain.MarkerReplace && c.userMarkerID != "" {
		c.removeMarkerLocked(c.lifetime, c.userMarkerID)
	}
	c.userMarkerID = id
	c.placeMarkerLocked(c.lifetime, domain.Marker{
		ID:    id,
		Point: point,
		Label: c.cfg.UserMarkerLabel,
		Icon:  c.cfg.UserMarkerIcon,
		Kind:  domain.MarkerUser,
	})
}

func (c *Component) record(r domain.FixRecord) {
	if c.deps.Recorder != nil {
		c.deps.Recorder.Record(r)
	}
	if c.deps.Publisher != nil {
		if err := c.deps.Publisher.PublishFix(c.lifetime, r); err != nil {
			c.deps.Logger.Debug("publish fix failed", "error", err)
		}
	}
}
