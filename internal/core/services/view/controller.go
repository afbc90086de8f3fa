// Package view owns a map's center, zoom and active style.
package view

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/ports"
)

// Controller is the only writer of a map's ViewState.
// Every operation except Initialize is rejected until Initialize succeeds.
type Controller struct {
	surface ports.MapSurface
	styles  []domain.MapStyle
	logger  *slog.Logger

	mu     sync.RWMutex
	ready  bool
	view   domain.ViewState
	active domain.MapStyle
}

// NewController creates a controller bound to surface, which may be nil for
// headless sessions. The first style, if any, is active initially.
func NewController(surface ports.MapSurface, styles []domain.MapStyle, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		surface: surface,
		styles:  append([]domain.MapStyle(nil), styles...),
		logger:  logger,
	}
	if len(c.styles) > 0 {
		c.active = c.styles[0]
	}
	return c
}

// Initialize constructs the view with its default center and zoom.
func (c *Controller) Initialize(ctx context.Context, center domain.ProjectedPoint, zoom float64) (domain.ViewState, error) {
	if err := validate(center, zoom); err != nil {
		return domain.ViewState{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready {
		return c.view, domain.ErrAlreadyInitialized
	}
	c.view = domain.ViewState{Center: center, ZoomLevel: domain.ClampZoom(zoom)}
	c.ready = true

	c.apply(ctx, c.view)
	if c.active.StyleID != "" {
		c.applyStyle(ctx, c.active)
	}
	return c.view, nil
}

// Recenter overwrites center and zoom. There is no animated transition.
func (c *Controller) Recenter(ctx context.Context, point domain.ProjectedPoint, zoom float64) error {
	if err := validate(point, zoom); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return domain.ErrNotInitialized
	}
	c.view = domain.ViewState{Center: point, ZoomLevel: domain.ClampZoom(zoom)}
	c.apply(ctx, c.view)
	return nil
}

// CurrentView returns a snapshot of the view. Before Initialize it is the zero value.
func (c *Controller) CurrentView() domain.ViewState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Ready reports whether Initialize has completed.
func (c *Controller) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Styles returns the selectable styles.
func (c *Controller) Styles() []domain.MapStyle {
	return append([]domain.MapStyle(nil), c.styles...)
}

// ActiveStyle returns the style last forwarded to the surface.
func (c *Controller) ActiveStyle() domain.MapStyle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// SelectStyle forwards the named style to the surface unmodified.
func (c *Controller) SelectStyle(ctx context.Context, name string) (domain.MapStyle, error) {
	style, ok := c.lookup(name)
	if !ok {
		return domain.MapStyle{}, fmt.Errorf("%w: %q", domain.ErrUnknownStyle, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return domain.MapStyle{}, domain.ErrNotInitialized
	}
	c.active = style
	c.applyStyle(ctx, style)
	return style, nil
}

func (c *Controller) lookup(name string) (domain.MapStyle, bool) {
	for _, s := range c.styles {
		if s.Name == name {
			return s, true
		}
	}
	return domain.MapStyle{}, false
}

// apply pushes the view to the surface. Surface failures are logged; the
// controller's state stays authoritative and clients resync on reconnect.
func (c *Controller) apply(ctx context.Context, v domain.ViewState) {
	if c.surface == nil {
		return
	}
	if err := c.surface.ApplyView(ctx, v); err != nil {
		c.logger.Warn("map surface rejected view", "error", err)
	}
}

func (c *Controller) applyStyle(ctx context.Context, s domain.MapStyle) {
	if c.surface == nil {
		return
	}
	if err := c.surface.ApplyStyle(ctx, s); err != nil {
		c.logger.Warn("map surface rejected style", "style", s.Name, "error", err)
	}
}

func validate(p domain.ProjectedPoint, zoom float64) error {
	if !p.Finite() || math.IsNaN(zoom) || math.IsInf(zoom, 0) {
		return domain.ErrInvalidView
	}
	return nil
}
