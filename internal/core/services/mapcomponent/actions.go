package mapcomponent

import (
	"context"
	"fmt"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/ports"
	"github.com/lcalzada-xor/geoview/internal/core/services/acquire"
	"github.com/lcalzada-xor/geoview/internal/geo"
	"github.com/lcalzada-xor/geoview/internal/telemetry"
)

// View returns the current view snapshot.
func (c *Component) View() domain.ViewState {
	return c.deps.View.CurrentView()
}

// Ready reports whether the view has been initialized.
func (c *Component) Ready() bool {
	return c.deps.View.Ready()
}

// UserLocation returns the last known user position, if any.
func (c *Component) UserLocation() (domain.GeoPosition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userLocation == nil {
		return domain.GeoPosition{}, false
	}
	return *c.userLocation, true
}

// Markers returns the markers currently shown, oldest first.
func (c *Component) Markers() []domain.Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Marker(nil), c.markers...)
}

// Styles lists the selectable map styles.
func (c *Component) Styles() []domain.MapStyle {
	return c.deps.View.Styles()
}

// ActiveStyle returns the selected map style.
func (c *Component) ActiveStyle() domain.MapStyle {
	return c.deps.View.ActiveStyle()
}

// Recenter moves the view to an explicit point.
func (c *Component) Recenter(ctx context.Context, point domain.ProjectedPoint, zoom float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return domain.ErrDestroyed
	}
	return c.recenterLocked(ctx, point, zoom, "api")
}

// RecenterToUser moves the view back to the last known user location.
func (c *Component) RecenterToUser(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return domain.ErrDestroyed
	}
	if c.userLocation == nil {
		return domain.ErrNoUserLocation
	}
	point, err := geo.ProjectClamped(*c.userLocation)
	if err != nil {
		return err
	}
	return c.recenterLocked(ctx, point, c.cfg.StreetZoom, "user")
}

// SelectStyle forwards a style choice to the map engine.
func (c *Component) SelectStyle(ctx context.Context, name string) (domain.MapStyle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return domain.MapStyle{}, domain.ErrDestroyed
	}
	return c.deps.View.SelectStyle(ctx, name)
}

// Search resolves a free-text query through the session's geocoder.
func (c *Component) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	return Geocode(ctx, c.deps.Geocoder, query, c.cfg.SearchLimit)
}

// Geocode runs one search against g and counts its outcome. An empty result
// is a non-nil empty slice.
func Geocode(ctx context.Context, g ports.Geocoder, query string, limit int) ([]domain.SearchResult, error) {
	if g == nil {
		return nil, ErrNoGeocoder
	}
	results, err := g.Search(ctx, query, limit)
	if err != nil {
		telemetry.GeocodeQueries.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if len(results) == 0 {
		telemetry.GeocodeQueries.WithLabelValues("empty").Inc()
		return []domain.SearchResult{}, nil
	}
	telemetry.GeocodeQueries.WithLabelValues("ok").Inc()
	return results, nil
}

// SelectSearchResult recenters on a chosen search hit and labels it.
// The point is used as given; the provider already projected it.
func (c *Component) SelectSearchResult(ctx context.Context, result domain.SearchResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.alive {
		return domain.ErrDestroyed
	}
	if err := c.recenterLocked(ctx, result.Point, c.cfg.SearchZoom, "search"); err != nil {
		return err
	}

	if c.cfg.MarkerPolicy == domain.MarkerReplace && c.searchMarkerID != "" {
		c.removeMarkerLocked(ctx, c.searchMarkerID)
	}
	c.searchMarkerID = c.newID()
	c.placeMarkerLocked(ctx, domain.Marker{
		ID:    c.searchMarkerID,
		Point: result.Point,
		Label: result.DisplayName,
		Kind:  domain.MarkerSearch,
	})
	return nil
}

// Destroy tears the component down. Pending location requests are canceled
// and their callbacks become no-ops. Calling Destroy twice is harmless.
func (c *Component) Destroy() {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.alive = false
	c.userLocation = nil
	pending := c.pending
	c.pending = make(map[*acquire.Request]struct{})
	c.mu.Unlock()

	c.stop()
	for req := range pending {
		req.Cancel()
	}
	c.deps.Logger.Debug("map component destroyed", "pending", len(pending))
}

func (c *Component) recenterLocked(ctx context.Context, point domain.ProjectedPoint, zoom float64, trigger string) error {
	if err := c.deps.View.Recenter(ctx, point, zoom); err != nil {
		return err
	}
	telemetry.ViewUpdates.WithLabelValues(trigger).Inc()
	if c.deps.Publisher != nil {
		if err := c.deps.Publisher.PublishView(ctx, c.cfg.SessionID, c.deps.View.CurrentView()); err != nil {
			c.deps.Logger.Debug("publish view failed", "error", err)
		}
	}
	return nil
}

func (c *Component) placeMarkerLocked(ctx context.Context, m domain.Marker) {
	c.markers = append(c.markers, m)
	telemetry.MarkersPlaced.WithLabelValues(string(m.Kind)).Inc()
	if c.deps.Presenter == nil {
		return
	}
	if err := c.deps.Presenter.PlaceMarker(ctx, m); err != nil {
		c.deps.Logger.Warn("marker presenter failed", "marker", m.ID, "error", err)
	}
}

func (c *Component) removeMarkerLocked(ctx context.Context, id string) {
	for i, m := range c.markers {
		if m.ID == id {
			c.markers = append(c.markers[:i], c.markers[i+1:]...)
			break
		}
	}
	if c.deps.Presenter == nil {
		return
	}
	if err := c.deps.Presenter.RemoveMarker(ctx, id); err != nil {
		c.deps.Logger.Warn("marker removal failed", "marker", id, "error", err)
	}
}
