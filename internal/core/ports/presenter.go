package ports

import (
	"context"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
)

// MarkerPresenter draws markers on the external map engine.
type MarkerPresenter interface {
	PlaceMarker(ctx context.Context, marker domain.Marker) error
	RemoveMarker(ctx context.Context, id string) error
}

// MapSurface is the external map engine's view.
type MapSurface interface {
	ApplyView(ctx context.Context, view domain.ViewState) error
	ApplyStyle(ctx context.Context, style domain.MapStyle) error
}

// EventPublisher fans out component events to other systems.
type EventPublisher interface {
	PublishView(ctx context.Context, sessionID string, view domain.ViewState) error
	PublishFix(ctx context.Context, record domain.FixRecord) error
}
