package ports

import (
	"context"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
)

// LocationSource produces a single position fix.
// Implementations must honour ctx cancellation and return one of the
// domain location sentinels (possibly wrapped) on failure.
type LocationSource interface {
	Name() string
	RequestPosition(ctx context.Context, opts domain.AcquireOptions) (domain.Fix, error)
}

// Geocoder resolves free text to projected places.
type Geocoder interface {
	Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
}
