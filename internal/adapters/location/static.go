// Package location provides server-side location sources.
package location

import (
	"context"
	"time"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
)

// StaticSource implements ports.LocationSource with a fixed location.
type StaticSource struct {
	Lat float64
	Lng float64
}

// NewStaticSource creates a source that always returns the same location.
func NewStaticSource(lat, lng float64) *StaticSource {
	return &StaticSource{
		Lat: lat,
		Lng: lng,
	}
}

func (s *StaticSource) Name() string { return "static" }

// RequestPosition returns the fixed location.
func (s *StaticSource) RequestPosition(ctx context.Context, _ domain.AcquireOptions) (domain.Fix, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fix{}, err
	}
	return domain.Fix{
		Position: domain.GeoPosition{
			Latitude:  s.Lat,
			Longitude: s.Lng,
		},
		Source:     s.Name(),
		CapturedAt: time.Now(),
	}, nil
}
