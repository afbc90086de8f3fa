package location

import (
	"context"
	"errors"
	"strings"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/ports"
)

// Chain tries sources in order and falls through only on ErrUnavailable.
// A permission denial or timeout from an earlier source is final, so a user
// who refused browser geolocation is not silently located another way.
type Chain struct {
	sources []ports.LocationSource
}

// NewChain skips nil sources.
func NewChain(sources ...ports.LocationSource) *Chain {
	c := &Chain{}
	for _, s := range sources {
		if s != nil {
			c.sources = append(c.sources, s)
		}
	}
	return c
}

func (c *Chain) Name() string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, ">")
}

func (c *Chain) RequestPosition(ctx context.Context, opts domain.AcquireOptions) (domain.Fix, error) {
	var errs []error
	for _, s := range c.sources {
		fix, err := s.RequestPosition(ctx, opts)
		if err == nil {
			if fix.Source == "" {
				fix.Source = s.Name()
			}
			return fix, nil
		}
		if !errors.Is(err, domain.ErrUnavailable) {
			return domain.Fix{}, err
		}
		errs = append(errs, &domain.AcquireError{Source: s.Name(), Err: err})
	}
	if len(errs) == 0 {
		return domain.Fix{}, domain.ErrUnavailable
	}
	return domain.Fix{}, errors.Join(errs...)
}
