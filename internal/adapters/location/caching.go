package location

import (
	"context"
	"sync"
	"time"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/ports"
)

// CachingSource remembers the last fix of the wrapped source and serves it
// while it is younger than the request's MaxAgeMs. MaxAgeMs = 0 always asks
// the wrapped source.
type CachingSource struct {
	next ports.LocationSource
	now  func() time.Time

	mu   sync.Mutex
	last *domain.Fix
}

// NewCachingSource wraps next.
func NewCachingSource(next ports.LocationSource) *CachingSource {
	return &CachingSource{next: next, now: time.Now}
}

func (s *CachingSource) Name() string { return s.next.Name() }

func (s *CachingSource) RequestPosition(ctx context.Context, opts domain.AcquireOptions) (domain.Fix, error) {
	if opts.MaxAgeMs > 0 {
		s.mu.Lock()
		last := s.last
		s.mu.Unlock()
		if last != nil && last.Age(s.now()) <= opts.MaxAge() {
			return *last, nil
		}
	}

	fix, err := s.next.RequestPosition(ctx, opts)
	if err != nil {
		return domain.Fix{}, err
	}
	if fix.CapturedAt.IsZero() {
		fix.CapturedAt = s.now()
	}

	s.mu.Lock()
	s.last = &fix
	s.mu.Unlock()
	return fix, nil
}
