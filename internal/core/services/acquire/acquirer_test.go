package acquire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcSource adapts a function to ports.LocationSource
type funcSource struct {
	name string
	fn   func(ctx context.Context, opts domain.AcquireOptions) (domain.Fix, error)
}

func (s *funcSource) Name() string { return s.name }

func (s *funcSource) RequestPosition(ctx context.Context, opts domain.AcquireOptions) (domain.Fix, error) {
	return s.fn(ctx, opts)
}

func fixedSource(lat, lng float64) *funcSource {
	return &funcSource{name: "fixed", fn: func(ctx context.Context, _ domain.AcquireOptions) (domain.Fix, error) {
		return domain.Fix{Position: domain.GeoPosition{Latitude: lat, Longitude: lng}}, nil
	}}
}

// blockingSource waits for ctx to end, like a location service that never answers
func blockingSource() *funcSource {
	return &funcSource{name: "blocking", fn: func(ctx context.Context, _ domain.AcquireOptions) (domain.Fix, error) {
		<-ctx.Done()
		return domain.Fix{}, ctx.Err()
	}}
}

func waitFor(t *testing.T, req *Request) (domain.Fix, error) {
	t.Helper()
	select {
	case <-req.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("request did not complete")
	}
	return req.Result()
}

func TestAcquireOnce_Success(t *testing.T) {
	a := NewAcquirer(fixedSource(37.7749, -122.4194), nil)

	fix, err := waitFor(t, a.AcquireOnce(context.Background(), domain.AcquireOptions{TimeoutMs: 1000}))
	require.NoError(t, err)
	assert.Equal(t, 37.7749, fix.Position.Latitude)
	assert.Equal(t, -122.4194, fix.Position.Longitude)
	assert.Equal(t, "fixed", fix.Source)
	assert.False(t, fix.CapturedAt.IsZero())
}

func TestAcquireOnce_DoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	src := &funcSource{name: "slow", fn: func(ctx context.Context, _ domain.AcquireOptions) (domain.Fix, error) {
		<-release
		return domain.Fix{Position: domain.GeoPosition{Latitude: 1, Longitude: 2}}, nil
	}}
	a := NewAcquirer(src, nil)

	start := time.Now()
	req := a.AcquireOnce(context.Background(), domain.AcquireOptions{})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	select {
	case <-req.Done():
		t.Fatal("request completed before the source answered")
	default:
	}

	close(release)
	_, err := waitFor(t, req)
	assert.NoError(t, err)
}

func TestAcquireOnce_Timeout(t *testing.T) {
	a := NewAcquirer(blockingSource(), nil)

	start := time.Now()
	_, err := waitFor(t, a.AcquireOnce(context.Background(), domain.AcquireOptions{TimeoutMs: 50}))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	var acqErr *domain.AcquireError
	require.True(t, errors.As(err, &acqErr))
	assert.Equal(t, "blocking", acqErr.Source)
}

func TestAcquireOnce_Cancel(t *testing.T) {
	a := NewAcquirer(blockingSource(), nil)

	req := a.AcquireOnce(context.Background(), domain.AcquireOptions{})
	req.Cancel()

	_, err := waitFor(t, req)
	assert.ErrorIs(t, err, domain.ErrCanceled)
}

func TestAcquireOnce_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		srcErr  error
		wantErr error
	}{
		{"permission denied", domain.ErrPermissionDenied, domain.ErrPermissionDenied},
		{"unavailable", domain.ErrUnavailable, domain.ErrUnavailable},
		{"source timeout", domain.ErrTimeout, domain.ErrTimeout},
		{"unknown error", errors.New("gps chip on fire"), domain.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &funcSource{name: "failing", fn: func(context.Context, domain.AcquireOptions) (domain.Fix, error) {
				return domain.Fix{}, tt.srcErr
			}}
			_, err := waitFor(t, NewAcquirer(src, nil).AcquireOnce(context.Background(), domain.AcquireOptions{TimeoutMs: 500}))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAcquireOnce_NilSource(t *testing.T) {
	_, err := waitFor(t, NewAcquirer(nil, nil).AcquireOnce(context.Background(), domain.AcquireOptions{}))
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestAcquireOnce_RejectsInvalidPosition(t *testing.T) {
	_, err := waitFor(t, NewAcquirer(fixedSource(123, 0), nil).AcquireOnce(context.Background(), domain.AcquireOptions{}))
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestAcquireOnce_RejectsStaleFix(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &funcSource{name: "cached", fn: func(context.Context, domain.AcquireOptions) (domain.Fix, error) {
		return domain.Fix{
			Position:   domain.GeoPosition{Latitude: 10, Longitude: 10},
			CapturedAt: now.Add(-time.Minute),
		}, nil
	}}
	a := NewAcquirer(src, nil)
	a.now = func() time.Time { return now }

	_, err := waitFor(t, a.AcquireOnce(context.Background(), domain.AcquireOptions{MaxAgeMs: 1000}))
	assert.ErrorIs(t, err, domain.ErrUnavailable)

	fix, err := waitFor(t, a.AcquireOnce(context.Background(), domain.AcquireOptions{MaxAgeMs: 120000}))
	require.NoError(t, err)
	assert.Equal(t, 10.0, fix.Position.Latitude)
}

func TestAcquireOnce_ForwardsOptions(t *testing.T) {
	var got domain.AcquireOptions
	src := &funcSource{name: "spy", fn: func(_ context.Context, opts domain.AcquireOptions) (domain.Fix, error) {
		got = opts
		return domain.Fix{Position: domain.GeoPosition{}}, nil
	}}
	opts := domain.AcquireOptions{HighAccuracy: true, TimeoutMs: 5000, MaxAgeMs: 0}

	_, err := waitFor(t, NewAcquirer(src, nil).AcquireOnce(context.Background(), opts))
	require.NoError(t, err)
	assert.Equal(t, opts, got)
}

func TestRequest_CompletesOnce(t *testing.T) {
	calls := 0
	req := newRequest(func() {})
	req.OnComplete(func(domain.Fix, error) { calls++ })

	req.complete(domain.Fix{Source: "first"}, nil)
	req.complete(domain.Fix{Source: "second"}, errors.New("late"))

	fix, err := req.Result()
	assert.NoError(t, err)
	assert.Equal(t, "first", fix.Source)
	assert.Equal(t, 1, calls)

	// Late registration runs immediately with the stored result
	var late string
	req.OnComplete(func(f domain.Fix, _ error) { late = f.Source })
	assert.Equal(t, "first", late)
}
