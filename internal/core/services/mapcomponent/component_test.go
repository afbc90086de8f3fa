package mapcomponent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/services/acquire"
	"github.com/lcalzada-xor/geoview/internal/core/services/view"
	"github.com/lcalzada-xor/geoview/internal/geo"
	"github.com/lcalzada-xor/geoview/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPresenter is a mock of ports.MarkerPresenter
type MockPresenter struct {
	mock.Mock
}

func (m *MockPresenter) PlaceMarker(ctx context.Context, marker domain.Marker) error {
	args := m.Called(ctx, marker)
	return args.Error(0)
}

func (m *MockPresenter) RemoveMarker(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// scriptedSource answers each request with the next scripted step
type scriptedSource struct {
	mu    sync.Mutex
	steps []func(ctx context.Context) (domain.Fix, error)
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) RequestPosition(ctx context.Context, _ domain.AcquireOptions) (domain.Fix, error) {
	s.mu.Lock()
	step := s.steps[0]
	if len(s.steps) > 1 {
		s.steps = s.steps[1:]
	}
	s.mu.Unlock()
	return step(ctx)
}

func at(lat, lng float64) func(context.Context) (domain.Fix, error) {
	return func(context.Context) (domain.Fix, error) {
		return domain.Fix{Position: domain.GeoPosition{Latitude: lat, Longitude: lng}, Accuracy: 15}, nil
	}
}

func fails(err error) func(context.Context) (domain.Fix, error) {
	return func(context.Context) (domain.Fix, error) { return domain.Fix{}, err }
}

func never(ctx context.Context) (domain.Fix, error) {
	<-ctx.Done()
	return domain.Fix{}, ctx.Err()
}

// memRecorder collects fix records
type memRecorder struct {
	mu      sync.Mutex
	records []domain.FixRecord
}

func (r *memRecorder) Record(rec domain.FixRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *memRecorder) all() []domain.FixRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.FixRecord(nil), r.records...)
}

// fakeGeocoder returns canned results
type fakeGeocoder struct {
	results []domain.SearchResult
	err     error
}

func (g *fakeGeocoder) Search(_ context.Context, _ string, limit int) ([]domain.SearchResult, error) {
	if g.err != nil {
		return nil, g.err
	}
	if limit < len(g.results) {
		return g.results[:limit], nil
	}
	return g.results, nil
}

type fixture struct {
	comp      *Component
	presenter *MockPresenter
	recorder  *memRecorder
}

func newFixture(t *testing.T, cfg Config, steps ...func(context.Context) (domain.Fix, error)) *fixture {
	t.Helper()
	presenter := new(MockPresenter)
	presenter.On("PlaceMarker", mock.Anything, mock.Anything).Return(nil)
	presenter.On("RemoveMarker", mock.Anything, mock.Anything).Return(nil)
	recorder := &memRecorder{}

	comp := New(cfg, Deps{
		Acquirer:  acquire.NewAcquirer(&scriptedSource{steps: steps}, nil),
		View:      view.NewController(nil, domain.DefaultStyles(), nil),
		Presenter: presenter,
		Geocoder: &fakeGeocoder{results: []domain.SearchResult{
			{DisplayName: "Bilbao", Point: domain.ProjectedPoint{X: -327000, Y: 5356000}},
		}},
		Recorder: recorder,
	})
	t.Cleanup(comp.Destroy)
	return &fixture{comp: comp, presenter: presenter, recorder: recorder}
}

func wait(t *testing.T, req *acquire.Request) (domain.Fix, error) {
	t.Helper()
	require.NotNil(t, req)
	select {
	case <-req.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("location request did not complete")
	}
	return req.Result()
}

func TestComponent_FirstFixRecentersAtStreetZoom(t *testing.T) {
	f := newFixture(t, DefaultConfig(), at(37.7749, -122.4194))

	req, err := f.comp.Start(context.Background())
	require.NoError(t, err)
	_, err = wait(t, req)
	require.NoError(t, err)

	want, err := geo.Project(37.7749, -122.4194)
	require.NoError(t, err)

	v := f.comp.View()
	assert.Equal(t, want, v.Center)
	assert.Equal(t, domain.StreetZoom, v.ZoomLevel)

	pos, ok := f.comp.UserLocation()
	require.True(t, ok)
	assert.Equal(t, domain.GeoPosition{Latitude: 37.7749, Longitude: -122.4194}, pos)

	f.presenter.AssertCalled(t, "PlaceMarker", mock.Anything, mock.MatchedBy(func(m domain.Marker) bool {
		return m.Point == want && m.Kind == domain.MarkerUser && m.Label == "You are here"
	}))

	records := f.recorder.all()
	require.Len(t, records, 1)
	assert.Equal(t, domain.OutcomeOK, records[0].Outcome)
	assert.Equal(t, 37.7749, records[0].Latitude)
}

func TestComponent_TimeoutLeavesViewUnchanged(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Acquire.TimeoutMs = 50
	f := newFixture(t, cfg, never)

	req, err := f.comp.Start(context.Background())
	require.NoError(t, err)
	before := f.comp.View()

	_, err = wait(t, req)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, before, f.comp.View())
	assert.Equal(t, domain.DefaultView(), f.comp.View())

	_, ok := f.comp.UserLocation()
	assert.False(t, ok)
	f.presenter.AssertNotCalled(t, "PlaceMarker", mock.Anything, mock.Anything)

	records := f.recorder.all()
	require.Len(t, records, 1)
	assert.Equal(t, domain.OutcomeTimeout, records[0].Outcome)
}

func TestComponent_PermissionDeniedKeepsWorldView(t *testing.T) {
	f := newFixture(t, DefaultConfig(), fails(domain.ErrPermissionDenied))

	req, err := f.comp.Start(context.Background())
	require.NoError(t, err)
	_, err = wait(t, req)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, domain.DefaultView(), f.comp.View())
	assert.Equal(t, domain.OutcomePermissionDenied, f.recorder.all()[0].Outcome)
}

func TestComponent_DestroyWhileLocating(t *testing.T) {
	f := newFixture(t, DefaultConfig(), never)

	req, err := f.comp.Start(context.Background())
	require.NoError(t, err)

	f.comp.Destroy()
	_, err = wait(t, req)
	assert.ErrorIs(t, err, domain.ErrCanceled)

	assert.Equal(t, domain.DefaultView(), f.comp.View())
	f.presenter.AssertNotCalled(t, "PlaceMarker", mock.Anything, mock.Anything)
	assert.Empty(t, f.recorder.all())
	assert.ErrorIs(t, f.comp.RecenterToUser(context.Background()), domain.ErrDestroyed)
}

func TestComponent_LateFixAfterDestroyIsNoop(t *testing.T) {
	f := newFixture(t, DefaultConfig(), never)
	_, err := f.comp.Start(context.Background())
	require.NoError(t, err)
	f.comp.Destroy()

	// A successful result delivered after teardown must not touch any state
	f.comp.handleFix(nil, domain.Fix{Position: domain.GeoPosition{Latitude: 40, Longitude: -3}}, nil)

	assert.Equal(t, domain.DefaultView(), f.comp.View())
	_, ok := f.comp.UserLocation()
	assert.False(t, ok)
	assert.Empty(t, f.comp.Markers())
	f.presenter.AssertNotCalled(t, "PlaceMarker", mock.Anything, mock.Anything)
	assert.Empty(t, f.recorder.all())
}

func TestComponent_OperationsAfterDestroy(t *testing.T) {
	f := newFixture(t, DefaultConfig(), at(1, 1))
	f.comp.Destroy()
	f.comp.Destroy()

	_, err := f.comp.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrDestroyed)
	_, err = f.comp.Locate()
	assert.ErrorIs(t, err, domain.ErrDestroyed)
	assert.ErrorIs(t, f.comp.Recenter(context.Background(), domain.ProjectedPoint{}, 3), domain.ErrDestroyed)
	assert.ErrorIs(t, f.comp.RecenterToUser(context.Background()), domain.ErrDestroyed)
}

func TestComponent_RecenterBeforeStartIsRejected(t *testing.T) {
	f := newFixture(t, DefaultConfig(), at(1, 1))

	assert.NotPanics(t, func() {
		err := f.comp.Recenter(context.Background(), domain.ProjectedPoint{X: 10, Y: 10}, 5)
		assert.ErrorIs(t, err, domain.ErrNotInitialized)
	})
	assert.False(t, f.comp.Ready())
}

func TestComponent_MarkerReplacePolicy(t *testing.T) {
	f := newFixture(t, DefaultConfig(), at(10, 10), at(11, 11))

	req, err := f.comp.Start(context.Background())
	require.NoError(t, err)
	_, err = wait(t, req)
	require.NoError(t, err)
	first := f.comp.Markers()
	require.Len(t, first, 1)

	req, err = f.comp.Locate()
	require.NoError(t, err)
	_, err = wait(t, req)
	require.NoError(t, err)

	markers := f.comp.Markers()
	require.Len(t, markers, 1)
	assert.NotEqual(t, first[0].ID, markers[0].ID)
	f.presenter.AssertCalled(t, "RemoveMarker", mock.Anything, first[0].ID)

	pos, _ := f.comp.UserLocation()
	assert.Equal(t, 11.0, pos.Latitude)
}

func TestComponent_MarkerAccumulatePolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MarkerPolicy = domain.MarkerAccumulate
	f := newFixture(t, cfg, at(10, 10), at(11, 11))

	req, err := f.comp.Start(context.Background())
	require.NoError(t, err)
	_, err = wait(t, req)
	require.NoError(t, err)

	req, err = f.comp.Locate()
	require.NoError(t, err)
	_, err = wait(t, req)
	require.NoError(t, err)

	assert.Len(t, f.comp.Markers(), 2)
	f.presenter.AssertNotCalled(t, "RemoveMarker", mock.Anything, mock.Anything)
}

func TestComponent_RecenterToUser(t *testing.T) {
	f := newFixture(t, DefaultConfig(), at(43.263, -2.935))
	ctx := context.Background()

	req, err := f.comp.Start(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, f.comp.RecenterToUser(ctx), domain.ErrNoUserLocation)

	_, err = wait(t, req)
	require.NoError(t, err)
	home := f.comp.View()

	require.NoError(t, f.comp.Recenter(ctx, domain.ProjectedPoint{X: 1000, Y: 1000}, 4))
	assert.NotEqual(t, home, f.comp.View())

	require.NoError(t, f.comp.RecenterToUser(ctx))
	assert.Equal(t, home, f.comp.View())
}

func TestComponent_PolarFixIsClamped(t *testing.T) {
	f := newFixture(t, DefaultConfig(), at(90, 0))

	req, err := f.comp.Start(context.Background())
	require.NoError(t, err)
	_, err = wait(t, req)
	require.NoError(t, err)

	edge, err := geo.Project(geo.MaxLatitude, 0)
	require.NoError(t, err)
	assert.Equal(t, edge, f.comp.View().Center)
}

func TestComponent_SearchAndSelect(t *testing.T) {
	f := newFixture(t, DefaultConfig(), never)
	ctx := context.Background()
	_, err := f.comp.Start(ctx)
	require.NoError(t, err)

	results, err := f.comp.Search(ctx, "bilbao")
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.NoError(t, f.comp.SelectSearchResult(ctx, results[0]))
	v := f.comp.View()
	assert.Equal(t, results[0].Point, v.Center)
	assert.Equal(t, domain.SearchZoom, v.ZoomLevel)

	markers := f.comp.Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, "Bilbao", markers[0].Label)
	assert.Equal(t, domain.MarkerSearch, markers[0].Kind)
}

func TestComponent_SearchWithoutGeocoder(t *testing.T) {
	comp := New(DefaultConfig(), Deps{
		Acquirer: acquire.NewAcquirer(nil, nil),
		View:     view.NewController(nil, nil, nil),
	})
	defer comp.Destroy()

	_, err := comp.Search(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrNoGeocoder)
}

func TestGeocode_CountsEachOutcomeOnce(t *testing.T) {
	ctx := context.Background()
	count := func(outcome string) float64 {
		return testutil.ToFloat64(telemetry.GeocodeQueries.WithLabelValues(outcome))
	}
	ok, empty, failed := count("ok"), count("empty"), count("error")

	results, err := Geocode(ctx, &fakeGeocoder{results: []domain.SearchResult{{DisplayName: "Bilbao"}}}, "bilbao", 5)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = Geocode(ctx, &fakeGeocoder{}, "nowhere", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	_, err = Geocode(ctx, &fakeGeocoder{err: errors.New("upstream down")}, "bilbao", 5)
	assert.Error(t, err)

	assert.Equal(t, ok+1, count("ok"))
	assert.Equal(t, empty+1, count("empty"))
	assert.Equal(t, failed+1, count("error"))
}

func TestComponent_SelectStyle(t *testing.T) {
	f := newFixture(t, DefaultConfig(), never)
	_, err := f.comp.Start(context.Background())
	require.NoError(t, err)

	style, err := f.comp.SelectStyle(context.Background(), "Satellite")
	require.NoError(t, err)
	assert.Equal(t, "satellite", style.StyleID)
	assert.Equal(t, style, f.comp.ActiveStyle())
}
