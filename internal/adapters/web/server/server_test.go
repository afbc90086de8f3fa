package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/geoview/internal/adapters/location"
	"github.com/lcalzada-xor/geoview/internal/adapters/web/server"
	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/services/mapcomponent"
	"github.com/lcalzada-xor/geoview/internal/core/services/session"
	"github.com/lcalzada-xor/geoview/internal/geo"
)

type stubGeocoder struct{}

func (stubGeocoder) Search(_ context.Context, query string, limit int) ([]domain.SearchResult, error) {
	if query == "nowhere" {
		return nil, nil
	}
	pos := domain.GeoPosition{Latitude: 43.2627, Longitude: -2.9253}
	pt, err := geo.Project(pos.Latitude, pos.Longitude)
	if err != nil {
		return nil, err
	}
	return []domain.SearchResult{{DisplayName: "Bilbao, Biscay, Spain", Position: pos, Point: pt}}, nil
}

// setupServer helper creates a server backed by a static location source
func setupServer(t *testing.T) http.Handler {
	sessions := session.NewManager(session.Options{Component: mapcomponent.DefaultConfig()})
	sources := location.NewFactory(location.NewStaticSource(40.4168, -3.7038))
	srv := server.NewServer(":0", sessions, stubGeocoder{}, sources, server.Options{SearchRate: 3})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		sessions.Close(context.Background())
	})
	return srv.Handler(ctx)
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func createSession(t *testing.T, h http.Handler, id string) {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/api/sessions", map[string]string{"id": id})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func currentView(t *testing.T, h http.Handler, id string) domain.ViewState {
	t.Helper()
	rr := do(t, h, http.MethodGet, "/api/sessions/"+id+"/view", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var v domain.ViewState
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

// waitForFix waits until the background static fix has been applied
func waitForFix(t *testing.T, h http.Handler, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return currentView(t, h, id).ZoomLevel == domain.StreetZoom
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_SessionLifecycle(t *testing.T) {
	h := setupServer(t)
	createSession(t, h, "madrid")
	waitForFix(t, h, "madrid")

	want, err := geo.Project(40.4168, -3.7038)
	require.NoError(t, err)
	assert.Equal(t, want, currentView(t, h, "madrid").Center)

	rr := do(t, h, http.MethodGet, "/api/sessions/madrid/markers", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/geo+json", rr.Header().Get("Content-Type"))
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.InDelta(t, -3.7038, fc.Features[0].Geometry.Coordinates[0], 1e-9)
	assert.InDelta(t, 40.4168, fc.Features[0].Geometry.Coordinates[1], 1e-9)
	assert.Equal(t, "user", fc.Features[0].Properties["kind"])

	rr = do(t, h, http.MethodDelete, "/api/sessions/madrid", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = do(t, h, http.MethodGet, "/api/sessions/madrid/view", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_Recenter(t *testing.T) {
	h := setupServer(t)
	createSession(t, h, "r")
	waitForFix(t, h, "r")

	tests := []struct {
		name           string
		path           string
		payload        interface{}
		expectedStatus int
	}{
		{"valid", "/api/sessions/r/recenter", map[string]float64{"x": 1000, "y": -2000, "zoom": 5}, http.StatusOK},
		{"zoom clamped", "/api/sessions/r/recenter", map[string]float64{"x": 0, "y": 0, "zoom": 99}, http.StatusOK},
		{"missing y", "/api/sessions/r/recenter", map[string]float64{"x": 0}, http.StatusBadRequest},
		{"unknown session", "/api/sessions/ghost/recenter", map[string]float64{"x": 0, "y": 0}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, tt.path, tt.payload)
			assert.Equal(t, tt.expectedStatus, rr.Code, rr.Body.String())
		})
	}
	assert.Equal(t, float64(domain.MaxZoom), currentView(t, h, "r").ZoomLevel)
}

func TestServer_Styles(t *testing.T) {
	h := setupServer(t)
	createSession(t, h, "s")

	rr := do(t, h, http.MethodGet, "/api/sessions/s/styles", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "dataviz-dark")

	rr = do(t, h, http.MethodPut, "/api/sessions/s/style", map[string]string{"name": "Dark"})
	require.Equal(t, http.StatusOK, rr.Code)
	var style domain.MapStyle
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &style))
	assert.Equal(t, "dataviz-dark", style.StyleID)

	rr = do(t, h, http.MethodPut, "/api/sessions/s/style", map[string]string{"name": "Comic Sans"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_SearchAndSelect(t *testing.T) {
	h := setupServer(t)
	createSession(t, h, "q")
	waitForFix(t, h, "q")

	rr := do(t, h, http.MethodGet, "/api/search?q=bilbao", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var results []domain.SearchResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &results))
	require.Len(t, results, 1)

	rr = do(t, h, http.MethodPost, "/api/sessions/q/search/select", results[0])
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	v := currentView(t, h, "q")
	assert.Equal(t, results[0].Point, v.Center)
	assert.Equal(t, domain.SearchZoom, v.ZoomLevel)

	rr = do(t, h, http.MethodGet, "/api/search?q=", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Three requests per window; the fourth is throttled
	rr = do(t, h, http.MethodGet, "/api/search?q=nowhere", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
	rr = do(t, h, http.MethodGet, "/api/search?q=bilbao", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestServer_SearchLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	h := setupServer(t)

	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/search?q=bilbao", nil)
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{200, 200, 200, 429, 429, 429}, codes)
}

func TestServer_LocateAndTiles(t *testing.T) {
	h := setupServer(t)
	createSession(t, h, "t")

	rr := do(t, h, http.MethodPost, "/api/sessions/t/locate", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	require.Eventually(t, func() bool {
		return do(t, h, http.MethodPost, "/api/sessions/t/recenter-user", nil).Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	rr = do(t, h, http.MethodGet, "/api/sessions/t/tiles?w=512&h=512", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Zoom  int `json:"zoom"`
		Tiles []struct {
			Z uint32 `json:"z"`
		} `json:"tiles"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 12, body.Zoom)
	assert.Len(t, body.Tiles, 16)

	rr = do(t, h, http.MethodGet, "/api/sessions/t/tiles?w=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/sessions/t/fixes", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestServer_Health(t *testing.T) {
	h := setupServer(t)
	createSession(t, h, "h")

	rr := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
		Browsers int    `json:"browsers"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Sessions)
	assert.Equal(t, 0, body.Browsers)
}
