package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lcalzada-xor/geoview/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/geoview/internal/telemetry"
)

// SetupRoutes builds the router. ctx bounds background helpers such as the
// rate limiter sweeper.
func SetupRoutes(ctx context.Context, s *Server) http.Handler {
	r := mux.NewRouter()

	searchLimiter := middleware.NewRateLimiter(ctx, s.opts.SearchRate, s.opts.SearchWindow)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.Hub.HandleWebSocket)

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/search", middleware.RateLimit(searchLimiter)(http.HandlerFunc(s.SearchHandler.HandleSearch))).Methods(http.MethodGet)

	api.HandleFunc("/sessions", s.SessionHandler.HandleList).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.SessionHandler.HandleCreate).Methods(http.MethodPost)

	api.HandleFunc("/sessions/{id}", s.SessionHandler.HandleDestroy).Methods(http.MethodDelete)

	sess := api.PathPrefix("/sessions/{id}").Subrouter()
	sess.HandleFunc("/view", s.SessionHandler.HandleGetView).Methods(http.MethodGet)
	sess.HandleFunc("/recenter", s.SessionHandler.HandleRecenter).Methods(http.MethodPost)
	sess.HandleFunc("/locate", s.SessionHandler.HandleLocate).Methods(http.MethodPost)
	sess.HandleFunc("/recenter-user", s.SessionHandler.HandleRecenterUser).Methods(http.MethodPost)
	sess.HandleFunc("/styles", s.SessionHandler.HandleStyles).Methods(http.MethodGet)
	sess.HandleFunc("/style", s.SessionHandler.HandleSelectStyle).Methods(http.MethodPut)
	sess.HandleFunc("/markers", s.SessionHandler.HandleMarkers).Methods(http.MethodGet)
	sess.HandleFunc("/tiles", s.SessionHandler.HandleTiles).Methods(http.MethodGet)
	sess.HandleFunc("/fixes", s.SessionHandler.HandleFixes).Methods(http.MethodGet)
	sess.HandleFunc("/search/select", s.SearchHandler.HandleSelect).Methods(http.MethodPost)

	return middleware.RealIP(s.opts.TrustedProxies)(r)
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
	Browsers int    `json:"browsers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:   "ok",
		Version:  telemetry.Version,
		Sessions: len(s.Sessions.List()),
		Browsers: s.Hub.Count(),
	})
}
