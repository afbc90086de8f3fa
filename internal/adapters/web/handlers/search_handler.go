package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/ports"
	"github.com/lcalzada-xor/geoview/internal/core/services/mapcomponent"
	"github.com/lcalzada-xor/geoview/internal/core/services/session"
)

// SearchHandler handles place search and result selection
type SearchHandler struct {
	Geocoder ports.Geocoder
	Sessions *session.Manager
	Limit    int
}

// NewSearchHandler creates a new SearchHandler
func NewSearchHandler(geocoder ports.Geocoder, sessions *session.Manager, limit int) *SearchHandler {
	if limit <= 0 {
		limit = 5
	}
	return &SearchHandler{
		Geocoder: geocoder,
		Sessions: sessions,
		Limit:    limit,
	}
}

// HandleSearch resolves ?q= to projected results.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		http.Error(w, "Missing query", http.StatusBadRequest)
		return
	}
	limit, err := intParam(r, "limit", h.Limit, 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	results, err := mapcomponent.Geocode(r.Context(), h.Geocoder, query, limit)
	if errors.Is(err, mapcomponent.ErrNoGeocoder) {
		writeError(w, err)
		return
	}
	if err != nil {
		http.Error(w, "Search failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// HandleSelect recenters a session on a chosen search result.
func (h *SearchHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	comp, err := h.Sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	var result domain.SearchResult
	if err := decodeJSON(w, r, &result); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := comp.SelectSearchResult(r.Context(), result); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comp.View())
}
