package handlers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/paulmach/orb/geojson"

	"github.com/lcalzada-xor/geoview/internal/adapters/location"
	"github.com/lcalzada-xor/geoview/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/services/mapcomponent"
	"github.com/lcalzada-xor/geoview/internal/core/services/session"
	"github.com/lcalzada-xor/geoview/internal/geo"
)

// SessionHandler serves the headless map session API.
type SessionHandler struct {
	Sessions *session.Manager
	Sources  location.Factory
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions *session.Manager, sources location.Factory) *SessionHandler {
	if sources == nil {
		sources = location.NewFactory(nil)
	}
	return &SessionHandler{
		Sessions: sessions,
		Sources:  sources,
	}
}

type sessionResponse struct {
	ID   string           `json:"id"`
	View domain.ViewState `json:"view"`
}

type recenterRequest struct {
	X    *float64 `json:"x"`
	Y    *float64 `json:"y"`
	Zoom *float64 `json:"zoom"`
}

type tile struct {
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
	Z uint32 `json:"z"`
}

func (h *SessionHandler) component(w http.ResponseWriter, r *http.Request) (*mapcomponent.Component, bool) {
	comp, err := h.Sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return comp, true
}

// HandleCreate starts a headless session located by the server-side sources.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	comp, err := h.Sessions.Create(r.Context(), session.Binding{
		ID:     body.ID,
		Source: h.Sources(middleware.ClientIP(r), nil),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := comp.Start(context.Background()); err != nil {
		if derr := h.Sessions.Destroy(r.Context(), comp.SessionID()); derr != nil {
			err = fmt.Errorf("%w (cleanup: %v)", err, derr)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{ID: comp.SessionID(), View: comp.View()})
}

// HandleGetView returns the current view.
func (h *SessionHandler) HandleGetView(w http.ResponseWriter, r *http.Request) {
	comp, ok := h.component(w, r)
	if !ok {
		return
	}
	if !comp.Ready() {
		writeError(w, domain.ErrNotInitialized)
		return
	}
	writeJSON(w, http.StatusOK, comp.View())
}

// HandleRecenter moves the view to an explicit projected point.
func (h *SessionHandler) HandleRecenter(w http.ResponseWriter, r *http.Request) {
	comp, ok := h.component(w, r)
	if !ok {
		return
	}
	var body recenterRequest
	if err := decodeJSON(w, r, &body); err != nil || body.X == nil || body.Y == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	zoom := comp.View().ZoomLevel
	if body.Zoom != nil {
		zoom = *body.Zoom
	}
	if err := comp.Recenter(r.Context(), domain.ProjectedPoint{X: *body.X, Y: *body.Y}, zoom); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comp.View())
}

// HandleLocate fires a one-shot acquisition. The result is applied in the
// background; poll the view or follow the websocket for the outcome.
func (h *SessionHandler) HandleLocate(w http.ResponseWriter, r *http.Request) {
	comp, ok := h.component(w, r)
	if !ok {
		return
	}
	if _, err := comp.Locate(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "locating"})
}

// HandleRecenterUser moves the view back to the last user location.
func (h *SessionHandler) HandleRecenterUser(w http.ResponseWriter, r *http.Request) {
	comp, ok := h.component(w, r)
	if !ok {
		return
	}
	if err := comp.RecenterToUser(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comp.View())
}

// HandleStyles lists the styles and the active one.
func (h *SessionHandler) HandleStyles(w http.ResponseWriter, r *http.Request) {
	comp, ok := h.component(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"styles": comp.Styles(),
		"active": comp.ActiveStyle(),
	})
}

// HandleSelectStyle switches the active style by name.
func (h *SessionHandler) HandleSelectStyle(w http.ResponseWriter, r *http.Request) {
	comp, ok := h.component(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &body); err != nil || body.Name == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	style, err := comp.SelectStyle(r.Context(), body.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, style)
}

// HandleMarkers returns the session's markers as a GeoJSON FeatureCollection.
func (h *SessionHandler) HandleMarkers(w http.ResponseWriter, r *http.Request) {
	comp, ok := h.component(w, r)
	if !ok {
		return
	}
	fc := geojson.NewFeatureCollection()
	for _, m := range comp.Markers() {
		pos, err := geo.Unproject(m.Point)
		if err != nil {
			http.Error(w, fmt.Sprintf("marker %s: %v", m.ID, err), http.StatusInternalServerError)
			return
		}
		f := geojson.NewFeature(geo.ToOrb(pos))
		f.ID = m.ID
		f.Properties["kind"] = string(m.Kind)
		f.Properties["x"] = m.Point.X
		f.Properties["y"] = m.Point.Y
		if m.Label != "" {
			f.Properties["label"] = m.Label
		}
		if m.Icon != "" {
			f.Properties["icon"] = m.Icon
		}
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(data)
}

// HandleTiles lists the tiles covering a w x h pixel viewport of the view.
func (h *SessionHandler) HandleTiles(w http.ResponseWriter, r *http.Request) {
	comp, ok := h.component(w, r)
	if !ok {
		return
	}
	width, err := intParam(r, "w", 1024, 8192)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	height, err := intParam(r, "h", 768, 8192)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tiles, err := geo.VisibleTiles(comp.View(), width, height)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]tile, len(tiles))
	for i, t := range tiles {
		out[i] = tile{X: t.X, Y: t.Y, Z: uint32(t.Z)}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"zoom":  int(math.Floor(comp.View().ZoomLevel)),
		"tiles": out,
	})
}

// HandleFixes returns the persisted acquisition history of a session. It
// works for destroyed sessions too.
func (h *SessionHandler) HandleFixes(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 50, 1000)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fixes, err := h.Sessions.History(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if fixes == nil {
		fixes = []domain.FixRecord{}
	}
	writeJSON(w, http.StatusOK, fixes)
}

// HandleDestroy tears the session down.
func (h *SessionHandler) HandleDestroy(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Destroy(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleList returns the live session ids.
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": h.Sessions.List()})
}

func intParam(r *http.Request, name string, def, maxValue int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > maxValue {
		return 0, fmt.Errorf("invalid %s: must be 1..%d", name, maxValue)
	}
	return v, nil
}
