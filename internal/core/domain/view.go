package domain

import "math"

// Zoom bounds accepted by the view.
const (
	MinZoom = 0
	MaxZoom = 28

	// WorldZoom shows the whole world on a typical viewport.
	WorldZoom = 2.0
	// StreetZoom is applied when the first fix arrives.
	StreetZoom = 12.0
	// SearchZoom is applied when a search result is selected.
	SearchZoom = 14.0
)

// ViewState is the visible center and zoom of a map.
type ViewState struct {
	Center    ProjectedPoint `json:"center"`
	ZoomLevel float64        `json:"zoom"`
}

// DefaultView is the whole-world view used before any fix is known.
func DefaultView() ViewState {
	return ViewState{Center: ProjectedPoint{}, ZoomLevel: WorldZoom}
}

// ClampZoom bounds z to [MinZoom, MaxZoom].
func ClampZoom(z float64) float64 {
	return math.Max(MinZoom, math.Min(z, MaxZoom))
}

// MapStyle names a style the map engine understands. StyleID is opaque.
type MapStyle struct {
	Name    string `json:"name"`
	StyleID string `json:"styleId"`
}

// DefaultStyles mirrors the style switcher shipped with the browser client.
func DefaultStyles() []MapStyle {
	return []MapStyle{
		{Name: "Streets", StyleID: "streets-v2"},
		{Name: "Outdoor", StyleID: "outdoor-v2"},
		{Name: "Satellite", StyleID: "satellite"},
		{Name: "Dark", StyleID: "dataviz-dark"},
	}
}

// Marker is a point the map engine should draw.
type Marker struct {
	ID    string         `json:"id"`
	Point ProjectedPoint `json:"point"`
	Label string         `json:"label,omitempty"`
	Icon  string         `json:"icon,omitempty"`
	Kind  MarkerKind     `json:"kind"`
}

// MarkerKind distinguishes the user's own marker from search hits.
type MarkerKind string

const (
	MarkerUser   MarkerKind = "user"
	MarkerSearch MarkerKind = "search"
)

// MarkerPolicy decides what happens to the previous user marker on a new fix.
type MarkerPolicy string

const (
	// MarkerReplace removes the previous user marker before placing a new one.
	MarkerReplace MarkerPolicy = "replace"
	// MarkerAccumulate keeps every marker, one per fix.
	MarkerAccumulate MarkerPolicy = "accumulate"
)

// ParseMarkerPolicy falls back to MarkerReplace for unknown values.
func ParseMarkerPolicy(s string) MarkerPolicy {
	if MarkerPolicy(s) == MarkerAccumulate {
		return MarkerAccumulate
	}
	return MarkerReplace
}

// SearchResult is a geocoded place, already projected by the provider.
type SearchResult struct {
	DisplayName string         `json:"display_name"`
	Position    GeoPosition    `json:"position"`
	Point       ProjectedPoint `json:"point"`
}
