// Package geo converts between geographic degrees and the Web Mercator plane
// the browser map engine renders in.
package geo

import (
	"math"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
)

const (
	// HalfWorld is half the projected map width in meters (R in x = lon*R/180).
	HalfWorld = 20037508.34

	// MaxLatitude is the latitude where the projected square world ends,
	// atan(sinh(pi)) in degrees.
	MaxLatitude = 85.0511287798066
)

// Project converts a latitude/longitude pair in degrees to Web Mercator meters.
//
// y is computed as atanh(sin(lat)) * R/pi, which equals
// ln(tan(45deg + lat/2)) / (pi/180) * R/180 but is exactly zero on the
// equator and odd in latitude. Latitudes beyond MaxLatitude, longitudes
// outside [-180, 180] and NaN inputs return *domain.OutOfRangeError.
// y never leaves [-HalfWorld, HalfWorld], so every result unprojects.
func Project(lat, lon float64) (domain.ProjectedPoint, error) {
	if math.IsNaN(lat) || math.IsNaN(lon) ||
		lat < -MaxLatitude || lat > MaxLatitude ||
		lon < -180 || lon > 180 {
		return domain.ProjectedPoint{}, &domain.OutOfRangeError{Latitude: lat, Longitude: lon}
	}

	x := lon * HalfWorld / 180
	y := math.Atanh(math.Sin(lat*math.Pi/180)) * HalfWorld / math.Pi
	y = math.Max(-HalfWorld, math.Min(y, HalfWorld))
	return domain.ProjectedPoint{X: x, Y: y}, nil
}

// ClampLatitude bounds lat to [-MaxLatitude, MaxLatitude]. NaN is returned as is.
func ClampLatitude(lat float64) float64 {
	if math.IsNaN(lat) {
		return lat
	}
	return math.Max(-MaxLatitude, math.Min(lat, MaxLatitude))
}

// ProjectClamped clamps the latitude into the projectable band first, so polar
// fixes land on the edge of the map instead of failing.
func ProjectClamped(p domain.GeoPosition) (domain.ProjectedPoint, error) {
	if !p.Valid() {
		return domain.ProjectedPoint{}, &domain.OutOfRangeError{Latitude: p.Latitude, Longitude: p.Longitude}
	}
	return Project(ClampLatitude(p.Latitude), p.Longitude)
}

// Unproject converts Web Mercator meters back to degrees.
func Unproject(pt domain.ProjectedPoint) (domain.GeoPosition, error) {
	if !pt.Finite() || math.Abs(pt.X) > HalfWorld || math.Abs(pt.Y) > HalfWorld {
		return domain.GeoPosition{}, domain.ErrOutOfRange
	}
	lon := pt.X * 180 / HalfWorld
	lat := math.Atan(math.Sinh(pt.Y*math.Pi/HalfWorld)) * 180 / math.Pi
	return domain.GeoPosition{Latitude: lat, Longitude: lon}, nil
}
