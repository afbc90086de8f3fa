package domain

import (
	"math"
	"time"
)

// GeoPosition is a latitude/longitude pair in degrees as reported by a
// location source. Values are copied, never mutated in place.
type GeoPosition struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the position lies on the globe.
func (p GeoPosition) Valid() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}

// Fix is a single reading from a location source.
type Fix struct {
	Position   GeoPosition `json:"position"`
	Accuracy   float64     `json:"accuracy"` // meters, informational only
	Source     string      `json:"source"`
	CapturedAt time.Time   `json:"captured_at"`
}

// Age returns how old the fix is relative to now.
func (f Fix) Age(now time.Time) time.Duration {
	if f.CapturedAt.IsZero() {
		return 0
	}
	return now.Sub(f.CapturedAt)
}

// ProjectedPoint is a planar coordinate in Web Mercator meters.
type ProjectedPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Finite reports whether both components are real numbers.
func (p ProjectedPoint) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// AcquireOptions configures a one-shot location request.
type AcquireOptions struct {
	HighAccuracy bool  `json:"highAccuracy"`
	TimeoutMs    int64 `json:"timeoutMs"` // 0 disables the timeout
	MaxAgeMs     int64 `json:"maxAgeMs"`  // 0 forces a fresh reading
}

// Timeout returns the configured timeout as a duration.
func (o AcquireOptions) Timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// MaxAge returns the configured maximum fix age as a duration.
func (o AcquireOptions) MaxAge() time.Duration {
	return time.Duration(o.MaxAgeMs) * time.Millisecond
}

// FixOutcome classifies how an acquisition ended.
type FixOutcome string

const (
	OutcomeOK               FixOutcome = "ok"
	OutcomePermissionDenied FixOutcome = "permission_denied"
	OutcomeUnavailable      FixOutcome = "unavailable"
	OutcomeTimeout          FixOutcome = "timeout"
	OutcomeCanceled         FixOutcome = "canceled"
)

// FixRecord is the persisted trace of one acquisition attempt.
type FixRecord struct {
	SessionID  string     `json:"session_id"`
	Outcome    FixOutcome `json:"outcome"`
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	Accuracy   float64    `json:"accuracy"`
	Source     string     `json:"source"`
	Error      string     `json:"error,omitempty"`
	AcquiredAt time.Time  `json:"acquired_at"`
}
