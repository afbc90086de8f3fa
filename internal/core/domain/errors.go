package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for location acquisition and view updates
var (
	// ErrPermissionDenied indicates the user declined location access
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrUnavailable indicates no location service could produce a fix
	ErrUnavailable = errors.New("location unavailable")

	// ErrTimeout indicates no fix arrived within the configured window
	ErrTimeout = errors.New("location request timed out")

	// ErrCanceled indicates the request was abandoned by its owner
	ErrCanceled = errors.New("location request canceled")

	// ErrOutOfRange indicates coordinates the projection cannot represent
	ErrOutOfRange = errors.New("coordinate out of projectable range")

	// ErrNotInitialized indicates the map view has not been constructed yet
	ErrNotInitialized = errors.New("map view not initialized")

	// ErrAlreadyInitialized indicates a second Initialize call
	ErrAlreadyInitialized = errors.New("map view already initialized")

	// ErrInvalidView indicates a non-finite center or zoom
	ErrInvalidView = errors.New("invalid view state")

	// ErrUnknownStyle indicates a style name missing from the configured list
	ErrUnknownStyle = errors.New("unknown map style")

	// ErrNoUserLocation indicates no fix has been acquired yet
	ErrNoUserLocation = errors.New("user location unknown")

	// ErrDestroyed indicates the component has been torn down
	ErrDestroyed = errors.New("map component destroyed")

	// ErrSessionNotFound indicates an unknown session id
	ErrSessionNotFound = errors.New("session not found")
)

// OutOfRangeError carries the offending coordinate
type OutOfRangeError struct {
	Latitude  float64
	Longitude float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("cannot project lat=%g lon=%g: %v", e.Latitude, e.Longitude, ErrOutOfRange)
}

func (e *OutOfRangeError) Unwrap() error {
	return ErrOutOfRange
}

// AcquireError wraps a location failure with the source that produced it
type AcquireError struct {
	Source string // Location source name (e.g., "browser", "geoip")
	Err    error  // One of the location sentinels, possibly wrapped
}

func (e *AcquireError) Error() string {
	if e.Source == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// Outcome maps an acquisition error to its FixOutcome.
func Outcome(err error) FixOutcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrPermissionDenied):
		return OutcomePermissionDenied
	case errors.Is(err, ErrTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrCanceled):
		return OutcomeCanceled
	default:
		return OutcomeUnavailable
	}
}
