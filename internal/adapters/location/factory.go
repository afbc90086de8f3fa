package location

import (
	"github.com/lcalzada-xor/geoview/internal/core/ports"
)

// Factory builds the location source of one session. browser is nil for
// headless sessions.
type Factory func(clientIP string, browser ports.LocationSource) ports.LocationSource

// NewFactory returns a Factory that asks the browser first and falls back to
// the server-side source bound to the client's address. Each session gets its
// own cache so fixes never leak between clients.
func NewFactory(fallback ports.LocationSource) Factory {
	return func(clientIP string, browser ports.LocationSource) ports.LocationSource {
		var server ports.LocationSource
		if fallback != nil {
			server = BindClientIP(fallback, clientIP)
		}
		return NewCachingSource(NewChain(browser, server))
	}
}
