package location

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/oschwald/geoip2-golang"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/ports"
)

type clientIPKey struct{}

// WithClientIP stores the requesting client's address for IP based sources.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the address stored by WithClientIP.
func ClientIP(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPKey{}).(string)
	return ip, ok && ip != ""
}

// cityReader is the subset of *geoip2.Reader used here.
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// GeoIPSource locates a client by looking its IP up in a MaxMind City database.
// Accuracy is the database's accuracy radius in meters.
type GeoIPSource struct {
	reader cityReader
}

// OpenGeoIPSource opens a GeoLite2/GeoIP2 City mmdb file.
func OpenGeoIPSource(path string) (*GeoIPSource, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &GeoIPSource{reader: db}, nil
}

func (s *GeoIPSource) Name() string { return "geoip" }

// RequestPosition looks up the client IP carried in ctx.
func (s *GeoIPSource) RequestPosition(ctx context.Context, _ domain.AcquireOptions) (domain.Fix, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fix{}, err
	}
	raw, ok := ClientIP(ctx)
	if !ok {
		return domain.Fix{}, fmt.Errorf("%w: no client address", domain.ErrUnavailable)
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return domain.Fix{}, fmt.Errorf("%w: bad client address %q", domain.ErrUnavailable, raw)
	}
	if ip.IsLoopback() || ip.IsPrivate() {
		return domain.Fix{}, fmt.Errorf("%w: %s is not routable", domain.ErrUnavailable, ip)
	}

	record, err := s.reader.City(ip)
	if err != nil {
		return domain.Fix{}, fmt.Errorf("%w: geoip lookup: %v", domain.ErrUnavailable, err)
	}
	if record.Location.Latitude == 0 && record.Location.Longitude == 0 && record.Location.AccuracyRadius == 0 {
		return domain.Fix{}, fmt.Errorf("%w: no geoip record for %s", domain.ErrUnavailable, ip)
	}

	return domain.Fix{
		Position: domain.GeoPosition{
			Latitude:  record.Location.Latitude,
			Longitude: record.Location.Longitude,
		},
		Accuracy:   float64(record.Location.AccuracyRadius) * 1000,
		Source:     s.Name(),
		CapturedAt: time.Now(),
	}, nil
}

// Close releases the database.
func (s *GeoIPSource) Close() error {
	return s.reader.Close()
}

// BoundSource injects a fixed client address into every request so IP based
// sources work for requests issued outside the originating HTTP handler.
type BoundSource struct {
	next ports.LocationSource
	ip   string
}

// BindClientIP wraps next with a client address.
func BindClientIP(next ports.LocationSource, ip string) *BoundSource {
	return &BoundSource{next: next, ip: ip}
}

func (s *BoundSource) Name() string { return s.next.Name() }

func (s *BoundSource) RequestPosition(ctx context.Context, opts domain.AcquireOptions) (domain.Fix, error) {
	if _, ok := ClientIP(ctx); !ok {
		ctx = WithClientIP(ctx, s.ip)
	}
	return s.next.RequestPosition(ctx, opts)
}
