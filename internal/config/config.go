package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
)

// Config holds all application configuration.
type Config struct {
	Addr           string
	DBPath         string
	Latitude       float64 // static fallback location
	Longitude      float64
	GeoIPPath      string
	DefaultZoom    float64
	StreetZoom     float64
	SearchZoom     float64
	TimeoutMs      int64
	HighAccuracy   bool
	MaxAgeMs       int64
	MarkerPolicy   domain.MarkerPolicy
	GeocoderURL    string
	UserAgent      string
	SearchLimit    int
	SearchRate     int // searches per client per minute
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	NATSURL        string
	Styles         []domain.MapStyle
	AllowedOrigins []string
	TrustedProxies []string // peers allowed to set X-Forwarded-For
	Debug          bool
	Trace          bool
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables. Invalid values exit.
func Load() *Config {
	cfg, err := Parse(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	return cfg
}

// Parse is Load with an explicit flag set and arguments.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	// Defaults and Environment Variables
	cfg.Addr = getEnv("GEOVIEW_ADDR", ":8080")
	cfg.DBPath = getEnv("GEOVIEW_DB", getDefaultDBPath())
	cfg.Latitude = getEnvFloat("GEOVIEW_LAT", 40.4168)
	cfg.Longitude = getEnvFloat("GEOVIEW_LNG", -3.7038)
	cfg.GeoIPPath = getEnv("GEOVIEW_GEOIP_DB", "")
	cfg.DefaultZoom = getEnvFloat("GEOVIEW_DEFAULT_ZOOM", domain.WorldZoom)
	cfg.StreetZoom = getEnvFloat("GEOVIEW_STREET_ZOOM", domain.StreetZoom)
	cfg.SearchZoom = getEnvFloat("GEOVIEW_SEARCH_ZOOM", domain.SearchZoom)
	cfg.TimeoutMs = int64(getEnvInt("GEOVIEW_TIMEOUT_MS", 10000))
	cfg.HighAccuracy = getEnvBool("GEOVIEW_HIGH_ACCURACY", true)
	cfg.MaxAgeMs = int64(getEnvInt("GEOVIEW_MAX_AGE_MS", 0))
	policy := getEnv("GEOVIEW_MARKER_POLICY", string(domain.MarkerReplace))
	cfg.GeocoderURL = getEnv("GEOVIEW_GEOCODER_URL", "https://nominatim.openstreetmap.org")
	cfg.UserAgent = getEnv("GEOVIEW_USER_AGENT", "geoview/1.0")
	cfg.SearchLimit = getEnvInt("GEOVIEW_SEARCH_LIMIT", 5)
	cfg.SearchRate = getEnvInt("GEOVIEW_SEARCH_RATE", 30)
	cfg.RedisAddr = getEnv("GEOVIEW_REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("GEOVIEW_REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("GEOVIEW_REDIS_DB", 0)
	cfg.NATSURL = getEnv("GEOVIEW_NATS_URL", "")
	styles := getEnv("GEOVIEW_STYLES", "")
	origins := getEnv("GEOVIEW_ALLOWED_ORIGINS", "")
	proxies := getEnv("GEOVIEW_TRUSTED_PROXIES", "")
	cfg.Debug = getEnvBool("GEOVIEW_DEBUG", false)
	cfg.Trace = getEnvBool("GEOVIEW_TRACE", false)

	// Command Line Flags (Override Env)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite database (empty to disable history)")
	fs.Float64Var(&cfg.Latitude, "lat", cfg.Latitude, "Fallback latitude")
	fs.Float64Var(&cfg.Longitude, "lng", cfg.Longitude, "Fallback longitude")
	fs.StringVar(&cfg.GeoIPPath, "geoip", cfg.GeoIPPath, "Path to a GeoLite2/GeoIP2 City database")
	fs.Float64Var(&cfg.DefaultZoom, "zoom", cfg.DefaultZoom, "Zoom of the initial world view")
	fs.Float64Var(&cfg.StreetZoom, "street-zoom", cfg.StreetZoom, "Zoom applied on a user fix")
	fs.Float64Var(&cfg.SearchZoom, "search-zoom", cfg.SearchZoom, "Zoom applied on a selected search result")
	fs.Int64Var(&cfg.TimeoutMs, "timeout-ms", cfg.TimeoutMs, "Location request timeout in ms (0 = none)")
	fs.BoolVar(&cfg.HighAccuracy, "high-accuracy", cfg.HighAccuracy, "Ask for high accuracy fixes")
	fs.Int64Var(&cfg.MaxAgeMs, "max-age-ms", cfg.MaxAgeMs, "Accept cached fixes up to this age in ms")
	fs.StringVar(&policy, "markers", policy, "User marker policy: replace or accumulate")
	fs.StringVar(&cfg.GeocoderURL, "geocoder", cfg.GeocoderURL, "Nominatim compatible base URL (empty to disable search)")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent sent to the geocoder")
	fs.IntVar(&cfg.SearchLimit, "search-limit", cfg.SearchLimit, "Maximum search results")
	fs.IntVar(&cfg.SearchRate, "search-rate", cfg.SearchRate, "Searches per client per minute")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for the geocode cache")
	fs.StringVar(&cfg.NATSURL, "nats", cfg.NATSURL, "NATS URL for event publishing")
	fs.StringVar(&styles, "styles", styles, "Map styles as name=styleId,...")
	fs.StringVar(&origins, "origins", origins, "Allowed websocket origins (comma separated)")
	fs.StringVar(&proxies, "trusted-proxies", proxies, "Proxy addresses or CIDRs whose X-Forwarded-For is honored")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable verbose debug logging")
	fs.BoolVar(&cfg.Trace, "trace", cfg.Trace, "Print OpenTelemetry spans to stdout")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.MarkerPolicy = domain.ParseMarkerPolicy(policy)

	var err error
	if cfg.Styles, err = ParseStyles(styles); err != nil {
		return nil, err
	}
	cfg.AllowedOrigins = splitList(origins)
	cfg.TrustedProxies = splitList(proxies)
	if cfg.TimeoutMs < 0 || cfg.MaxAgeMs < 0 {
		return nil, fmt.Errorf("timeouts must not be negative")
	}
	return cfg, nil
}

// ParseStyles reads "Name=styleId,..." pairs. An empty string yields the
// built-in style list.
func ParseStyles(s string) ([]domain.MapStyle, error) {
	parts := splitList(s)
	if len(parts) == 0 {
		return domain.DefaultStyles(), nil
	}
	styles := make([]domain.MapStyle, 0, len(parts))
	for _, p := range parts {
		name, id, ok := strings.Cut(p, "=")
		name, id = strings.TrimSpace(name), strings.TrimSpace(id)
		if !ok || name == "" || id == "" {
			return nil, fmt.Errorf("invalid style %q: want name=styleId", p)
		}
		styles = append(styles, domain.MapStyle{Name: name, StyleID: id})
	}
	return styles, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getDefaultDBPath returns ~/.geoview/geoview.db, creating the directory.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("could not get user home directory, using current dir", "error", err)
		return "geoview.db"
	}

	dir := filepath.Join(home, ".geoview")
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("could not create .geoview directory, using current dir", "error", err)
		return "geoview.db"
	}

	return filepath.Join(dir, "geoview.db")
}
