package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lcalzada-xor/geoview/internal/adapters/events"
	"github.com/lcalzada-xor/geoview/internal/adapters/geocode"
	"github.com/lcalzada-xor/geoview/internal/adapters/location"
	"github.com/lcalzada-xor/geoview/internal/adapters/storage"
	"github.com/lcalzada-xor/geoview/internal/adapters/web/middleware"
	webserver "github.com/lcalzada-xor/geoview/internal/adapters/web/server"
	"github.com/lcalzada-xor/geoview/internal/config"
	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/ports"
	"github.com/lcalzada-xor/geoview/internal/core/services/history"
	"github.com/lcalzada-xor/geoview/internal/core/services/mapcomponent"
	"github.com/lcalzada-xor/geoview/internal/core/services/session"
	"github.com/lcalzada-xor/geoview/internal/telemetry"
)

const geocodeCacheTTL = 24 * time.Hour

// Application holds the core components of the application.
type Application struct {
	Config    *config.Config
	Store     *storage.SQLiteAdapter
	Recorder  *history.Recorder
	Sessions  *session.Manager
	WebServer *webserver.Server

	geoip     *location.GeoIPSource
	publisher *events.Publisher
	closers   []func() error
}

// New creates a new Application instance and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{
		Config: cfg,
	}

	if err := app.bootstrap(); err != nil {
		app.cleanup()
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}

	return app, nil
}

// bootstrap orchestrates the initialization sequence. Optional backends
// (GeoIP, Redis, NATS) that fail to start are logged and left out.
func (app *Application) bootstrap() error {
	telemetry.InitMetrics()

	if err := app.initStorage(); err != nil {
		return err
	}

	sources := location.NewFactory(app.initFallbackSource())
	geocoder := app.initGeocoder()
	publisher := app.initPublisher()

	app.Sessions = session.NewManager(session.Options{
		Component: app.componentConfig(),
		Styles:    app.Config.Styles,
		Store:     app.storeOrNil(),
		Recorder:  app.recorderOrNil(),
		Publisher: publisher,
		Geocoder:  geocoder,
		Logger:    slog.Default(),
	})

	proxies, err := middleware.ParseTrustedProxies(app.Config.TrustedProxies)
	if err != nil {
		return err
	}
	app.WebServer = webserver.NewServer(app.Config.Addr, app.Sessions, geocoder, sources, webserver.Options{
		AllowedOrigins: app.Config.AllowedOrigins,
		TrustedProxies: proxies,
		SearchLimit:    app.Config.SearchLimit,
		SearchRate:     app.Config.SearchRate,
		SearchWindow:   time.Minute,
		Logger:         slog.Default(),
	})
	return nil
}

func (app *Application) componentConfig() mapcomponent.Config {
	cfg := mapcomponent.DefaultConfig()
	cfg.DefaultView = domain.ViewState{ZoomLevel: domain.ClampZoom(app.Config.DefaultZoom)}
	cfg.StreetZoom = domain.ClampZoom(app.Config.StreetZoom)
	cfg.SearchZoom = domain.ClampZoom(app.Config.SearchZoom)
	cfg.Acquire = domain.AcquireOptions{
		HighAccuracy: app.Config.HighAccuracy,
		TimeoutMs:    app.Config.TimeoutMs,
		MaxAgeMs:     app.Config.MaxAgeMs,
	}
	cfg.MarkerPolicy = app.Config.MarkerPolicy
	cfg.SearchLimit = app.Config.SearchLimit
	return cfg
}

func (app *Application) initStorage() error {
	if app.Config.DBPath == "" {
		slog.Info("history storage disabled")
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(app.Config.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create DB directory: %w", err)
	}

	store, err := storage.NewSQLiteAdapter(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init history storage: %w", err)
	}
	app.Store = store
	app.Recorder = history.NewRecorder(store, 10000, slog.Default())
	app.closers = append(app.closers, store.Close)
	return nil
}

// initFallbackSource builds the server-side location chain: GeoIP first,
// then the configured static position.
func (app *Application) initFallbackSource() ports.LocationSource {
	static := location.NewStaticSource(app.Config.Latitude, app.Config.Longitude)
	if app.Config.GeoIPPath == "" {
		return static
	}
	geoip, err := location.OpenGeoIPSource(app.Config.GeoIPPath)
	if err != nil {
		slog.Warn("GeoIP source disabled", "path", app.Config.GeoIPPath, "error", err)
		return static
	}
	app.geoip = geoip
	app.closers = append(app.closers, geoip.Close)
	return location.NewChain(geoip, static)
}

func (app *Application) initGeocoder() ports.Geocoder {
	if app.Config.GeocoderURL == "" {
		slog.Info("search disabled, no geocoder configured")
		return nil
	}
	var geocoder ports.Geocoder = geocode.NewNominatim(app.Config.GeocoderURL, app.Config.UserAgent)
	if app.Config.RedisAddr == "" {
		return geocoder
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := geocode.OpenRedis(ctx, app.Config.RedisAddr, app.Config.RedisPassword, app.Config.RedisDB)
	if err != nil {
		slog.Warn("geocode cache disabled", "addr", app.Config.RedisAddr, "error", err)
		return geocoder
	}
	app.closers = append(app.closers, client.Close)
	return geocode.NewCachedGeocoder(geocoder, client, geocodeCacheTTL, slog.Default())
}

func (app *Application) initPublisher() ports.EventPublisher {
	if app.Config.NATSURL == "" {
		return nil
	}
	pub, err := events.NewPublisher(app.Config.NATSURL)
	if err != nil {
		slog.Warn("event publishing disabled", "url", app.Config.NATSURL, "error", err)
		return nil
	}
	app.publisher = pub
	return pub
}

// storeOrNil and recorderOrNil keep typed nil pointers out of interfaces.
func (app *Application) storeOrNil() ports.HistoryStore {
	if app.Store == nil {
		return nil
	}
	return app.Store
}

func (app *Application) recorderOrNil() ports.FixRecorder {
	if app.Recorder == nil {
		return nil
	}
	return app.Recorder
}

// Run serves until ctx is canceled or the web server fails.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("Starting geoview components...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if app.Recorder != nil {
		app.Recorder.Start(ctx)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := app.WebServer.Run(ctx); err != nil {
			errChan <- fmt.Errorf("web server error: %w", err)
		}
	}()

	slog.Info("geoview ready", "addr", app.Config.Addr)

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("Termination signal received")
	case runErr = <-errChan:
	}

	app.Sessions.Close(context.Background())
	cancel()
	if app.Recorder != nil {
		app.Recorder.Wait()
	}
	app.cleanup()
	return runErr
}

func (app *Application) cleanup() {
	slog.Info("Cleaning up resources...")
	if app.publisher != nil {
		app.publisher.Close()
	}
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
	app.closers = nil
}
