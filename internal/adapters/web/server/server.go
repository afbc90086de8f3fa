package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lcalzada-xor/geoview/internal/adapters/location"
	"github.com/lcalzada-xor/geoview/internal/adapters/web/handlers"
	"github.com/lcalzada-xor/geoview/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/geoview/internal/adapters/web/ws"
	"github.com/lcalzada-xor/geoview/internal/core/ports"
	"github.com/lcalzada-xor/geoview/internal/core/services/session"
)

// Options tune the HTTP surface.
type Options struct {
	AllowedOrigins []string
	TrustedProxies *middleware.TrustedProxies
	SearchLimit    int
	SearchRate     int
	SearchWindow   time.Duration
	Logger         *slog.Logger
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	Addr           string
	Sessions       *session.Manager
	Hub            *ws.Hub
	SessionHandler *handlers.SessionHandler
	SearchHandler  *handlers.SearchHandler

	opts Options
	srv  *http.Server
}

// NewServer creates a new web server. geocoder and sources may be nil.
func NewServer(addr string, sessions *session.Manager, geocoder ports.Geocoder, sources location.Factory, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SearchRate <= 0 {
		opts.SearchRate = 30
	}
	if opts.SearchWindow <= 0 {
		opts.SearchWindow = time.Minute
	}
	return &Server{
		Addr:           addr,
		Sessions:       sessions,
		Hub:            ws.NewHub(sessions, sources, opts.AllowedOrigins, opts.Logger),
		SessionHandler: handlers.NewSessionHandler(sessions, sources),
		SearchHandler:  handlers.NewSearchHandler(geocoder, sessions, opts.SearchLimit),
		opts:           opts,
	}
}

// Handler returns the instrumented router.
func (s *Server) Handler(ctx context.Context) http.Handler {
	return otelhttp.NewHandler(SetupRoutes(ctx, s), "geoview-server")
}

// Run serves until ctx is canceled, then shuts down gracefully and destroys
// every live session.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.opts.Logger.Info("web server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.opts.Logger.Error("web server shutdown error", "error", err)
		}
		s.Hub.CloseAll()
		s.Sessions.Close(shutdownCtx)
	}()

	s.opts.Logger.Info("web server listening", "addr", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
