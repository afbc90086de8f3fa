package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lcalzada-xor/geoview/internal/app"
	"github.com/lcalzada-xor/geoview/internal/config"
	"github.com/lcalzada-xor/geoview/internal/telemetry"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load(".env")

	// Setup Structured Logging
	logger := newLogger(os.Getenv("GEOVIEW_LOG_FORMAT"), os.Getenv("GEOVIEW_LOG_LEVEL"))
	slog.SetDefault(logger)

	// load config
	cfg := config.Load()
	if cfg.Debug {
		slog.SetDefault(newLogger(os.Getenv("GEOVIEW_LOG_FORMAT"), "debug"))
	}

	// Initialize Tracing
	shutdownTracer, err := telemetry.InitTracer(cfg.Trace)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				slog.Error("Failed to shutdown tracer", "error", err)
			}
		}()
	}

	// Initialize Application
	application, err := app.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Root Context with cancellation on Interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("geoview starting", "version", telemetry.Version)

	if err := application.Run(ctx); err != nil {
		slog.Error("Application error", "error", err)
		cancel()
		os.Exit(1)
	}
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
