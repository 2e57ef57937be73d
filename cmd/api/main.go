// Package main provides the entrypoint for the carpool session API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockcarpool/carpool/internal/api"
	"github.com/mockcarpool/carpool/internal/api/middleware"
	"github.com/mockcarpool/carpool/internal/config"
	"github.com/mockcarpool/carpool/internal/engine"
	"github.com/mockcarpool/carpool/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "carpool-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting carpool API")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.IsProduction() {
		log = log.Level(zerolog.InfoLevel)
	}

	if cfg.Auth.SigningKey == "" {
		cfg.Auth.SigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	// Initialize OpenTelemetry
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Server.Env,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	engineMetrics, err := telemetry.NewEngineMetrics(tp.Meter)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize engine metrics")
		os.Exit(1)
	}

	eng := engine.New(ctx, engine.Options{
		Config:  cfg,
		Metrics: engineMetrics,
		Logger:  log,
	})
	go eng.Sessions.Run(ctx)
	go eng.Warmup.Every(ctx, cfg.Cache.WarmInterval)

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Sessions:    eng.Sessions,
		Tokens:      eng.Tokens,
		Registry:    eng.Registry,
		CORSOrigins: cfg.Server.CORSOrigins,
		RequireTLS:  cfg.Server.RequireTLS,
	})

	// Create HTTP server. Event streams clear their own write deadline.
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("geocoder", cfg.Providers.Geocoder).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Closing sessions ends open event streams so Shutdown does not wait on them.
	stop()
	if err := eng.Close(); err != nil {
		log.Error().Err(err).Msg("engine shutdown failed")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
