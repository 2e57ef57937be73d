// Package api provides the HTTP API for carpool route-search sessions.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mockcarpool/carpool/internal/api/handler"
	"github.com/mockcarpool/carpool/internal/api/middleware"
	"github.com/mockcarpool/carpool/internal/auth"
	"github.com/mockcarpool/carpool/internal/provider/resilience"
	"github.com/mockcarpool/carpool/internal/session"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	Sessions    *session.Manager
	Tokens      *auth.TokenService
	Registry    *resilience.Registry
	CORSOrigins []string
	RequireTLS  bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "carpool-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.CORS(cfg.CORSOrigins))      // Browser clients
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind a load balancer
	r.Use(middleware.ContentTypeJSON)            // JSON content type
	r.Use(middleware.RequireJSON)                // JSON request bodies

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry, cfg.Sessions)
	sessionHandler := handler.NewSessionHandler(cfg.Sessions, cfg.Tokens, cfg.Logger)

	sessionAuth := middleware.SessionAuth(cfg.Tokens)

	createRateLimit := middleware.RateLimitByIP(middleware.CreateSessionRateLimit) // 10 req/min per IP
	routeRateLimit := middleware.RateLimitBySession(middleware.RouteRateLimit)     // 30 req/min per session
	inputRateLimit := middleware.RateLimitBySession(middleware.InputRateLimit)     // 600 req/min per session
	standardRateLimit := middleware.RateLimitBySession(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.With(createRateLimit).Post("/", sessionHandler.CreateSession)

			// Everything under a session requires that session's token.
			r.Route("/{"+middleware.SessionParam+"}", func(r chi.Router) {
				r.Use(sessionAuth)

				r.With(standardRateLimit).Get("/", sessionHandler.GetSession)
				r.With(standardRateLimit).Delete("/", sessionHandler.DeleteSession)
				r.With(standardRateLimit).Get("/map.geojson", sessionHandler.Map)
				r.With(standardRateLimit).Get("/events", sessionHandler.Events)

				r.Route("/fields/{field}", func(r chi.Router) {
					r.Use(inputRateLimit)
					r.Put("/", sessionHandler.SetText)
					r.Post("/focus", sessionHandler.Focus)
					r.Post("/blur", sessionHandler.Blur)
					r.Post("/selection", sessionHandler.SelectSuggestion)
				})

				r.With(routeRateLimit).Post("/route", sessionHandler.RequestRoute)
				r.With(standardRateLimit).Post("/reset", sessionHandler.Reset)
			})
		})
	})

	return r
}
