// Package engine assembles the provider clients, lookup services and session
// manager from configuration. Both the HTTP API and the command-line client
// build on it.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockcarpool/carpool/internal/auth"
	"github.com/mockcarpool/carpool/internal/cache"
	"github.com/mockcarpool/carpool/internal/config"
	"github.com/mockcarpool/carpool/internal/geocoding"
	"github.com/mockcarpool/carpool/internal/geocoding/nominatim"
	orsgeocode "github.com/mockcarpool/carpool/internal/geocoding/openrouteservice"
	"github.com/mockcarpool/carpool/internal/provider/resilience"
	"github.com/mockcarpool/carpool/internal/routing"
	orsrouting "github.com/mockcarpool/carpool/internal/routing/openrouteservice"
	"github.com/mockcarpool/carpool/internal/session"
	"github.com/mockcarpool/carpool/internal/suggest"
	"github.com/mockcarpool/carpool/internal/telemetry"
	"github.com/mockcarpool/carpool/internal/worker"
)

// Options configures New.
type Options struct {
	Config config.Config

	// Metrics records engine and provider measurements (optional).
	Metrics *telemetry.EngineMetrics

	// Transport overrides the provider HTTP transport, mainly for tests.
	Transport http.RoundTripper

	Logger zerolog.Logger
}

// Engine holds the assembled components.
type Engine struct {
	Registry   *resilience.Registry
	Cache      cache.Cache
	Geocoder   *geocoding.Service
	Suggester  *suggest.Adapter
	Directions *routing.Service
	Calculator *routing.Calculator
	Sessions   *session.Manager
	Tokens     *auth.TokenService
	Warmup     *worker.WarmupJob
}

// New builds the engine. The cache falls back to memory when Redis is unreachable.
func New(ctx context.Context, opts Options) *Engine {
	cfg := opts.Config
	logger := opts.Logger

	registry := resilience.NewRegistry()

	store := cache.New(ctx, cache.Config{
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
		DefaultTTL:    cfg.Cache.GeocodeTTL,
		Logger:        logger,
	})

	ors := cfg.Providers.OpenRouteService
	orsGeocoder := orsgeocode.NewClient(orsgeocode.ClientConfig{
		APIKey:     ors.APIKey,
		BaseURL:    ors.BaseURL,
		HTTPClient: newHTTPClient(orsgeocode.ProviderName, ors.Timeout, ors.RequestsPerSecond, "", registry, opts),
		Logger:     logger,
	})

	var geocoder geocoding.Provider = orsGeocoder
	if cfg.Providers.Geocoder == config.GeocoderNominatim {
		nom := cfg.Providers.Nominatim
		rps := nom.RequestsPerSecond
		if rps <= 0 {
			rps = 1
		}
		geocoder = nominatim.NewClient(nominatim.ClientConfig{
			BaseURL:    nom.BaseURL,
			UserAgent:  nom.UserAgent,
			HTTPClient: newHTTPClient(nominatim.ProviderName, nom.Timeout, rps, nom.UserAgent, registry, opts),
			Logger:     logger,
		})
	}

	directionsClient := orsrouting.NewClient(orsrouting.ClientConfig{
		APIKey:     ors.APIKey,
		BaseURL:    ors.BaseURL,
		HTTPClient: newHTTPClient(orsrouting.ProviderName, ors.Timeout, ors.RequestsPerSecond, "", registry, opts),
		Logger:     logger,
	})

	geocodeSvc := geocoding.NewService(geocoding.ServiceConfig{
		Provider: geocoder,
		Cache:    store,
		CacheTTL: cfg.Cache.GeocodeTTL,
		Timeout:  cfg.Engine.ResolveTimeout,
		Logger:   logger,
	})

	directions := routing.NewService(routing.ServiceConfig{
		Provider:     directionsClient,
		Cache:        store,
		CacheTTL:     cfg.Cache.RouteTTL,
		FetchTimeout: cfg.Engine.RouteTimeout,
		Logger:       logger,
	})

	calculator := routing.NewCalculator(routing.CalculatorConfig{
		Directions: directions,
		Timeout:    cfg.Engine.RouteTimeout,
		Logger:     logger,
	})

	suggester := suggest.NewAdapter(suggest.AdapterConfig{
		Provider:   orsGeocoder,
		MaxResults: cfg.Engine.MaxSuggestions,
		Timeout:    cfg.Engine.SuggestTimeout,
		Logger:     logger,
	})

	sessionCfg := session.Config{
		Suggester:      suggester,
		Resolver:       geocodeSvc,
		Calculator:     calculator,
		Debounce:       cfg.Engine.Debounce,
		ResolveTimeout: cfg.Engine.ResolveTimeout,
	}
	if opts.Metrics != nil {
		sessionCfg.Metrics = opts.Metrics
	}

	sessions := session.NewManager(session.ManagerConfig{
		Session:     sessionCfg,
		IdleTTL:     cfg.Engine.SessionIdleTTL,
		MaxSessions: cfg.Engine.MaxSessions,
		Logger:      logger,
	})

	tokens := auth.NewTokenService(auth.TokenConfig{
		SigningKey: cfg.Auth.SigningKey,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		TTL:        cfg.Auth.TokenTTL,
	})

	warmup := worker.NewWarmupJob(worker.WarmupJobConfig{
		Config: worker.WarmupConfig{
			Queries: cfg.Cache.WarmQueries,
			Timeout: cfg.Engine.ResolveTimeout,
		},
		Resolver: geocodeSvc,
		Logger:   logger,
	})

	logger.Info().
		Str("geocoder", geocoder.Name()).
		Str("directions", directionsClient.Name()).
		Int("providers", registry.Len()).
		Dur("debounce", cfg.Engine.Debounce).
		Msg("engine assembled")

	return &Engine{
		Registry:   registry,
		Cache:      store,
		Geocoder:   geocodeSvc,
		Suggester:  suggester,
		Directions: directions,
		Calculator: calculator,
		Sessions:   sessions,
		Tokens:     tokens,
		Warmup:     warmup,
	}
}

// Close shuts down every session and releases the cache.
func (e *Engine) Close() error {
	e.Sessions.Shutdown()
	if err := e.Cache.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	return nil
}

func newHTTPClient(name string, timeout time.Duration, rps float64, userAgent string, registry *resilience.Registry, opts Options) *resilience.Client {
	cfg := resilience.DefaultClientConfig(name)
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	cfg.RequestsPerSecond = rps
	cfg.UserAgent = userAgent
	cfg.Registry = registry
	cfg.Transport = opts.Transport
	cfg.Logger = opts.Logger
	if opts.Metrics != nil {
		cfg.Observer = opts.Metrics.ObserveProvider
	}
	return resilience.NewClient(cfg)
}
