package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/mockcarpool/carpool/internal/cache"
)

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Provider is the directions provider.
	Provider Provider

	// Cache stores directions responses. Nil uses a private in-memory cache.
	Cache cache.Cache

	Logger zerolog.Logger

	// CacheTTL is how long a response is served without refetching (default: 5 minutes).
	CacheTTL time.Duration

	// CacheGridSize quantizes endpoints for cache keys, in degrees (default: 0.0001 ~ 11m).
	CacheGridSize float64

	// StaleIfErrorTTL allows serving a stale response while the provider is unavailable (default: 15 minutes).
	StaleIfErrorTTL time.Duration

	// FetchTimeout bounds a shared provider call (default: 15 seconds).
	FetchTimeout time.Duration
}

// Service provides directions with caching, request coalescing and stale-if-error.
type Service struct {
	provider        Provider
	cache           cache.Cache
	logger          zerolog.Logger
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	fetchTimeout    time.Duration
	group           singleflight.Group
}

type cachedDirections struct {
	Response  *DirectionsResponse `json:"response"`
	FetchedAt time.Time           `json:"fetchedAt"`
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.CacheGridSize == 0 {
		cfg.CacheGridSize = 0.0001
	}
	if cfg.StaleIfErrorTTL < cfg.CacheTTL {
		cfg.StaleIfErrorTTL = 3 * cfg.CacheTTL
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory(cache.Config{DefaultTTL: cfg.StaleIfErrorTTL})
	}

	return &Service{
		provider:        cfg.Provider,
		cache:           cfg.Cache,
		logger:          cfg.Logger,
		cacheTTL:        cfg.CacheTTL,
		cacheGridSize:   cfg.CacheGridSize,
		staleIfErrorTTL: cfg.StaleIfErrorTTL,
		fetchTimeout:    cfg.FetchTimeout,
	}
}

// Name returns the name of the underlying provider.
func (s *Service) Name() string {
	return s.provider.Name()
}

// GetDirections returns candidate routes between two points, serving from cache when fresh.
func (s *Service) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	if req.Profile == "" {
		req.Profile = ProfileDrive
	}
	if err := req.Origin.Validate(); err != nil {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_ORIGIN",
			Message:  "invalid origin coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}
	if err := req.Destination.Validate(); err != nil {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_DESTINATION",
			Message:  "invalid destination coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}

	key := s.cacheKey(req)

	var cached cachedDirections
	hasCached := cache.GetJSON(ctx, s.cache, key, &cached) && cached.Response != nil
	if hasCached && time.Since(cached.FetchedAt) < s.cacheTTL {
		s.logger.Debug().
			Str("cache_key", key).
			Msg("cache hit for directions")
		return cached.Response, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		return s.fetchDirections(ctx, req, key)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if res.Err == nil {
		return res.Val.(*DirectionsResponse), nil
	}

	if hasCached && isUnavailable(res.Err) && time.Since(cached.FetchedAt) < s.staleIfErrorTTL {
		s.logger.Warn().
			Time("fetched_at", cached.FetchedAt).
			Str("cache_key", key).
			Msg("serving stale directions data due to provider error")
		return cached.Response, nil
	}
	return nil, res.Err
}

// fetchDirections runs one shared provider call and caches the result. The call
// outlives the first caller's cancellation so that coalesced waiters still get it.
func (s *Service) fetchDirections(ctx context.Context, req DirectionsRequest, key string) (*DirectionsResponse, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
	defer cancel()

	s.logger.Debug().
		Float64("origin_lat", req.Origin.Lat).
		Float64("origin_lon", req.Origin.Lon).
		Float64("dest_lat", req.Destination.Lat).
		Float64("dest_lon", req.Destination.Lon).
		Str("profile", string(req.Profile)).
		Str("provider", s.provider.Name()).
		Msg("fetching directions from provider")

	resp, err := s.provider.GetDirections(ctx, req)
	if err != nil {
		s.logger.Error().Err(err).
			Float64("origin_lat", req.Origin.Lat).
			Float64("origin_lon", req.Origin.Lon).
			Float64("dest_lat", req.Destination.Lat).
			Float64("dest_lon", req.Destination.Lon).
			Msg("failed to fetch directions")
		return nil, err
	}

	cache.SetJSON(ctx, s.cache, key, cachedDirections{Response: resp, FetchedAt: time.Now()}, s.staleIfErrorTTL)

	s.logger.Debug().
		Str("cache_key", key).
		Int("route_count", len(resp.Routes)).
		Msg("cached directions response")

	return resp, nil
}

// cacheKey quantizes both endpoints onto the cache grid.
// Format: directions:{provider}:{profile}:{originLat},{originLon}:{destLat},{destLon}.
func (s *Service) cacheKey(req DirectionsRequest) string {
	q := func(v float64) float64 {
		return math.Floor(v/s.cacheGridSize) * s.cacheGridSize
	}
	return fmt.Sprintf("directions:%s:%s:%.5f,%.5f:%.5f,%.5f",
		s.provider.Name(),
		req.Profile,
		q(req.Origin.Lat), q(req.Origin.Lon),
		q(req.Destination.Lat), q(req.Destination.Lon),
	)
}

func isUnavailable(err error) bool {
	var rerr *Error
	return errors.As(err, &rerr) && rerr.IsRetryable()
}
