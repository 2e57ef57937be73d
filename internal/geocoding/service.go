package geocoding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/mockcarpool/carpool/internal/cache"
	"github.com/mockcarpool/carpool/internal/suggest"
)

// ServiceConfig holds configuration for the geocoding service.
type ServiceConfig struct {
	// Provider is the geocoding backend.
	Provider Provider

	// Cache stores resolved places. Nil uses a private in-memory cache.
	Cache cache.Cache

	// CacheTTL is how long resolved places are cached (default: 10 minutes).
	CacheTTL time.Duration

	// Timeout bounds one provider lookup (default: 10 seconds).
	Timeout time.Duration

	// CandidateLimit is how many candidates to request (default: 5).
	CandidateLimit int

	Logger zerolog.Logger
}

// Service resolves text to exactly one place: the provider's top-ranked candidate.
// Identical concurrent lookups share one provider call and results are cached, so
// resolving the same text twice yields the same coordinate.
type Service struct {
	provider Provider
	cache    cache.Cache
	cacheTTL time.Duration
	timeout  time.Duration
	limit    int
	logger   zerolog.Logger
	group    singleflight.Group
}

// NewService creates a new geocoding service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 5
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewMemory(cache.Config{DefaultTTL: cfg.CacheTTL})
	}

	return &Service{
		provider: cfg.Provider,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		timeout:  cfg.Timeout,
		limit:    cfg.CandidateLimit,
		logger:   cfg.Logger,
	}
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// Resolve returns the top-ranked place for text.
func (s *Service) Resolve(ctx context.Context, text string) (*Place, error) {
	query := NormalizeQuery(text)
	if query == "" {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "EMPTY_QUERY",
			Message:  "query is empty",
			Err:      ErrInvalidInput,
		}
	}

	key := s.cacheKey(query)
	var cached Place
	if cache.GetJSON(ctx, s.cache, key, &cached) {
		s.logger.Debug().Str("cache_key", key).Msg("cache hit for place")
		return &cached, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		return s.search(ctx, query, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		place := *res.Val.(*Place)
		return &place, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// search performs the provider lookup for a shared singleflight call. It is
// detached from the first caller's cancellation so that waiters joining later
// are not failed by it; the lookup timeout still applies.
func (s *Service) search(ctx context.Context, query, key string) (*Place, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := time.Now()
	candidates, err := s.provider.Search(ctx, query, s.limit)
	if err != nil {
		err = s.classify(err)
		s.logger.Warn().
			Err(err).
			Str("provider", s.provider.Name()).
			Dur("elapsed", time.Since(start)).
			Msg("geocoding lookup failed")
		return nil, err
	}

	if len(candidates) == 0 {
		s.logger.Debug().
			Str("provider", s.provider.Name()).
			Msg("geocoding returned no candidates")
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "NOT_FOUND",
			Message:  "no candidates for query",
			Err:      ErrNotFound,
		}
	}

	place := candidates[0]
	if err := place.Coordinate.Validate(); err != nil {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_RESULT",
			Message:  "provider returned an invalid coordinate",
			Err:      ErrProviderUnavailable,
		}
	}

	cache.SetJSON(ctx, s.cache, key, place, s.cacheTTL)

	s.logger.Debug().
		Str("provider", s.provider.Name()).
		Int("candidates", len(candidates)).
		Float64("lat", place.Coordinate.Lat).
		Float64("lon", place.Coordinate.Lon).
		Dur("elapsed", time.Since(start)).
		Msg("resolved place")

	return &place, nil
}

// ResolveSuggestion resolves an accepted suggestion, preferring its provider token
// and falling back to a text search of the suggestion title.
func (s *Service) ResolveSuggestion(ctx context.Context, sg suggest.Suggestion) (*Place, error) {
	if resolver, ok := s.provider.(TokenResolver); ok && sg.Token != "" {
		place, err := resolver.ResolveToken(ctx, sg.Token)
		if err == nil {
			return place, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug().
			Err(err).
			Str("provider", s.provider.Name()).
			Msg("token resolution failed, falling back to text")
	}
	return s.Resolve(ctx, sg.Title)
}

// classify maps transport-level failures onto the geocoding error taxonomy.
func (s *Service) classify(err error) error {
	var gerr *Error
	if errors.As(err, &gerr) {
		return err
	}
	code := "REQUEST_FAILED"
	if errors.Is(err, context.DeadlineExceeded) {
		code = "TIMEOUT"
	}
	return &Error{
		Provider: s.provider.Name(),
		Code:     code,
		Message:  "geocoding request failed",
		Err:      fmt.Errorf("%w: %w", ErrProviderUnavailable, err),
	}
}

func (s *Service) cacheKey(query string) string {
	return "geocode:" + s.provider.Name() + ":" + strings.ToLower(query)
}

// NormalizeQuery trims text and collapses internal whitespace.
func NormalizeQuery(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
