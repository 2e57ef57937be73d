package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

var (
	// ErrCircuitOpen is returned without contacting the provider while its breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrRateLimited is returned when waiting for the outbound rate limiter would exceed the deadline.
	ErrRateLimited = errors.New("outbound rate limit exceeded")
)

// ServerError is a 5xx response from a provider.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// ClientConfig configures a provider HTTP client.
type ClientConfig struct {
	// Name identifies the provider (e.g. "openrouteservice", "nominatim").
	Name string

	// Timeout bounds a single HTTP attempt. Default: 10 seconds
	Timeout time.Duration

	// MaxRetries bounds retries after the first attempt. Negative disables retries.
	// Default: 2
	MaxRetries int

	// InitialInterval is the first backoff delay. Default: 100ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay. Default: 2 seconds
	MaxInterval time.Duration

	// RequestsPerSecond limits outbound calls. Zero means unlimited.
	RequestsPerSecond float64

	// UserAgent is set on every request when non-empty.
	UserAgent string

	// Breaker configures the circuit breaker. Nil uses DefaultBreakerConfig(Name).
	Breaker *BreakerConfig

	// Registry receives health updates. Nil disables tracking.
	Registry *Registry

	// Observer, when set, is called once per DoWithContext with the total
	// time spent and the final error.
	Observer func(provider string, elapsed time.Duration, err error)

	Logger zerolog.Logger

	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// DefaultClientConfig returns the defaults for a named provider.
func DefaultClientConfig(name string) ClientConfig {
	breaker := DefaultBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Breaker:         &breaker,
		Logger:          zerolog.Nop(),
	}
}

// Client executes provider requests through a rate limiter, a circuit breaker
// and an exponential retry loop. 5xx responses and transport errors are retried;
// 4xx responses are returned to the caller untouched.
type Client struct {
	name     string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	limiter  *rate.Limiter
	registry *Registry
	cfg      ClientConfig
	logger   zerolog.Logger
}

// NewClient creates a provider client and registers it with cfg.Registry.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}

	breakerCfg := DefaultBreakerConfig(cfg.Name)
	if cfg.Breaker != nil {
		breakerCfg = *cfg.Breaker
	}
	logger := cfg.Logger.With().Str("provider", cfg.Name).Logger()
	if breakerCfg.OnStateChange == nil {
		breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	c := &Client{
		name: cfg.Name,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		breaker:  newBreaker[*http.Response](breakerCfg), //nolint:bodyclose // type param, not a response
		limiter:  limiter,
		registry: cfg.Registry,
		cfg:      cfg,
		logger:   logger,
	}

	if c.registry != nil {
		c.registry.Register(c.name, c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the breaker counters.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

// Do sends req using the request's context.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext sends req under ctx. The caller closes the returned body.
// When retries are exhausted on a 5xx the final response is returned with a nil error
// so the caller can map the provider's error payload.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx) //nolint:gosec // MaxRetries is non-negative

	var last *http.Response
	attempt := 0
	start := time.Now()

	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrRateLimited, err))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // closed by caller or on retry
			attemptReq, err := c.prepare(ctx, req)
			if err != nil {
				return nil, err
			}
			r, err := c.http.Do(attemptReq)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= http.StatusInternalServerError {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if resp != nil {
				if last != nil {
					last.Body.Close()
				}
				last = resp
			}
			c.logger.Debug().Err(err).Int("attempt", attempt).Msg("provider attempt failed")
			return err
		}

		if last != nil {
			last.Body.Close()
		}
		last = resp
		return nil
	}

	err := backoff.Retry(operation, policy)
	if c.cfg.Observer != nil {
		c.cfg.Observer(c.name, time.Since(start), err)
	}
	if err != nil {
		c.recordFailure(err)
		if last != nil && !errors.Is(err, ErrCircuitOpen) && ctx.Err() == nil {
			return last, nil
		}
		if last != nil {
			last.Body.Close()
		}
		return nil, err
	}

	c.recordSuccess()
	return last, nil
}

// prepare clones req for one attempt, rewinding the body when possible.
func (c *Client) prepare(ctx context.Context, req *http.Request) (*http.Request, error) {
	clone := req.Clone(ctx)
	if req.Body != nil && req.Body != http.NoBody && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		clone.Body = body
	}
	if c.cfg.UserAgent != "" {
		clone.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	return clone, nil
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(c.name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.registry != nil {
		c.registry.RecordFailure(c.name, err)
	}
}
