// Package nominatim provides a client for the OpenStreetMap Nominatim search API.
//
// Nominatim's usage policy requires an identifying User-Agent and at most one
// request per second, both enforced by the default HTTP client.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockcarpool/carpool/internal/geo"
	"github.com/mockcarpool/carpool/internal/geocoding"
	"github.com/mockcarpool/carpool/internal/provider/resilience"
)

const (
	// ProviderName identifies this geocoding provider.
	ProviderName = "nominatim"

	// DefaultBaseURL is the public Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultUserAgent is sent when none is configured.
	DefaultUserAgent = "carpool/1.0"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	maxLimit = 50
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Nominatim client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to the public instance).
	BaseURL string

	// UserAgent identifies the application (optional, defaults to DefaultUserAgent).
	UserAgent string

	// CountryCodes limits results (comma-separated ISO 3166-1 alpha-2, optional).
	CountryCodes string

	// RequestsPerSecond overrides the 1 rps policy limit, e.g. for a private instance.
	RequestsPerSecond float64

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient HTTPDoer

	// Timeout is the per-attempt request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client is a Nominatim search client.
type Client struct {
	baseURL      string
	userAgent    string
	countryCodes string
	httpClient   HTTPDoer
	logger       zerolog.Logger
}

// NewClient creates a new Nominatim client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 1
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.RequestsPerSecond = rps
		clientCfg.UserAgent = userAgent
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:      baseURL,
		userAgent:    userAgent,
		countryCodes: cfg.CountryCodes,
		httpClient:   httpClient,
		logger:       cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Search geocodes query and returns candidates ordered by Nominatim's ranking.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]geocoding.Place, error) {
	if limit <= 0 {
		limit = 1
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(limit))
	if c.countryCodes != "" {
		params.Set("countrycodes", c.countryCodes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &geocoding.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach geocoding provider",
			Err:      geocoding.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &geocoding.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "usage policy limit exceeded",
			Err:      geocoding.ErrRateLimitExceeded,
		}
	case resp.StatusCode == http.StatusBadRequest:
		return nil, &geocoding.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  "invalid search request",
			Err:      geocoding.ErrInvalidInput,
		}
	default:
		return nil, &geocoding.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  fmt.Sprintf("geocoding provider returned status %d", resp.StatusCode),
			Err:      geocoding.ErrProviderUnavailable,
		}
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, &geocoding.Error{
			Provider: ProviderName,
			Code:     "DECODE_FAILED",
			Message:  "malformed search response",
			Err:      geocoding.ErrProviderUnavailable,
		}
	}

	places := make([]geocoding.Place, 0, len(results))
	for _, r := range results {
		coord, err := r.coordinate()
		if err != nil {
			c.logger.Debug().Err(err).Int64("place_id", r.PlaceID).Msg("skipping result with bad coordinate")
			continue
		}
		places = append(places, geocoding.Place{
			DisplayName: r.DisplayName,
			Coordinate:  coord,
		})
	}

	c.logger.Debug().
		Int("candidates", len(places)).
		Msg("received search results from nominatim")

	return places, nil
}

// searchResult is one entry of a format=jsonv2 search response.
type searchResult struct {
	PlaceID     int64   `json:"place_id"`
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Category    string  `json:"category"`
	Type        string  `json:"type"`
	Importance  float64 `json:"importance"`
}

func (r searchResult) coordinate() (geo.Coordinate, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("parse lat %q: %w", r.Lat, err)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("parse lon %q: %w", r.Lon, err)
	}
	c := geo.Coordinate{Lat: lat, Lon: lon}
	return c, c.Validate()
}
