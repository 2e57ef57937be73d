// Package openrouteservice provides a client for the OpenRouteService (Pelias)
// geocoding API. It implements both geocoding.Provider and suggest.Provider.
package openrouteservice

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

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/mockcarpool/carpool/internal/geo"
	"github.com/mockcarpool/carpool/internal/geocoding"
	"github.com/mockcarpool/carpool/internal/provider/resilience"
	"github.com/mockcarpool/carpool/internal/suggest"
)

const (
	// ProviderName identifies this geocoding provider.
	ProviderName = "openrouteservice-geocode"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// autocompleteLayers restricts suggestions to addressable results.
	autocompleteLayers = "address,venue,street,locality"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the geocoding client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the per-attempt request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client is an OpenRouteService geocoding client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new geocoding client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Search runs a forward geocode and returns candidates in provider rank order.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]geocoding.Place, error) {
	params := url.Values{}
	params.Set("text", query)
	if limit > 0 {
		params.Set("size", strconv.Itoa(limit))
	}

	fc, err := c.get(ctx, "/geocode/search", params)
	if err != nil {
		return nil, err
	}

	places := make([]geocoding.Place, 0, len(fc.Features))
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		label := f.Properties.MustString("label", f.Properties.MustString("name", ""))
		if label == "" {
			continue
		}
		places = append(places, geocoding.Place{
			DisplayName: label,
			Coordinate:  geo.FromPoint(pt),
		})
	}

	c.logger.Debug().
		Int("candidates", len(places)).
		Msg("received geocode results from ORS")

	return places, nil
}

// ResolveToken decodes a suggestion token produced by Autocomplete.
func (c *Client) ResolveToken(_ context.Context, token string) (*geocoding.Place, error) {
	return decodeToken(token)
}

// Autocomplete implements suggest.Provider. It emits one list per call.
func (c *Client) Autocomplete(ctx context.Context, req suggest.Request, emit func([]suggest.Suggestion)) error {
	params := url.Values{}
	params.Set("text", req.Text)
	params.Set("layers", autocompleteLayers)
	if req.Limit > 0 {
		params.Set("size", strconv.Itoa(req.Limit))
	}

	fc, err := c.get(ctx, "/geocode/autocomplete", params)
	if err != nil {
		return err
	}

	list := make([]suggest.Suggestion, 0, len(fc.Features))
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		name := f.Properties.MustString("name", "")
		label := f.Properties.MustString("label", name)
		if name == "" {
			name = label
		}
		list = append(list, suggest.Suggestion{
			Title:    name,
			Subtitle: subtitle(name, label),
			Token: encodeToken(suggestionToken{
				GID:   f.Properties.MustString("gid", ""),
				Label: label,
				Lat:   pt.Lat(),
				Lon:   pt.Lon(),
			}),
		})
	}

	emit(list)
	return nil
}

// subtitle strips the leading name from a Pelias label ("Louvre, Paris, France" -> "Paris, France").
func subtitle(name, label string) string {
	if rest, ok := strings.CutPrefix(label, name); ok {
		return strings.TrimLeft(rest, ", ")
	}
	return label
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (*geojson.FeatureCollection, error) {
	reqURL := c.baseURL + path + "?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

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

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, &geocoding.Error{
			Provider: ProviderName,
			Code:     "DECODE_FAILED",
			Message:  "malformed geocoding response",
			Err:      geocoding.ErrProviderUnavailable,
		}
	}
	return fc, nil
}

// handleErrorResponse maps ORS error responses to domain errors.
func handleErrorResponse(statusCode int, body []byte) error {
	var orsErr errorResponse
	_ = json.Unmarshal(body, &orsErr)
	message := orsErr.message()

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &geocoding.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      geocoding.ErrRateLimitExceeded,
		}
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &geocoding.Error{
			Provider: ProviderName,
			Code:     "FORBIDDEN",
			Message:  "API access denied - check API key configuration",
			Err:      geocoding.ErrProviderUnavailable,
		}
	case statusCode == http.StatusBadRequest:
		if message == "" {
			message = "invalid geocoding request"
		}
		return &geocoding.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  message,
			Err:      geocoding.ErrInvalidInput,
		}
	case statusCode >= 500:
		return &geocoding.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "geocoding provider is temporarily unavailable",
			Err:      geocoding.ErrProviderUnavailable,
		}
	default:
		if message == "" {
			message = fmt.Sprintf("geocoding provider returned status %d", statusCode)
		}
		return &geocoding.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  message,
			Err:      geocoding.ErrProviderUnavailable,
		}
	}
}
