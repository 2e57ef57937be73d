// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the YAML file path.
const EnvConfigPath = "CARPOOL_CONFIG"

// Geocoder backends.
const (
	GeocoderOpenRouteService = "openrouteservice"
	GeocoderNominatim        = "nominatim"
)

// Limits enforced by Validate.
const (
	MinDebounce = 250 * time.Millisecond
	MaxDebounce = 400 * time.Millisecond
	MaxTimeout  = 15 * time.Second
)

// Config is the complete service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Engine    EngineConfig    `yaml:"engine"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port        string   `yaml:"port"`
	Env         string   `yaml:"env"`
	CORSOrigins []string `yaml:"corsOrigins"`
	// RequireTLS rejects requests that did not arrive over HTTPS.
	RequireTLS bool `yaml:"requireTls"`
}

// ProvidersConfig selects and configures the upstream providers.
type ProvidersConfig struct {
	// Geocoder is "openrouteservice" or "nominatim". Suggestions always come
	// from openrouteservice since nominatim has no autocomplete.
	Geocoder         string                 `yaml:"geocoder"`
	OpenRouteService OpenRouteServiceConfig `yaml:"openrouteservice"`
	Nominatim        NominatimConfig        `yaml:"nominatim"`
}

// OpenRouteServiceConfig configures the openrouteservice clients.
type OpenRouteServiceConfig struct {
	APIKey            string        `yaml:"apiKey"`
	BaseURL           string        `yaml:"baseUrl"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
}

// NominatimConfig configures the nominatim client.
type NominatimConfig struct {
	BaseURL           string        `yaml:"baseUrl"`
	UserAgent         string        `yaml:"userAgent"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
}

// EngineConfig tunes session behavior.
type EngineConfig struct {
	Debounce       time.Duration `yaml:"debounce"`
	SuggestTimeout time.Duration `yaml:"suggestTimeout"`
	ResolveTimeout time.Duration `yaml:"resolveTimeout"`
	RouteTimeout   time.Duration `yaml:"routeTimeout"`
	MaxSuggestions int           `yaml:"maxSuggestions"`
	SessionIdleTTL time.Duration `yaml:"sessionIdleTtl"`
	MaxSessions    int           `yaml:"maxSessions"`
}

// CacheConfig configures lookup caching. An empty RedisAddr keeps the cache in memory.
type CacheConfig struct {
	GeocodeTTL    time.Duration `yaml:"geocodeTtl"`
	RouteTTL      time.Duration `yaml:"routeTtl"`
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDb"`

	// WarmQueries are resolved at startup and every WarmInterval so their
	// places are cached before users ask for them.
	WarmQueries  []string      `yaml:"warmQueries"`
	WarmInterval time.Duration `yaml:"warmInterval"`
}

// AuthConfig configures session tokens.
type AuthConfig struct {
	SigningKey string        `yaml:"signingKey"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	TokenTTL   time.Duration `yaml:"tokenTtl"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port: "8080",
			Env:  "development",
		},
		Providers: ProvidersConfig{
			Geocoder: GeocoderOpenRouteService,
			OpenRouteService: OpenRouteServiceConfig{
				BaseURL: "https://api.openrouteservice.org",
				Timeout: 10 * time.Second,
			},
			Nominatim: NominatimConfig{
				BaseURL:           "https://nominatim.openstreetmap.org",
				UserAgent:         "carpool/1.0",
				Timeout:           10 * time.Second,
				RequestsPerSecond: 1,
			},
		},
		Engine: EngineConfig{
			Debounce:       300 * time.Millisecond,
			SuggestTimeout: 10 * time.Second,
			ResolveTimeout: 10 * time.Second,
			RouteTimeout:   15 * time.Second,
			MaxSuggestions: 8,
			SessionIdleTTL: 30 * time.Minute,
			MaxSessions:    1000,
		},
		Cache: CacheConfig{
			GeocodeTTL: 10 * time.Minute,
			RouteTTL:   5 * time.Minute,
		},
		Auth: AuthConfig{
			Issuer:   "carpool",
			Audience: "carpool-sessions",
			TokenTTL: 12 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// non-empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by CARPOOL_CONFIG, if any.
func LoadFromEnv() (Config, error) {
	return Load(os.Getenv(EnvConfigPath))
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Validate checks ranges and required values.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}

	switch c.Providers.Geocoder {
	case GeocoderOpenRouteService, GeocoderNominatim:
	default:
		errs = append(errs, fmt.Errorf("providers.geocoder: unknown geocoder %q", c.Providers.Geocoder))
	}
	if c.Providers.OpenRouteService.APIKey == "" {
		errs = append(errs, errors.New("providers.openrouteservice.apiKey is required"))
	}
	if c.Providers.Geocoder == GeocoderNominatim && c.Providers.Nominatim.UserAgent == "" {
		errs = append(errs, errors.New("providers.nominatim.userAgent is required"))
	}

	if d := c.Engine.Debounce; d < MinDebounce || d > MaxDebounce {
		errs = append(errs, fmt.Errorf("engine.debounce %s outside [%s, %s]", d, MinDebounce, MaxDebounce))
	}
	timeouts := []struct {
		name  string
		value time.Duration
	}{
		{"engine.suggestTimeout", c.Engine.SuggestTimeout},
		{"engine.resolveTimeout", c.Engine.ResolveTimeout},
		{"engine.routeTimeout", c.Engine.RouteTimeout},
		{"providers.openrouteservice.timeout", c.Providers.OpenRouteService.Timeout},
		{"providers.nominatim.timeout", c.Providers.Nominatim.Timeout},
	}
	for _, t := range timeouts {
		if t.value <= 0 || t.value > MaxTimeout {
			errs = append(errs, fmt.Errorf("%s %s outside (0, %s]", t.name, t.value, MaxTimeout))
		}
	}
	if c.Engine.MaxSuggestions <= 0 {
		errs = append(errs, errors.New("engine.maxSuggestions must be positive"))
	}
	if c.Engine.SessionIdleTTL <= 0 {
		errs = append(errs, errors.New("engine.sessionIdleTtl must be positive"))
	}

	if c.IsProduction() && c.Auth.SigningKey == "" {
		errs = append(errs, errors.New("auth.signingKey is required in production"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.tokenTtl must be positive"))
	}

	return errors.Join(errs...)
}
