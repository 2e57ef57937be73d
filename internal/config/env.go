package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overrides cfg with any set environment variables.
func applyEnv(cfg *Config) error {
	cfg.Server.Port = getEnvOrDefault("APP_PORT", cfg.Server.Port)
	cfg.Server.Env = getEnvOrDefault("APP_ENV", cfg.Server.Env)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	p := &cfg.Providers
	p.Geocoder = getEnvOrDefault("GEOCODER", p.Geocoder)
	p.OpenRouteService.APIKey = getEnvOrDefault("ORS_API_KEY", p.OpenRouteService.APIKey)
	p.OpenRouteService.BaseURL = getEnvOrDefault("ORS_BASE_URL", p.OpenRouteService.BaseURL)
	p.Nominatim.BaseURL = getEnvOrDefault("NOMINATIM_BASE_URL", p.Nominatim.BaseURL)
	p.Nominatim.UserAgent = getEnvOrDefault("NOMINATIM_USER_AGENT", p.Nominatim.UserAgent)

	cfg.Cache.RedisAddr = getEnvOrDefault("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", cfg.Cache.RedisPassword)
	if v := os.Getenv("CACHE_WARM_QUERIES"); v != "" {
		cfg.Cache.WarmQueries = splitList(v)
	}

	cfg.Auth.SigningKey = getEnvOrDefault("JWT_SIGNING_KEY", cfg.Auth.SigningKey)

	cfg.Telemetry.OTLPEndpoint = getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ENGINE_DEBOUNCE", &cfg.Engine.Debounce},
		{"ENGINE_SUGGEST_TIMEOUT", &cfg.Engine.SuggestTimeout},
		{"ENGINE_RESOLVE_TIMEOUT", &cfg.Engine.ResolveTimeout},
		{"ENGINE_ROUTE_TIMEOUT", &cfg.Engine.RouteTimeout},
		{"SESSION_IDLE_TTL", &cfg.Engine.SessionIdleTTL},
		{"CACHE_GEOCODE_TTL", &cfg.Cache.GeocodeTTL},
		{"CACHE_ROUTE_TTL", &cfg.Cache.RouteTTL},
		{"CACHE_WARM_INTERVAL", &cfg.Cache.WarmInterval},
	}
	for _, d := range durations {
		if err := durationEnv(d.key, d.dst); err != nil {
			return err
		}
	}

	if err := intEnv("ENGINE_MAX_SUGGESTIONS", &cfg.Engine.MaxSuggestions); err != nil {
		return err
	}
	if err := intEnv("MAX_SESSIONS", &cfg.Engine.MaxSessions); err != nil {
		return err
	}
	if err := intEnv("REDIS_DB", &cfg.Cache.RedisDB); err != nil {
		return err
	}

	if v := os.Getenv("REQUIRE_TLS"); v != "" {
		cfg.Server.RequireTLS = v == "true"
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		cfg.Telemetry.Enabled = v == "true"
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func intEnv(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
