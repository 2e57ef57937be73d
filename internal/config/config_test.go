package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "carpool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithKey(t *testing.T) {
	t.Setenv("ORS_API_KEY", "test-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, GeocoderOpenRouteService, cfg.Providers.Geocoder)
	assert.Equal(t, "test-key", cfg.Providers.OpenRouteService.APIKey)
	assert.Equal(t, 300*time.Millisecond, cfg.Engine.Debounce)
	assert.Equal(t, 30*time.Minute, cfg.Engine.SessionIdleTTL)
	assert.Equal(t, 1.0, cfg.Providers.Nominatim.RequestsPerSecond)
}

func TestLoad_MissingAPIKey(t *testing.T) {
	t.Setenv("ORS_API_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apiKey is required")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
  corsOrigins: ["https://app.example.com"]
providers:
  geocoder: nominatim
  openrouteservice:
    apiKey: file-key
engine:
  debounce: 350ms
  routeTimeout: 12s
cache:
  redisAddr: localhost:6379
  warmQueries: ["Gare du Nord", "Orly Airport"]
`)
	t.Setenv("ORS_API_KEY", "")
	t.Setenv("APP_PORT", "7070")
	t.Setenv("ENGINE_DEBOUNCE", "275ms")
	t.Setenv("REQUIRE_TLS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Server.RequireTLS)
	assert.Equal(t, GeocoderNominatim, cfg.Providers.Geocoder)
	assert.Equal(t, "file-key", cfg.Providers.OpenRouteService.APIKey)
	assert.Equal(t, 275*time.Millisecond, cfg.Engine.Debounce)
	assert.Equal(t, 12*time.Second, cfg.Engine.RouteTimeout)
	assert.Equal(t, 10*time.Second, cfg.Engine.ResolveTimeout, "unset keys keep defaults")
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, []string{"Gare du Nord", "Orly Airport"}, cfg.Cache.WarmQueries)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, "engine:\n  debounse: 300ms\n")
	t.Setenv("ORS_API_KEY", "k")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("ORS_API_KEY", "k")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Engine, cfg.Engine)
}

func TestLoad_BadEnvDuration(t *testing.T) {
	t.Setenv("ORS_API_KEY", "k")
	t.Setenv("ENGINE_ROUTE_TIMEOUT", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENGINE_ROUTE_TIMEOUT")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		c := Default()
		c.Providers.OpenRouteService.APIKey = "k"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"debounce too short", func(c *Config) { c.Engine.Debounce = 100 * time.Millisecond }, "engine.debounce"},
		{"debounce too long", func(c *Config) { c.Engine.Debounce = 500 * time.Millisecond }, "engine.debounce"},
		{"debounce lower bound", func(c *Config) { c.Engine.Debounce = MinDebounce }, ""},
		{"route timeout zero", func(c *Config) { c.Engine.RouteTimeout = 0 }, "engine.routeTimeout"},
		{"resolve timeout too long", func(c *Config) { c.Engine.ResolveTimeout = 20 * time.Second }, "engine.resolveTimeout"},
		{"timeout upper bound", func(c *Config) { c.Engine.SuggestTimeout = MaxTimeout }, ""},
		{"unknown geocoder", func(c *Config) { c.Providers.Geocoder = "bing" }, "unknown geocoder"},
		{"production without key", func(c *Config) { c.Server.Env = "production" }, "signingKey"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
