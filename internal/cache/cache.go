// Package cache provides the byte-oriented cache shared by the geocoding and
// routing services, backed by process memory or Redis.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Cache stores opaque values with a TTL. Misses and backend failures both
// report found=false; backend failures are logged, never returned.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Stats() Stats
	Close() error
}

// Stats are cumulative counters for a cache instance.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Items  int   `json:"items"`
}

// Config selects and configures a backend.
type Config struct {
	// RedisAddr enables the Redis backend when non-empty.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Prefix namespaces every key. Default: "carpool:"
	Prefix string

	// DefaultTTL applies when Set is called with ttl <= 0. Default: 10 minutes
	DefaultTTL time.Duration

	// CleanupInterval is how often the memory backend purges expired items.
	// Zero disables purging. New defaults it to 2*DefaultTTL.
	CleanupInterval time.Duration

	Logger zerolog.Logger
}

// New returns a Redis cache when configured and reachable, otherwise an in-memory cache.
func New(ctx context.Context, cfg Config) Cache {
	if cfg.Prefix == "" {
		cfg.Prefix = "carpool:"
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 10 * time.Minute
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 2 * cfg.DefaultTTL
	}

	if cfg.RedisAddr != "" {
		rc, err := NewRedis(ctx, cfg)
		if err == nil {
			return rc
		}
		cfg.Logger.Warn().
			Err(err).
			Str("addr", cfg.RedisAddr).
			Msg("redis unavailable, falling back to in-memory cache")
	}
	return NewMemory(cfg)
}

// GetJSON decodes a cached JSON value into dst. A value that fails to decode counts as a miss.
func GetJSON(ctx context.Context, c Cache, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}

// SetJSON encodes value as JSON and stores it. Encoding failures are dropped.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	c.Set(ctx, key, raw, ttl)
}
