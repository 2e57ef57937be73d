// Package worker runs background jobs that keep lookup caches warm.
package worker

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockcarpool/carpool/internal/geocoding"
)

// Resolver resolves free text to a place, caching the result.
type Resolver interface {
	Resolve(ctx context.Context, text string) (*geocoding.Place, error)
}

// WarmupConfig configures which places are resolved ahead of user requests.
type WarmupConfig struct {
	// Queries are place texts to resolve, e.g. frequent pickup points.
	Queries []string

	// Concurrency is the number of parallel lookups (default: 3).
	Concurrency int

	// Timeout bounds each lookup (default: 10 seconds).
	Timeout time.Duration
}

// WarmupJobConfig holds configuration for creating a WarmupJob.
type WarmupJobConfig struct {
	Config   WarmupConfig
	Resolver Resolver
	Logger   zerolog.Logger
}

// WarmupMetrics tracks warmup job statistics.
type WarmupMetrics struct {
	Runs            int64
	Resolved        int64
	Failed          int64
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
	LastFailedQuery string
}

// WarmupJob resolves the configured queries so the geocoding cache holds them.
type WarmupJob struct {
	config   WarmupConfig
	resolver Resolver
	logger   zerolog.Logger

	mu      sync.RWMutex
	metrics WarmupMetrics
}

// NewWarmupJob creates a new warmup job.
func NewWarmupJob(cfg WarmupJobConfig) *WarmupJob {
	config := cfg.Config
	if config.Concurrency <= 0 {
		config.Concurrency = 3
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	config.Queries = dedupe(config.Queries)

	return &WarmupJob{
		config:   config,
		resolver: cfg.Resolver,
		logger:   cfg.Logger.With().Str("component", "warmup").Logger(),
	}
}

// WarmupResult contains the result of one run.
type WarmupResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Errors     []WarmupError
}

// WarmupError records a query that could not be resolved.
type WarmupError struct {
	Query string
	Error string
}

// Run resolves every configured query once.
func (j *WarmupJob) Run(ctx context.Context) *WarmupResult {
	startTime := time.Now()
	result := &WarmupResult{
		StartTime: startTime,
		Total:     len(j.config.Queries),
	}

	j.logger.Info().
		Int("queries", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting cache warmup")

	queries := make(chan string, len(j.config.Queries))
	results := make(chan queryResult, len(j.config.Queries))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.warmWorker(ctx, queries, results)
		}()
	}

	for _, q := range j.config.Queries {
		queries <- q
	}
	close(queries)

	go func() {
		wg.Wait()
		close(results)
	}()

	for qr := range results {
		if qr.err == nil {
			result.Successful++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, WarmupError{Query: qr.query, Error: qr.err.Error()})
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("cache warmup completed")

	return result
}

// Every runs the job immediately and then at each interval until ctx is done.
// A non-positive interval runs it once.
func (j *WarmupJob) Every(ctx context.Context, interval time.Duration) {
	if len(j.config.Queries) == 0 {
		return
	}
	j.Run(ctx)
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

type queryResult struct {
	query string
	err   error
}

func (j *WarmupJob) warmWorker(ctx context.Context, queries <-chan string, results chan<- queryResult) {
	for q := range queries {
		select {
		case <-ctx.Done():
			results <- queryResult{query: q, err: ctx.Err()}
		default:
			results <- queryResult{query: q, err: j.warm(ctx, q)}
		}
	}
}

func (j *WarmupJob) warm(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	place, err := j.resolver.Resolve(ctx, query)
	if err != nil {
		j.logger.Warn().Err(err).Str("query", query).Msg("warmup lookup failed")
		return err
	}
	j.logger.Debug().
		Str("query", query).
		Str("place", place.DisplayName).
		Msg("warmed place")
	return nil
}

func (j *WarmupJob) updateMetrics(result *WarmupResult) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.metrics.Runs++
	j.metrics.Resolved += int64(result.Successful)
	j.metrics.Failed += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
	if n := len(result.Errors); n > 0 {
		j.metrics.LastFailedQuery = result.Errors[n-1].Query
	}
}

// GetMetrics returns a copy of the current metrics.
func (j *WarmupJob) GetMetrics() WarmupMetrics {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.metrics
}

func dedupe(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = geocoding.NormalizeQuery(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}
