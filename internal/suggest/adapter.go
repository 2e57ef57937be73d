package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	Provider Provider

	// MaxResults caps each list. Default: 8
	MaxResults int

	// Timeout bounds one query. Default: 10 seconds
	Timeout time.Duration

	Logger zerolog.Logger
}

// Adapter turns raw provider output into clean suggestion lists.
type Adapter struct {
	provider   Provider
	maxResults int
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewAdapter creates an Adapter.
func NewAdapter(cfg AdapterConfig) *Adapter {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Adapter{
		provider:   cfg.Provider,
		maxResults: cfg.MaxResults,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger.With().Str("component", "suggest").Logger(),
	}
}

// Stream queries the provider and calls onUpdate with every cleaned list it emits.
// No update is delivered once ctx is done. Cancellation by the caller is returned
// as-is; any other failure, including the timeout, wraps ErrProviderUnavailable.
func (a *Adapter) Stream(parent context.Context, text string, onUpdate func([]Suggestion)) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyQuery
	}

	ctx, cancel := context.WithTimeout(parent, a.timeout)
	defer cancel()

	req := Request{Text: text, Kind: KindAddress, Limit: a.maxResults}
	start := time.Now()

	err := a.provider.Autocomplete(ctx, req, func(list []Suggestion) {
		if ctx.Err() != nil {
			return
		}
		onUpdate(a.clean(list))
	})
	if err != nil {
		if errors.Is(parent.Err(), context.Canceled) {
			return parent.Err()
		}
		a.logger.Warn().
			Err(err).
			Str("provider", a.provider.Name()).
			Dur("elapsed", time.Since(start)).
			Msg("autocomplete failed")
		return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, a.provider.Name(), err)
	}

	a.logger.Debug().
		Str("provider", a.provider.Name()).
		Int("query_len", len(text)).
		Dur("elapsed", time.Since(start)).
		Msg("autocomplete completed")
	return nil
}

// Fetch is the request/response form of Stream; it returns the last list emitted.
func (a *Adapter) Fetch(ctx context.Context, text string) ([]Suggestion, error) {
	var last []Suggestion
	err := a.Stream(ctx, text, func(list []Suggestion) {
		last = list
	})
	if err != nil {
		return nil, err
	}
	if last == nil {
		last = []Suggestion{}
	}
	return last, nil
}

// clean trims titles, drops blanks and duplicates and caps the list.
func (a *Adapter) clean(list []Suggestion) []Suggestion {
	out := make([]Suggestion, 0, min(len(list), a.maxResults))
	seen := make(map[string]struct{}, len(list))

	for _, s := range list {
		s.Title = strings.TrimSpace(s.Title)
		s.Subtitle = strings.TrimSpace(s.Subtitle)
		if s.Title == "" {
			continue
		}
		key := strings.ToLower(s.Title + "\x00" + s.Subtitle)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
		if len(out) == a.maxResults {
			break
		}
	}
	return out
}
