// Package suggest adapts external autocomplete providers into bounded,
// de-duplicated suggestion lists.
package suggest

import (
	"context"
	"errors"
)

var (
	// ErrEmptyQuery is returned for blank text; no provider call is made.
	ErrEmptyQuery = errors.New("empty suggestion query")

	// ErrProviderUnavailable indicates the provider failed or timed out.
	ErrProviderUnavailable = errors.New("suggestion provider unavailable")
)

// ResultKind restricts what a provider returns.
type ResultKind string

const (
	// KindAddress asks for addresses and points of interest.
	KindAddress ResultKind = "address"
)

// Suggestion is one autocomplete candidate.
type Suggestion struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	// Token is opaque provider data that lets the geocoder resolve the
	// suggestion without a second text search. It may be empty.
	Token string `json:"-"`
}

// Request is a single autocomplete query.
type Request struct {
	Text  string
	Kind  ResultKind
	Limit int
}

// Provider is an external autocomplete source. Implementations call emit with
// each complete replacement list they produce; most emit exactly once.
// Autocomplete returns after the last emit or on error.
type Provider interface {
	Name() string
	Autocomplete(ctx context.Context, req Request, emit func([]Suggestion)) error
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request, emit func([]Suggestion)) error

func (f ProviderFunc) Name() string { return "func" }

func (f ProviderFunc) Autocomplete(ctx context.Context, req Request, emit func([]Suggestion)) error {
	return f(ctx, req, emit)
}
