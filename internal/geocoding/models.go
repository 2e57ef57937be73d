// Package geocoding resolves free-text locations into a single coordinate.
package geocoding

import (
	"context"
	"errors"

	"github.com/mockcarpool/carpool/internal/geo"
)

// Sentinel errors for geocoding operations.
var (
	// ErrNotFound indicates the provider returned no candidates.
	ErrNotFound = errors.New("location not found")
	// ErrProviderUnavailable indicates the provider failed, timed out or its circuit is open.
	ErrProviderUnavailable = errors.New("geocoding provider unavailable")
	// ErrRateLimitExceeded indicates the provider quota has been exceeded.
	ErrRateLimitExceeded = errors.New("geocoding rate limit exceeded")
	// ErrInvalidInput indicates an empty or unusable query.
	ErrInvalidInput = errors.New("invalid geocoding query")
	// ErrInvalidToken indicates a suggestion token that cannot be resolved.
	ErrInvalidToken = errors.New("invalid suggestion token")
)

// Place is a resolved location.
type Place struct {
	DisplayName string         `json:"displayName"`
	Coordinate  geo.Coordinate `json:"coordinate"`
}

// Provider is a forward geocoding backend. Candidates are ordered best first.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Place, error)
	Name() string
}

// TokenResolver is implemented by providers whose suggestions carry enough
// data to resolve a place without a text search.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (*Place, error)
}

// Error provides detailed error information from a geocoding provider.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true for transient provider failures.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
