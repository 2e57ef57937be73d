package session

import (
	"errors"

	"github.com/mockcarpool/carpool/internal/geocoding"
	"github.com/mockcarpool/carpool/internal/routing"
)

var (
	// ErrSessionClosed is returned by every operation on a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionNotFound is returned by the manager for unknown or expired IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTooManySessions is returned when the manager is at capacity.
	ErrTooManySessions = errors.New("too many sessions")
	// ErrUnknownField is returned for a field other than start or end.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidSuggestion is returned when selecting a suggestion that is not shown.
	ErrInvalidSuggestion = errors.New("no such suggestion")
)

// FailureKind classifies user-visible failures.
type FailureKind string

const (
	FailureNotFound     FailureKind = "not_found"
	FailureNoRoute      FailureKind = "no_route"
	FailureProvider     FailureKind = "provider_error"
	FailureInvalidInput FailureKind = "invalid_input"
)

// User-visible failure messages.
const (
	MessageNotFound         = "location not found"
	MessageSearchFailed     = "search failed"
	MessageRouteUnavailable = "route unavailable"
	MessageMissingLocation  = "enter a location"
)

// Failure is the last user-visible error. Field is empty for route-level failures.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Field   FieldID     `json:"field,omitempty"`
	Message string      `json:"message"`
}

func (f *Failure) Error() string {
	if f.Field != "" {
		return string(f.Field) + ": " + f.Message
	}
	return f.Message
}

// fieldError tags a resolution error with the field that produced it.
type fieldError struct {
	field FieldID
	err   error
}

func (e *fieldError) Error() string { return string(e.field) + ": " + e.err.Error() }
func (e *fieldError) Unwrap() error { return e.err }

func resolutionFailure(field FieldID, err error) *Failure {
	switch {
	case errors.Is(err, geocoding.ErrNotFound):
		return &Failure{Kind: FailureNotFound, Field: field, Message: MessageNotFound}
	case errors.Is(err, geocoding.ErrInvalidInput):
		return &Failure{Kind: FailureInvalidInput, Field: field, Message: MessageMissingLocation}
	default:
		return &Failure{Kind: FailureProvider, Field: field, Message: MessageSearchFailed}
	}
}

func routeFailure(err error) *Failure {
	if errors.Is(err, routing.ErrNoRouteFound) {
		return &Failure{Kind: FailureNoRoute, Message: MessageRouteUnavailable}
	}
	return &Failure{Kind: FailureProvider, Message: MessageRouteUnavailable}
}
