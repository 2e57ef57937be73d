// Package routing computes drivable routes between two resolved places.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/mockcarpool/carpool/internal/geo"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down, timed out or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Provider defines the interface for directions providers.
type Provider interface {
	// GetDirections retrieves candidate routes between two points, best first.
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// RouteProfile represents a routing profile (mode of transport).
type RouteProfile string

// ProfileDrive is the only supported profile.
const ProfileDrive RouteProfile = "driving-car"

// DirectionsRequest is the request for computing routes.
type DirectionsRequest struct {
	Origin      geo.Coordinate
	Destination geo.Coordinate
	Profile     RouteProfile
}

// DirectionsResponse holds candidate routes.
type DirectionsResponse struct {
	Routes    []Route   `json:"routes"`
	Provider  string    `json:"provider"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Route is one candidate route as returned by a provider.
type Route struct {
	GeometryPolyline string           `json:"geometry"` // Encoded polyline (precision 5)
	DistanceMeters   float64          `json:"distanceMeters"`
	DurationSeconds  float64          `json:"durationSeconds"`
	BoundingBox      *geo.BoundingBox `json:"bbox,omitempty"`
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
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

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
