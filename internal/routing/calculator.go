package routing

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mockcarpool/carpool/internal/geo"
	"github.com/mockcarpool/carpool/pkg/polyline"
)

// Directions is anything that can answer a directions request: a Provider or a Service.
type Directions interface {
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	Name() string
}

// Result is the route chosen for a pair of places.
type Result struct {
	Polyline        []geo.Coordinate `json:"polyline"`
	DistanceMeters  float64          `json:"distanceMeters"`
	DurationSeconds float64          `json:"durationSeconds"`
	Provider        string           `json:"provider"`
}

// Distance is the formatted distance, e.g. "12.35 km".
func (r *Result) Distance() string {
	return FormatDistance(r.DistanceMeters)
}

// TravelTime is the formatted duration, e.g. "2 h 5 min".
func (r *Result) TravelTime() string {
	return FormatDuration(r.DurationSeconds)
}

// CalculatorConfig configures a Calculator.
type CalculatorConfig struct {
	Directions Directions

	// Timeout bounds one route computation (default: 15 seconds).
	Timeout time.Duration

	Logger zerolog.Logger
}

// Calculator turns two coordinates into a single drive route.
type Calculator struct {
	directions Directions
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewCalculator creates a Calculator.
func NewCalculator(cfg CalculatorConfig) *Calculator {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Calculator{
		directions: cfg.Directions,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
}

// ComputeRoute requests drive directions and selects the first candidate route.
// A missing or undecodable geometry degrades to the straight from-to segment.
func (c *Calculator) ComputeRoute(ctx context.Context, from, to geo.Coordinate) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.directions.GetDirections(ctx, DirectionsRequest{
		Origin:      from,
		Destination: to,
		Profile:     ProfileDrive,
	})
	if err != nil {
		return nil, c.classify(err)
	}
	if resp == nil || len(resp.Routes) == 0 {
		return nil, &Error{
			Provider: c.directions.Name(),
			Code:     "NO_ROUTE",
			Message:  "provider returned no routes",
			Err:      ErrNoRouteFound,
		}
	}

	route := resp.Routes[0]
	line, err := polyline.Decode(route.GeometryPolyline)
	if err != nil || len(line) < 2 {
		c.logger.Warn().
			Err(err).
			Str("provider", c.directions.Name()).
			Msg("route geometry unusable, using straight segment")
		line = geo.LineString([]geo.Coordinate{from, to})
	}

	distance := route.DistanceMeters
	if distance <= 0 {
		distance = polyline.Length(line)
	}

	result := &Result{
		Polyline:        geo.FromLineString(line),
		DistanceMeters:  distance,
		DurationSeconds: route.DurationSeconds,
		Provider:        resp.Provider,
	}

	c.logger.Debug().
		Float64("distance_m", result.DistanceMeters).
		Float64("duration_s", result.DurationSeconds).
		Int("points", len(result.Polyline)).
		Int("candidates", len(resp.Routes)).
		Msg("route computed")

	return result, nil
}

func (c *Calculator) classify(err error) error {
	var rerr *Error
	if errors.As(err, &rerr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	code := "REQUEST_FAILED"
	if errors.Is(err, context.DeadlineExceeded) {
		code = "TIMEOUT"
	}
	return &Error{
		Provider: c.directions.Name(),
		Code:     code,
		Message:  "route request failed",
		Err:      ErrProviderUnavailable,
	}
}
