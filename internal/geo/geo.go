// Package geo provides the coordinate and bounding box types shared by the engine.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ErrInvalidCoordinate indicates a latitude or longitude outside the valid range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// metersPerDegreeLat is the length of one degree of latitude.
const metersPerDegreeLat = 111320.0

// Coordinate represents a geographic point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the coordinate is within valid ranges.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %f out of range [-90, 90]", ErrInvalidCoordinate, c.Lat)
	}
	if math.IsNaN(c.Lon) || c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("%w: longitude %f out of range [-180, 180]", ErrInvalidCoordinate, c.Lon)
	}
	return nil
}

// Point converts the coordinate to an orb point ([lon, lat] order).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// FromPoint converts an orb point to a Coordinate.
func FromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lon: p.Lon()}
}

// LineString converts a coordinate sequence to an orb line string.
func LineString(coords []Coordinate) orb.LineString {
	ls := make(orb.LineString, 0, len(coords))
	for _, c := range coords {
		ls = append(ls, c.Point())
	}
	return ls
}

// FromLineString converts an orb line string to a coordinate sequence.
func FromLineString(ls orb.LineString) []Coordinate {
	if len(ls) == 0 {
		return nil
	}
	coords := make([]Coordinate, 0, len(ls))
	for _, p := range ls {
		coords = append(coords, FromPoint(p))
	}
	return coords
}

// BoundingBox is a geographic rectangle.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MinLon float64 `json:"minLon"`
	MaxLat float64 `json:"maxLat"`
	MaxLon float64 `json:"maxLon"`
}

// FromBound converts an orb bound to a BoundingBox.
func FromBound(b orb.Bound) BoundingBox {
	return BoundingBox{
		MinLat: b.Min.Lat(),
		MinLon: b.Min.Lon(),
		MaxLat: b.Max.Lat(),
		MaxLon: b.Max.Lon(),
	}
}

// Bound converts the box to an orb bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLon, b.MinLat},
		Max: orb.Point{b.MaxLon, b.MaxLat},
	}
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Coordinate {
	return FromPoint(b.Bound().Center())
}

// Contains reports whether the coordinate lies inside the box.
func (b BoundingBox) Contains(c Coordinate) bool {
	return b.Bound().Contains(c.Point())
}

// BoxAround returns a square box of the given side length in meters centered on c.
// Longitude span is corrected for latitude and clamped to valid ranges.
func BoxAround(c Coordinate, sideMeters float64) BoundingBox {
	halfLat := (sideMeters / 2) / metersPerDegreeLat
	cosLat := math.Cos(c.Lat * math.Pi / 180)
	halfLon := halfLat
	if cosLat > 1e-6 {
		halfLon = halfLat / cosLat
	}
	return BoundingBox{
		MinLat: math.Max(c.Lat-halfLat, -90),
		MinLon: math.Max(c.Lon-halfLon, -180),
		MaxLat: math.Min(c.Lat+halfLat, 90),
		MaxLon: math.Min(c.Lon+halfLon, 180),
	}
}
