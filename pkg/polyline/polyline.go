// Package polyline encodes and decodes route geometry in the encoded polyline format
// used by openrouteservice, Google and OSRM.
// The algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

// Precision values supported by common providers.
const (
	// Precision5 is the Google/openrouteservice default (1e5).
	Precision5 = 5
	// Precision6 is used by OSRM and Valhalla "polyline6".
	Precision6 = 6
)

// ErrTruncated indicates the encoded string ended in the middle of a value.
var ErrTruncated = errors.New("polyline: truncated input")

// ErrInvalidPrecision indicates a precision outside the supported range.
var ErrInvalidPrecision = errors.New("polyline: precision must be between 1 and 8")

// Decode decodes a precision-5 polyline into a line string ([lon, lat] points).
func Decode(encoded string) (orb.LineString, error) {
	return DecodePrecision(encoded, Precision5)
}

// DecodePrecision decodes a polyline encoded with the given decimal precision.
func DecodePrecision(encoded string, precision int) (orb.LineString, error) {
	factor, err := precisionFactor(precision)
	if err != nil {
		return nil, err
	}
	if encoded == "" {
		return nil, nil
	}

	var ls orb.LineString
	index, lat, lon := 0, 0, 0

	for index < len(encoded) {
		latDelta, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		lonDelta, next, err := decodeValue(encoded, next)
		if err != nil {
			return nil, err
		}
		index = next
		lat += latDelta
		lon += lonDelta

		ls = append(ls, orb.Point{float64(lon) / factor, float64(lat) / factor})
	}

	return ls, nil
}

// decodeValue decodes a single zig-zag varint starting at index.
// Returns the delta and the index just past it.
func decodeValue(encoded string, index int) (int, int, error) {
	shift, result := 0, 0

	for {
		if index >= len(encoded) {
			return 0, index, ErrTruncated
		}
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index, nil
	}
	return result >> 1, index, nil
}

// Encode encodes a line string with precision 5.
func Encode(ls orb.LineString) string {
	s, _ := EncodePrecision(ls, Precision5) //nolint:errcheck // precision 5 is always valid
	return s
}

// EncodePrecision encodes a line string with the given decimal precision.
func EncodePrecision(ls orb.LineString, precision int) (string, error) {
	factor, err := precisionFactor(precision)
	if err != nil {
		return "", err
	}
	if len(ls) == 0 {
		return "", nil
	}

	encoded := make([]byte, 0, len(ls)*4)
	prevLat, prevLon := 0, 0

	for _, p := range ls {
		lat := int(math.Round(p.Lat() * factor))
		lon := int(math.Round(p.Lon() * factor))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lon-prevLon)

		prevLat, prevLon = lat, lon
	}

	return string(encoded), nil
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}

func precisionFactor(precision int) (float64, error) {
	if precision < 1 || precision > 8 {
		return 0, ErrInvalidPrecision
	}
	return math.Pow10(precision), nil
}

const earthRadiusMeters = 6371000

// Length returns the haversine length of a line string in meters.
func Length(ls orb.LineString) float64 {
	var total float64
	for i := 1; i < len(ls); i++ {
		total += haversine(ls[i-1], ls[i])
	}
	return total
}

func haversine(a, b orb.Point) float64 {
	lat1 := a.Lat() * math.Pi / 180
	lat2 := b.Lat() * math.Pi / 180
	dLat := (b.Lat() - a.Lat()) * math.Pi / 180
	dLon := (b.Lon() - a.Lon()) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
