package openrouteservice

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/mockcarpool/carpool/internal/geo"
	"github.com/mockcarpool/carpool/internal/geocoding"
)

// suggestionToken is embedded in every autocomplete suggestion. Pelias
// autocomplete features already carry the final coordinate, so accepting a
// suggestion needs no further network call.
type suggestionToken struct {
	GID   string  `json:"gid"`
	Label string  `json:"label"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
}

func encodeToken(t suggestionToken) string {
	raw, err := json.Marshal(t)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeToken(token string) (*geocoding.Place, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, geocoding.ErrInvalidToken
	}
	var t suggestionToken
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, geocoding.ErrInvalidToken
	}
	label := strings.TrimSpace(t.Label)
	coord := geo.Coordinate{Lat: t.Lat, Lon: t.Lon}
	if label == "" || coord.Validate() != nil {
		return nil, geocoding.ErrInvalidToken
	}
	return &geocoding.Place{DisplayName: label, Coordinate: coord}, nil
}
