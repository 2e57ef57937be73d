package openrouteservice

// orsRequest represents the ORS directions API request body.
type orsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Instructions bool        `json:"instructions"`
	Geometry     bool        `json:"geometry"`
	Units        string      `json:"units"`
	Preference   string      `json:"preference,omitempty"`
}

// orsResponse represents the ORS directions API response.
type orsResponse struct {
	Routes   []orsRoute `json:"routes"`
	BBox     []float64  `json:"bbox,omitempty"`
	Metadata *metadata  `json:"metadata,omitempty"`
}

type metadata struct {
	Attribution string `json:"attribution,omitempty"`
	Service     string `json:"service,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

// orsRoute represents a single route in the ORS response.
type orsRoute struct {
	Summary   routeSummary `json:"summary"`
	BBox      []float64    `json:"bbox,omitempty"`
	Geometry  string       `json:"geometry"`
	WayPoints []int        `json:"way_points,omitempty"`
}

type routeSummary struct {
	Distance float64 `json:"distance"` // meters
	Duration float64 `json:"duration"` // seconds
}

// orsErrorResponse represents an error response from ORS. The gateway returns
// a bare string in "error", the routing engine an object with a numeric code.
type orsErrorResponse struct {
	Error any `json:"error"`
}

func (r orsErrorResponse) detail() (code int, message string) {
	switch v := r.Error.(type) {
	case string:
		return 0, v
	case map[string]any:
		if c, ok := v["code"].(float64); ok {
			code = int(c)
		}
		message, _ = v["message"].(string)
	}
	return code, message
}

// ORS routing engine error codes.
const (
	orsErrorCodeDistanceExceeded = 2004
	orsErrorCodeNotFound         = 2009
	orsErrorCodePointNotFound    = 2010
)
