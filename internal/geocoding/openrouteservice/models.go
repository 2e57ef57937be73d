package openrouteservice

// errorResponse covers both error shapes ORS returns: the gateway's
// {"error": "..."} and Pelias' {"geocoding": {"errors": [...]}}.
type errorResponse struct {
	Error     any `json:"error"`
	Geocoding struct {
		Errors []string `json:"errors"`
	} `json:"geocoding"`
}

func (e errorResponse) message() string {
	switch v := e.Error.(type) {
	case string:
		return v
	case map[string]any:
		if msg, ok := v["message"].(string); ok {
			return msg
		}
	}
	if len(e.Geocoding.Errors) > 0 {
		return e.Geocoding.Errors[0]
	}
	return ""
}
