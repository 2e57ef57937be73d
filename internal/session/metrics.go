package session

// Metrics receives session engine measurements.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	SuggestionRequested(field string)
	StaleDropped(event string)
	RouteCompleted(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) SessionOpened()             {}
func (nopMetrics) SessionClosed()             {}
func (nopMetrics) SuggestionRequested(string) {}
func (nopMetrics) StaleDropped(string)        {}
func (nopMetrics) RouteCompleted(string)      {}
