package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics records route-search engine activity. It satisfies
// session.Metrics and observes provider calls made by the resilience client.
type EngineMetrics struct {
	sessionsActive   metric.Int64UpDownCounter
	suggestRequests  metric.Int64Counter
	staleDropped     metric.Int64Counter
	routeOutcomes    metric.Int64Counter
	providerDuration metric.Float64Histogram
}

// NewEngineMetrics creates the engine instruments on meter.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	sessionsActive, err := meter.Int64UpDownCounter(
		"carpool.sessions.active",
		metric.WithDescription("Number of open route-search sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	suggestRequests, err := meter.Int64Counter(
		"carpool.suggestions.requests",
		metric.WithDescription("Suggestion fetches issued after debouncing"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	staleDropped, err := meter.Int64Counter(
		"carpool.results.stale_dropped",
		metric.WithDescription("Async results discarded because a newer request superseded them"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, err
	}

	routeOutcomes, err := meter.Int64Counter(
		"carpool.routes.completed",
		metric.WithDescription("Finished route requests by outcome"),
		metric.WithUnit("{route}"),
	)
	if err != nil {
		return nil, err
	}

	providerDuration, err := meter.Float64Histogram(
		"carpool.provider.request.duration",
		metric.WithDescription("Duration of upstream provider calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &EngineMetrics{
		sessionsActive:   sessionsActive,
		suggestRequests:  suggestRequests,
		staleDropped:     staleDropped,
		routeOutcomes:    routeOutcomes,
		providerDuration: providerDuration,
	}, nil
}

func (m *EngineMetrics) SessionOpened() {
	m.sessionsActive.Add(context.Background(), 1)
}

func (m *EngineMetrics) SessionClosed() {
	m.sessionsActive.Add(context.Background(), -1)
}

func (m *EngineMetrics) SuggestionRequested(field string) {
	m.suggestRequests.Add(context.Background(), 1, metric.WithAttributes(attribute.String("field", field)))
}

func (m *EngineMetrics) StaleDropped(event string) {
	m.staleDropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("event", event)))
}

func (m *EngineMetrics) RouteCompleted(outcome string) {
	m.routeOutcomes.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// ObserveProvider records one provider call. Its signature matches
// resilience.ClientConfig.Observer.
func (m *EngineMetrics) ObserveProvider(provider string, elapsed time.Duration, err error) {
	m.providerDuration.Record(context.Background(), elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.Bool("error", err != nil),
		),
	)
}
