package resilience_test

import (
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockcarpool/carpool/internal/provider/resilience"
)

func newRegistered(t *testing.T, registry *resilience.Registry, names ...string) {
	t.Helper()
	for _, name := range names {
		cfg := resilience.DefaultClientConfig(name)
		cfg.Registry = registry
		_ = resilience.NewClient(cfg)
	}
}

func TestRegistry_RegisterOnCreate(t *testing.T) {
	registry := resilience.NewRegistry()
	newRegistered(t, registry, "openrouteservice")

	assert.Equal(t, 1, registry.Len())
	health := registry.Health("openrouteservice")
	require.NotNil(t, health)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.True(t, health.IsHealthy())
	assert.Nil(t, health.LastSuccessAt)
}

func TestRegistry_RecordOutcomes(t *testing.T) {
	registry := resilience.NewRegistry()
	newRegistered(t, registry, "nominatim")

	registry.RecordSuccess("nominatim")
	registry.RecordFailure("nominatim", assert.AnError)

	health := registry.Health("nominatim")
	require.NotNil(t, health)
	require.NotNil(t, health.LastSuccessAt)
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Equal(t, assert.AnError.Error(), health.LastError)

	// Unknown providers are ignored.
	registry.RecordSuccess("missing")
	registry.RecordFailure("missing", assert.AnError)
	assert.Nil(t, registry.Health("missing"))
}

func TestRegistry_AllSortedAndUnregister(t *testing.T) {
	registry := resilience.NewRegistry()
	newRegistered(t, registry, "openrouteservice", "nominatim", "ors-directions")

	all := registry.All()
	require.Len(t, all, 3)
	assert.Equal(t, "nominatim", all[0].Name)
	assert.Equal(t, "openrouteservice", all[1].Name)
	assert.Equal(t, "ors-directions", all[2].Name)

	registry.Unregister("nominatim")
	assert.Equal(t, 2, registry.Len())
}

func TestRegistry_Overall(t *testing.T) {
	registry := resilience.NewRegistry()
	assert.Equal(t, resilience.StatusHealthy, registry.Overall())

	newRegistered(t, registry, "a")
	assert.Equal(t, resilience.StatusHealthy, registry.Overall())
}

func TestProviderHealth_Status(t *testing.T) {
	tests := []struct {
		state gobreaker.State
		want  resilience.Status
	}{
		{gobreaker.StateClosed, resilience.StatusHealthy},
		{gobreaker.StateHalfOpen, resilience.StatusDegraded},
		{gobreaker.StateOpen, resilience.StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := &resilience.ProviderHealth{CircuitState: tt.state}
			assert.Equal(t, tt.want, h.Status())
			assert.Equal(t, tt.want == resilience.StatusHealthy, h.IsHealthy())
			assert.Equal(t, tt.want == resilience.StatusDegraded, h.IsDegraded())
			assert.Equal(t, tt.want == resilience.StatusUnhealthy, h.IsUnhealthy())
		})
	}
}
