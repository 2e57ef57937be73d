// Package handler provides HTTP handlers for the carpool session API.
package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mockcarpool/carpool/internal/api/models"
	"github.com/mockcarpool/carpool/internal/api/response"
	"github.com/mockcarpool/carpool/internal/provider/resilience"
)

// SessionCounter reports how many sessions are open.
type SessionCounter interface {
	Len() int
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	sessions  SessionCounter
}

// NewOpsHandler creates a new OpsHandler. A nil registry reports no providers.
func NewOpsHandler(version, buildTime string, registry *resilience.Registry, sessions SessionCounter) *OpsHandler {
	if registry == nil {
		registry = resilience.NewRegistry()
	}
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		registry:  registry,
		sessions:  sessions,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is not ready while any
// provider circuit is open, since no route can be computed without both.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := healthStatus(h.registry.Overall())
	code := http.StatusOK
	if status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status: status,
		Time:   models.Timestamp(time.Now()),
	})
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	providers := make([]models.ProviderStatus, 0, h.registry.Len())
	for _, p := range h.registry.All() {
		ps := models.ProviderStatus{
			Provider:     p.Name,
			Status:       healthStatus(p.Status()),
			CircuitState: p.CircuitState.String(),
		}
		if p.LastSuccessAt != nil {
			t := models.Timestamp(*p.LastSuccessAt)
			ps.LastSuccessAt = &t
		}
		if p.LastFailureAt != nil {
			t := models.Timestamp(*p.LastFailureAt)
			ps.LastFailureAt = &t
		}
		if p.LastError != "" {
			msg := p.LastError
			ps.Message = &msg
		}
		providers = append(providers, ps)
	}

	subsystems := []models.SubsystemStatus{}
	if h.sessions != nil {
		detail := fmt.Sprintf("%d active", h.sessions.Len())
		subsystems = append(subsystems, models.SubsystemStatus{
			Name:   "sessions",
			Status: models.HealthStatusOK,
			Detail: &detail,
		})
	}

	response.JSON(w, r, http.StatusOK, models.SystemStatus{
		Status:     healthStatus(h.registry.Overall()),
		Time:       models.Timestamp(time.Now()),
		Subsystems: subsystems,
		Providers:  providers,
	})
}

func healthStatus(s resilience.Status) models.HealthStatus {
	switch s {
	case resilience.StatusUnhealthy:
		return models.HealthStatusFail
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}
