// Package handler provides HTTP handlers for the routing API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kmerroute/kmerroute/internal/api/models"
	"github.com/kmerroute/kmerroute/internal/api/response"
	"github.com/kmerroute/kmerroute/internal/provider/resilience"
)

// Pinger checks a dependency's connectivity. Satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheStatus reports cache availability. Satisfied by *cache.Cache.
type CacheStatus interface {
	Available() bool
}

// OpsConfig holds the dependencies inspected by the ops endpoints.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Database is the road graph database (optional).
	Database Pinger

	// Cache is the route cache (optional).
	Cache CacheStatus

	// Providers tracks outbound provider circuit breakers (optional).
	Providers *resilience.Registry

	// PingTimeout bounds readiness checks (default: 2 seconds).
	PingTimeout time.Duration
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = 2 * time.Second
	}
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   time.Now().UTC(),
		Details: map[string]any{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
// The graph database is required; the cache and external provider are not.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.pingDatabase(r.Context()); err != nil {
		response.ServiceUnavailable(w, r, "road graph database unreachable")
		return
	}
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   time.Now().UTC(),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   time.Now().UTC(),
	}

	db := models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}
	if err := h.pingDatabase(r.Context()); err != nil {
		db.Status = models.HealthStatusFail
		db.Detail = err.Error()
	}

	cacheStatus := models.SubsystemStatus{Name: "cache", Status: models.HealthStatusOK}
	if h.cfg.Cache == nil || !h.cfg.Cache.Available() {
		cacheStatus.Status = models.HealthStatusDegraded
		cacheStatus.Detail = "serving without cache"
	}
	status.Subsystems = []models.SubsystemStatus{db, cacheStatus}

	if h.cfg.Providers != nil {
		for _, ph := range h.cfg.Providers.Snapshot() {
			status.Providers = append(status.Providers, providerStatus(ph))
		}
	}

	status.Status = overall(status)
	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) pingDatabase(ctx context.Context) error {
	if h.cfg.Database == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.PingTimeout)
	defer cancel()
	return h.cfg.Database.Ping(ctx)
}

func providerStatus(ph resilience.ProviderHealth) models.ProviderStatus {
	out := models.ProviderStatus{Provider: ph.Name, Status: models.HealthStatusOK}
	switch ph.Condition() {
	case resilience.Unhealthy:
		out.Status = models.HealthStatusFail
	case resilience.Degraded:
		out.Status = models.HealthStatusDegraded
	}
	if out.Status != models.HealthStatusOK && ph.LastError != "" {
		out.Message = ph.LastError
	}
	out.LastSuccessAt = ph.LastSuccessAt
	out.LastFailureAt = ph.LastFailureAt
	return out
}

// overall takes the worst subsystem status. Providers only degrade the
// service since a route can still come from the graph.
func overall(status models.SystemStatus) models.HealthStatus {
	result := models.HealthStatusOK
	for _, s := range status.Subsystems {
		result = result.Worst(s.Status)
	}
	for _, p := range status.Providers {
		if p.Status != models.HealthStatusOK {
			result = result.Worst(models.HealthStatusDegraded)
		}
	}
	return result
}
