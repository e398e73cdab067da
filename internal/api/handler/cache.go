package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kmerroute/kmerroute/internal/api/models"
	"github.com/kmerroute/kmerroute/internal/api/response"
	"github.com/kmerroute/kmerroute/internal/cache"
	"github.com/kmerroute/kmerroute/internal/routing"
)

// probeKey holds the value written by the cache self-test.
const probeKey = "test:serialization"

// probePoint is a fixed coordinate in Yaoundé.
var probePoint = routing.Point{Lat: 3.8480, Lng: 11.5021}

// CacheHandler exposes cache monitoring endpoints.
type CacheHandler struct {
	cache *cache.Cache
	now   func() time.Time
}

// NewCacheHandler creates a new CacheHandler.
func NewCacheHandler(c *cache.Cache) *CacheHandler {
	return &CacheHandler{cache: c, now: time.Now}
}

// Health handles GET /v1/cache/health - cache store availability.
func (h *CacheHandler) Health(w http.ResponseWriter, r *http.Request) {
	health := models.CacheHealth{
		Status:    models.CacheStatusDown,
		Service:   h.cache.Backend(),
		Timestamp: h.now().UnixMilli(),
	}
	if h.cache.Available() {
		health.Status = models.CacheStatusUp
	}
	response.JSON(w, r, http.StatusOK, health)
}

// Stats handles GET /v1/cache/stats - hit, miss and key counters.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.cache.Stats(r.Context()))
}

// Probe handles POST /v1/cache/probe - re-probe the store and round-trip a typed value.
func (h *CacheHandler) Probe(w http.ResponseWriter, r *http.Request) {
	result := h.roundTrip(r.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, r, status, result)
}

func (h *CacheHandler) roundTrip(ctx context.Context) models.CacheProbe {
	result := models.CacheProbe{
		Original: models.Point{Lat: probePoint.Lat, Lng: probePoint.Lng},
	}

	if err := h.cache.Probe(ctx); err != nil {
		result.Error = err.Error()
		return result
	}
	if !h.cache.Set(ctx, probeKey, probePoint) {
		result.Error = "failed to store probe value"
		return result
	}

	got, ok := cache.Get[routing.Point](ctx, h.cache, probeKey)
	if !ok {
		result.Error = "failed to read probe value back"
		return result
	}

	result.Success = true
	result.Retrieved = &models.Point{Lat: got.Lat, Lng: got.Lng}
	result.Equals = got == probePoint
	return result
}
