package http

import (
	"net/http"
	"time"

	"github.com/viralforge/dataplane/internal/cache"
	"github.com/viralforge/dataplane/internal/routing"
)

// Handler serves the ops endpoints over the router and cache state.
type Handler struct {
	serviceID   string
	registry    *routing.Registry
	routerStats *routing.Stats
	cacheStats  *cache.Stats
}

// NewHandler binds the ops surface to live routing and cache state.
func NewHandler(serviceID string, registry *routing.Registry, routerStats *routing.Stats, cacheStats *cache.Stats) *Handler {
	return &Handler{
		serviceID:   serviceID,
		registry:    registry,
		routerStats: routerStats,
		cacheStats:  cacheStats,
	}
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

// readyz reports ready only while the primary is healthy: without it no
// writes can be routed, which is the one condition with no safe fallback.
func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	if !h.registry.Primary().Healthy() {
		writeError(w, http.StatusServiceUnavailable, "PRIMARY_UNAVAILABLE", "primary backend is unhealthy")
		return
	}
	writeMessage(w, http.StatusOK, "ready")
}

type backendStatus struct {
	Name        string    `json:"name"`
	Region      string    `json:"region"`
	Role        string    `json:"role"`
	Healthy     bool      `json:"healthy"`
	LastProbeAt time.Time `json:"last_probe_at"`
}

type statusResponse struct {
	Service  string                `json:"service"`
	Backends []backendStatus       `json:"backends"`
	Router   routing.StatsSnapshot `json:"router"`
	Cache    cache.StatsSnapshot   `json:"cache"`
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Service: h.serviceID,
		Router:  h.routerStats.Snapshot(),
		Cache:   h.cacheStats.Snapshot(),
	}
	for _, d := range h.registry.All() {
		resp.Backends = append(resp.Backends, backendStatus{
			Name:        d.Name,
			Region:      d.Region,
			Role:        string(d.Role),
			Healthy:     d.Healthy(),
			LastProbeAt: d.LastHealthCheck(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
