package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/mohamedkhairy/strategy-alerts/pkg/logger"
)

// ReadinessCheck reports whether a dependency is reachable
type ReadinessCheck func(ctx context.Context) error

// StatsProvider returns a JSON-encodable snapshot of a component's counters
type StatsProvider func() interface{}

// HealthHandler serves liveness, readiness and component stats
type HealthHandler struct {
	checks  map[string]ReadinessCheck
	stats   map[string]StatsProvider
	timeout time.Duration
}

// NewHealthHandler creates a health handler with no readiness checks
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{
		checks:  make(map[string]ReadinessCheck),
		stats:   make(map[string]StatsProvider),
		timeout: 2 * time.Second,
	}
}

// AddCheck registers a named readiness check. Not safe to call while serving.
func (h *HealthHandler) AddCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// AddStats registers a named stats provider. Not safe to call while serving.
func (h *HealthHandler) AddStats(name string, provider StatsProvider) {
	h.stats[name] = provider
}

// Stats handles GET /stats
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]interface{}, len(h.stats))
	for name, provider := range h.stats {
		out[name] = provider()
	}
	respondWithJSON(w, http.StatusOK, out)
}

// Health handles GET /api/v1/health and /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Live handles GET /live
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready handles GET /ready, running every registered check
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			ready = false
			results[name] = err.Error()
			logger.Warn("Readiness check failed",
				logger.String("check", name),
				logger.ErrorField(err),
			)
			continue
		}
		results[name] = "ok"
	}

	if !ready {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not ready",
			"checks": results,
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"checks": results,
	})
}
