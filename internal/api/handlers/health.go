package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/kitkwok/tightzone/pkg/logger"
)

// HealthChecker probes an optional dependency
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports liveness and the state of dependencies
type HealthHandler struct {
	store     SnapshotReader
	refresher Refresher
	checks    map[string]HealthChecker
	logger    *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store SnapshotReader, refresher Refresher, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		store:     store,
		refresher: refresher,
		checks:    make(map[string]HealthChecker),
		logger:    log,
	}
}

// AddCheck registers a dependency probe under name
func (h *HealthHandler) AddCheck(name string, c HealthChecker) {
	h.checks[name] = c
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Records      int               `json:"records"`
	LastUpdated  *time.Time        `json:"lastUpdated,omitempty"`
	Refresh      string            `json:"refresh"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Check answers 200 while the process serves, 503 when a dependency is down
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	st := h.refresher.Status()
	resp := HealthResponse{
		Status:      "ok",
		Service:     "tightzone-api",
		Records:     h.store.Count(),
		LastUpdated: st.LastUpdated,
		Refresh:     string(st.Phase),
	}

	status := http.StatusOK
	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp.Dependencies = make(map[string]string, len(h.checks))
		for name, c := range h.checks {
			if err := c.Ping(ctx); err != nil {
				h.logger.WithError(err).WithField("dependency", name).Warn("Health check failed")
				resp.Dependencies[name] = "down"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Dependencies[name] = "up"
		}
	}

	respondJSON(w, status, resp)
}
