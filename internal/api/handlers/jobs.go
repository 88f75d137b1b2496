package handlers

import (
	"net/http"

	"github.com/kitkwok/tightzone/internal/scheduler"
)

// JobsHandler reports scheduler state
type JobsHandler struct {
	scheduler JobStatsProvider
}

// NewJobsHandler creates a new jobs handler. scheduler may be nil.
func NewJobsHandler(s JobStatsProvider) *JobsHandler {
	return &JobsHandler{scheduler: s}
}

// List returns statistics for every registered job
// GET /api/jobs
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	stats := []scheduler.JobStats{}
	if h.scheduler != nil {
		stats = h.scheduler.GetJobStats()
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  stats,
		"count": len(stats),
	})
}
