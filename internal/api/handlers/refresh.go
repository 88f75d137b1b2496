package handlers

import (
	"net/http"
	"time"

	"github.com/kitkwok/tightzone/internal/analyzer"
	"github.com/kitkwok/tightzone/internal/contracts"
	"github.com/kitkwok/tightzone/internal/refresh"
	"github.com/kitkwok/tightzone/pkg/logger"
)

// RefreshHandler exposes the refresh orchestrator
type RefreshHandler struct {
	refresher Refresher
	segments  int
	logger    *logger.Logger
}

// NewRefreshHandler creates a new refresh handler
func NewRefreshHandler(refresher Refresher, segments int, log *logger.Logger) *RefreshHandler {
	return &RefreshHandler{
		refresher: refresher,
		segments:  segments,
		logger:    log,
	}
}

// RefreshResponse is the body of a refresh request
type RefreshResponse struct {
	Started     bool                       `json:"started"`
	Refreshing  bool                       `json:"refreshing"`
	Status      refresh.Status             `json:"status"`
	Stocks      []contracts.AnalyzedRecord `json:"stocks"`
	Count       int                        `json:"count"`
	LastUpdated *time.Time                 `json:"lastUpdated,omitempty"`
}

// Request starts a refresh unless one is running and returns at once
// with whatever data is currently served.
// POST /api/refresh
func (h *RefreshHandler) Request(w http.ResponseWriter, r *http.Request) {
	res := h.refresher.RequestRefresh(r.Context())

	body := RefreshResponse{
		Started:    res.Started,
		Refreshing: res.Status.Running(),
		Status:     res.Status,
		Stocks:     []contracts.AnalyzedRecord{},
	}
	if res.Snapshot != nil {
		body.Stocks = analyzer.AnalyzeRecords(res.Snapshot.Records, h.segments)
		body.Count = len(res.Snapshot.Records)
		at := res.Snapshot.LastUpdated
		body.LastUpdated = &at
	}

	h.logger.WithFields(map[string]interface{}{
		"started": res.Started,
		"phase":   res.Status.Phase,
	}).Info("Refresh requested")

	respondJSON(w, http.StatusAccepted, body)
}

// Status returns the refresh state and record count
// GET /api/refresh/status
func (h *RefreshHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.refresher.Status())
}
