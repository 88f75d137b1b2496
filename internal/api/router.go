package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kitkwok/tightzone/internal/api/handlers"
	"github.com/kitkwok/tightzone/internal/metrics"
	"github.com/kitkwok/tightzone/pkg/logger"
)

// Handlers groups everything the router mounts
type Handlers struct {
	Stocks  *handlers.StockHandler
	Refresh *handlers.RefreshHandler
	Stream  *handlers.StreamHandler
	Jobs    *handlers.JobsHandler
	Health  *handlers.HealthHandler
}

// NewRouter creates and configures the HTTP router. m may be nil.
// ⭐ SSOT: routes are declared in this function only
func NewRouter(h Handlers, m *metrics.Metrics, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", h.Health.Check).Methods(http.MethodGet)
	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}

	// /api routes sit on the root router so a method mismatch answers 405
	api := func(path string, fn http.HandlerFunc, methods ...string) {
		r.Handle(path, noCacheMiddleware(fn)).Methods(methods...)
	}

	api("/api/health", h.Health.Check, http.MethodGet)

	// Aggregate
	api("/api/stocks", h.Stocks.List, http.MethodGet)
	api("/api/stocks/{symbol}", h.Stocks.Get, http.MethodGet)

	// Refresh
	api("/api/refresh", h.Refresh.Request, http.MethodPost, http.MethodGet)
	api("/api/refresh/status", h.Refresh.Status, http.MethodGet)
	api("/api/refresh/stream", h.Stream.Stream, http.MethodGet)

	// Scheduler
	api("/api/jobs", h.Jobs.List, http.MethodGet)

	// Apply middleware
	r.Use(recoveryMiddleware(log))
	r.Use(loggingMiddleware(log, m))

	// outside the router so preflights and 404s carry CORS headers too
	return corsHandler(r)
}
