package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kitkwok/tightzone/internal/contracts"
)

// Metrics holds all Prometheus metrics for the backend.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Refresh orchestrator
	RefreshesTotal  *prometheus.CounterVec // labels: outcome=started|succeeded|failed|skipped
	RefreshDuration prometheus.Histogram
	RefreshRunning  prometheus.Gauge
	SnapshotRecords prometheus.Gauge

	// Enrichment cache
	CacheLookups  *prometheus.CounterVec // labels: result=hit|miss
	FetchFailures prometheus.Counter
	FetchDuration prometheus.Histogram

	// Query interface
	HTTPRequests *prometheus.CounterVec // labels: route, code
}

// New registers and returns all metrics on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tightzone_refreshes_total",
			Help: "Refresh requests by outcome",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tightzone_refresh_duration_seconds",
			Help:    "Wall time of completed gathering runs",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600},
		}),
		RefreshRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tightzone_refresh_running",
			Help: "1 while a gathering run is in flight",
		}),
		SnapshotRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tightzone_snapshot_records",
			Help: "Records in the currently served snapshot",
		}),

		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tightzone_news_cache_lookups_total",
			Help: "News cache lookups by result",
		}, []string{"result"}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tightzone_news_fetch_failures_total",
			Help: "News fetches that failed and were cached empty",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tightzone_news_fetch_duration_seconds",
			Help:    "News source latency",
			Buckets: prometheus.DefBuckets,
		}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tightzone_http_requests_total",
			Help: "Query interface requests by route and status code",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RefreshesTotal,
		m.RefreshDuration,
		m.RefreshRunning,
		m.SnapshotRecords,
		m.CacheLookups,
		m.FetchFailures,
		m.FetchDuration,
		m.HTTPRequests,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RefreshStarted() {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues("started").Inc()
	m.RefreshRunning.Set(1)
}

func (m *Metrics) RefreshSkipped() {
	if m == nil {
		return
	}
	m.RefreshesTotal.WithLabelValues("skipped").Inc()
}

// RefreshFinished records the terminal phase of a run
func (m *Metrics) RefreshFinished(phase contracts.Phase, took time.Duration) {
	if m == nil {
		return
	}
	outcome := "failed"
	if phase == contracts.PhaseSucceeded {
		outcome = "succeeded"
	}
	m.RefreshesTotal.WithLabelValues(outcome).Inc()
	m.RefreshDuration.Observe(took.Seconds())
	m.RefreshRunning.Set(0)
}

func (m *Metrics) SetSnapshotRecords(n int) {
	if m == nil {
		return
	}
	m.SnapshotRecords.Set(float64(n))
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// ObserveFetch records one outbound news fetch
func (m *Metrics) ObserveFetch(took time.Duration, err error) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(took.Seconds())
	if err != nil {
		m.FetchFailures.Inc()
	}
}

func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
