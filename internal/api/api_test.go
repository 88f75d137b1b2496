package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitkwok/tightzone/internal/api/handlers"
	"github.com/kitkwok/tightzone/internal/contracts"
	"github.com/kitkwok/tightzone/internal/metrics"
	"github.com/kitkwok/tightzone/internal/refresh"
	"github.com/kitkwok/tightzone/internal/scheduler"
	"github.com/kitkwok/tightzone/internal/store"
	"github.com/kitkwok/tightzone/pkg/logger"
)

type stubRefresher struct {
	status   refresh.Status
	started  bool
	store    *store.Store
	requests int
}

func (s *stubRefresher) RequestRefresh(ctx context.Context) refresh.Result {
	s.requests++
	st := s.status
	st.Count = s.store.Count()
	return refresh.Result{Started: s.started, Status: st, Snapshot: s.store.Current()}
}

func (s *stubRefresher) Status() refresh.Status {
	st := s.status
	st.Count = s.store.Count()
	return st
}

type stubNews struct{}

func (stubNews) Attach(ctx context.Context, records []contracts.CandidateRecord) []contracts.CandidateRecord {
	out := make([]contracts.CandidateRecord, len(records))
	copy(out, records)
	for i := range out {
		out[i].News = []contracts.NewsItem{{Title: "Earnings beat", Publisher: "Wire"}}
	}
	return out
}

type stubJobs struct{}

func (stubJobs) GetJobStats() []scheduler.JobStats {
	return []scheduler.JobStats{{JobName: "refresh", Schedule: "0 30 16 * * MON-FRI"}}
}

type failingCheck struct{}

func (failingCheck) Ping(ctx context.Context) error { return errors.New("connection refused") }

type testEnv struct {
	store     *store.Store
	refresher *stubRefresher
	health    *handlers.HealthHandler
	router    http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	dir := t.TempDir()
	st := store.New(store.NewFileBackend(filepath.Join(dir, "s.json"), filepath.Join(dir, "m.json")), logger.Nop())
	ref := &stubRefresher{status: refresh.Status{RefreshState: contracts.RefreshState{Phase: contracts.PhaseIdle}}, store: st}
	log := logger.Nop()

	health := handlers.NewHealthHandler(st, ref, log)
	h := Handlers{
		Stocks:  handlers.NewStockHandler(st, stubNews{}, ref, 4, log),
		Refresh: handlers.NewRefreshHandler(ref, 4, log),
		Stream:  handlers.NewStreamHandler(ref, log),
		Jobs:    handlers.NewJobsHandler(stubJobs{}),
		Health:  health,
	}
	return &testEnv{store: st, refresher: ref, health: health, router: NewRouter(h, metrics.New(), log)}
}

// contractingBars yields four windows of shrinking range
func contractingBars() []contracts.PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var bars []contracts.PriceBar
	for _, swing := range []float64{20, 14, 9, 5} {
		for i := 0; i < 10; i++ {
			c := 100.0
			if i%2 == 0 {
				c += swing
			}
			bars = append(bars, contracts.PriceBar{Date: start.AddDate(0, 0, len(bars)), Close: c, Volume: 1000})
		}
	}
	return bars
}

func (e *testEnv) seed(t *testing.T) time.Time {
	at := time.Date(2024, 6, 3, 21, 0, 0, 0, time.UTC)
	require.NoError(t, e.store.Replace(context.Background(), &contracts.Snapshot{
		LastUpdated: at,
		Records: []contracts.CandidateRecord{
			{Symbol: "NASDAQ:AAPL", Name: "Apple", Close: 190, PriceHistory: contractingBars(), News: []contracts.NewsItem{}},
			{Symbol: "NYSE:KO", Name: "Coca-Cola", Close: 61, PriceHistory: []contracts.PriceBar{}, News: []contracts.NewsItem{}},
		},
	}))
	return at
}

func (e *testEnv) do(method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestStocks_NotAvailable(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/api/stocks")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no-store, no-cache, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var body handlers.ErrorResponse
	decode(t, rec, &body)
	assert.Equal(t, handlers.CodeNotAvailable, body.Code)
	assert.NotEmpty(t, body.Error)
}

func TestStocks_List(t *testing.T) {
	env := newTestEnv(t)
	at := env.seed(t)

	rec := env.do(http.MethodGet, "/api/stocks")
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.StocksResponse
	decode(t, rec, &body)
	assert.Equal(t, 2, body.Count)
	assert.True(t, at.Equal(body.LastUpdated))
	assert.False(t, body.Refreshing)
	require.Len(t, body.Stocks, 2)

	aapl := body.Stocks[0]
	assert.Equal(t, "NASDAQ:AAPL", aapl.Symbol)
	assert.Len(t, aapl.Zones, 4)
	assert.Equal(t, contracts.GradeAPlus, aapl.Quality.Grade)
	require.Len(t, aapl.News, 1)
	assert.Equal(t, "Earnings beat", aapl.News[0].Title)

	ko := body.Stocks[1]
	assert.Empty(t, ko.Zones)
	assert.Equal(t, contracts.GradeC, ko.Quality.Grade)
	assert.Equal(t, 0, ko.Quality.Score)
}

func TestStocks_Get(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	rec := env.do(http.MethodGet, "/api/stocks/aapl")
	require.Equal(t, http.StatusOK, rec.Code)
	var body contracts.AnalyzedRecord
	decode(t, rec, &body)
	assert.Equal(t, "Apple", body.Name)
	assert.Equal(t, 4, body.Quality.ZoneCount)

	rec = env.do(http.MethodGet, "/api/stocks/NYSE:KO")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/stocks/MSFT")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var errBody handlers.ErrorResponse
	decode(t, rec, &errBody)
	assert.Equal(t, handlers.CodeNotFound, errBody.Code)
}

func TestRefresh_Request(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	env.refresher.started = true
	env.refresher.status.Phase = contracts.PhaseRunning

	rec := env.do(http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "no-store, no-cache, must-revalidate", rec.Header().Get("Cache-Control"))

	var body handlers.RefreshResponse
	decode(t, rec, &body)
	assert.True(t, body.Started)
	assert.True(t, body.Refreshing)
	assert.Equal(t, 2, body.Count)
	assert.Len(t, body.Stocks, 2)
	assert.NotNil(t, body.LastUpdated)
	assert.Equal(t, contracts.PhaseRunning, body.Status.Phase)

	// GET is accepted for older clients
	rec = env.do(http.MethodGet, "/api/refresh")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 2, env.refresher.requests)
}

func TestRefresh_RequestWithEmptyStore(t *testing.T) {
	env := newTestEnv(t)
	env.refresher.started = true

	rec := env.do(http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body handlers.RefreshResponse
	decode(t, rec, &body)
	assert.NotNil(t, body.Stocks)
	assert.Empty(t, body.Stocks)
	assert.Nil(t, body.LastUpdated)
}

func TestRefresh_Status(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)
	env.refresher.status.Phase = contracts.PhaseRunning
	env.refresher.status.Progress = contracts.Progress{Current: 3, Total: 20, Percentage: 15}

	rec := env.do(http.MethodGet, "/api/refresh/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]interface{}
	decode(t, rec, &raw)
	assert.Equal(t, "running", raw["phase"])
	assert.Equal(t, float64(2), raw["count"])
	progress := raw["progress"].(map[string]interface{})
	assert.Equal(t, float64(15), progress["percentage"])
}

func TestPreflight(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodOptions, "/api/refresh")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/api/health"} {
		rec := env.do(http.MethodGet, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		var body handlers.HealthResponse
		decode(t, rec, &body)
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, "idle", body.Refresh)
	}

	env.health.AddCheck("redis", failingCheck{})
	rec := env.do(http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body handlers.HealthResponse
	decode(t, rec, &body)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "down", body.Dependencies["redis"])
}

func TestJobs(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Jobs  []scheduler.JobStats `json:"jobs"`
		Count int                  `json:"count"`
	}
	decode(t, rec, &body)
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "refresh", body.Jobs[0].JobName)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(http.MethodGet, "/api/stocks")

	rec := env.do(http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tightzone_http_requests_total{code="404",route="/api/stocks"} 1`)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodDelete, "/api/stocks")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(http.MethodPut, "/api/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = env.do(http.MethodGet, "/api/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
