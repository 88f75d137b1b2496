package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/kitkwok/tightzone/internal/enrich"
	"github.com/kitkwok/tightzone/internal/external/tradingview"
	"github.com/kitkwok/tightzone/internal/external/yahoo"
	"github.com/kitkwok/tightzone/internal/metrics"
	"github.com/kitkwok/tightzone/internal/store"
	"github.com/kitkwok/tightzone/pkg/config"
	"github.com/kitkwok/tightzone/pkg/database"
	"github.com/kitkwok/tightzone/pkg/httputil"
	"github.com/kitkwok/tightzone/pkg/logger"
	"github.com/kitkwok/tightzone/pkg/redis"
)

// app bundles the shared dependencies every command builds the same way
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	redis  *redis.Client
	db     *database.DB // nil unless STORE_BACKEND=postgres
	closer []func()
}

// loadApp reads config and builds the logger writing to out
func loadApp(out io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return &app{cfg: cfg, log: logger.NewWithWriter(cfg, out)}, nil
}

func (a *app) Close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		a.closer[i]()
	}
}

// connectRedis connects when enabled. A failed connection degrades to
// a disabled client.
func (a *app) connectRedis() *redis.Client {
	if a.redis != nil {
		return a.redis
	}
	rc, err := redis.New(a.cfg)
	if err != nil {
		a.log.WithError(err).Warn("Redis unavailable, continuing without it")
		rc = redis.Disabled()
	}
	a.redis = rc
	a.closer = append(a.closer, func() { _ = rc.Close() })
	return rc
}

// openStore builds the configured backend and the store over it
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	var backend store.Backend
	switch a.cfg.Store.Backend {
	case "postgres":
		db, err := database.New(a.cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		a.closer = append(a.closer, db.Close)

		pg := store.NewPostgresBackend(db.Pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		backend = pg
	case "sqlite":
		lite, err := store.OpenSQLite(ctx, a.cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closer = append(a.closer, func() { _ = lite.Close() })
		backend = lite
	default:
		backend = store.NewFileBackend(a.cfg.Store.DataFile, a.cfg.Store.MetaFile)
	}

	return store.New(backend, a.log), nil
}

// loadSnapshot performs the startup load. A missing snapshot is fine;
// an unreadable one is fatal.
func (a *app) loadSnapshot(ctx context.Context, st *store.Store) error {
	err := st.Reload(ctx)
	if errors.Is(err, store.ErrNotFound) {
		a.log.Info("No snapshot yet, waiting for the first refresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	return nil
}

// yahooClient builds the Yahoo news client
func (a *app) yahooClient() *yahoo.Client {
	return yahoo.NewClient(a.limitedClient(a.cfg.News.Timeout), a.cfg.News.BaseURL, a.log)
}

// historyClient shares the Yahoo quota with the news client but keeps
// the default request timeout since chart payloads are larger
func (a *app) historyClient() *yahoo.Client {
	return yahoo.NewClient(a.limitedClient(0), a.cfg.History.BaseURL, a.log)
}

// limitedClient applies the shared Redis limit when Redis is enabled and
// a process-local one otherwise. timeout 0 keeps the client default.
func (a *app) limitedClient(timeout time.Duration) *httputil.Client {
	httpClient := httputil.New(a.log)
	if timeout > 0 {
		httpClient = httputil.NewWithTimeout(a.log, timeout)
	}

	if rc := a.connectRedis(); rc.Enabled() {
		httpClient.WithRateLimiter(redis.NewRateLimiter(rc, "tightzone"), redis.YahooRateLimit)
	} else if n := a.cfg.News.RateLimit; n > 0 {
		httpClient.WithLocalLimiter(rate.NewLimiter(rate.Limit(n), n))
	}
	return httpClient
}

// screenerClient builds the TradingView scanner client
func (a *app) screenerClient() *tradingview.Client {
	httpClient := httputil.New(a.log)
	if rc := a.connectRedis(); rc.Enabled() {
		httpClient.WithRateLimiter(redis.NewRateLimiter(rc, "tightzone"), redis.TradingViewRateLimit)
	}
	return tradingview.NewClient(httpClient, a.cfg.Screener.BaseURL, a.cfg.Screener.Market, a.log)
}

// newsCache builds the enrichment cache, with Redis as L2 when enabled
func (a *app) newsCache(m *metrics.Metrics) *enrich.Cache {
	cache := enrich.New(a.yahooClient(), enrich.Options{
		TTL:          a.cfg.News.CacheTTL,
		Lookback:     a.cfg.News.Lookback,
		Limit:        a.cfg.News.Limit,
		Workers:      a.cfg.News.Workers,
		FetchTimeout: a.cfg.News.Timeout,
	}, a.log).WithMetrics(m)

	if rc := a.connectRedis(); rc.Enabled() {
		cache.WithL2(redis.NewCache(rc, "tightzone"))
	}
	return cache
}

// screenerQuery builds the scan from config and flag overrides
func (a *app) screenerQuery(exchange string, limit int, filtersFile string) (tradingview.Query, error) {
	if exchange == "" {
		exchange = a.cfg.Screener.Exchange
	}
	if limit <= 0 {
		limit = a.cfg.Screener.Limit
	}
	if filtersFile == "" {
		filtersFile = a.cfg.Screener.FiltersFile
	}

	q := tradingview.DefaultQuery(limit, exchange)
	if filtersFile != "" {
		filters, err := tradingview.LoadFilters(filtersFile)
		if err != nil {
			return q, err
		}
		q.Filters = filters
	}
	return q, nil
}
