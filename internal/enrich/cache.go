package enrich

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kitkwok/tightzone/internal/contracts"
	"github.com/kitkwok/tightzone/internal/metrics"
	"github.com/kitkwok/tightzone/pkg/logger"
	"github.com/kitkwok/tightzone/pkg/redis"
)

// Fetcher retrieves recent articles for one ticker.
// Implementations filter to the lookback window and cap to limit.
type Fetcher interface {
	FetchNews(ctx context.Context, symbol string, limit int, lookback time.Duration) ([]contracts.NewsItem, error)
}

// Options tunes the cache
type Options struct {
	TTL          time.Duration // default 30m
	Lookback     time.Duration // default 72h
	Limit        int           // default 3
	Workers      int           // default 8
	FetchTimeout time.Duration // default 5s
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 30 * time.Minute
	}
	if o.Lookback <= 0 {
		o.Lookback = 72 * time.Hour
	}
	if o.Limit <= 0 {
		o.Limit = 3
	}
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 5 * time.Second
	}
	return o
}

// entry is one cached fetch result
type entry struct {
	Articles  []contracts.NewsItem `json:"articles"`
	FetchedAt time.Time            `json:"fetchedAt"`
	// Failed marks a fetch that errored. Articles then hold the last good
	// result, if any, and the entry still blocks refetching until the TTL.
	Failed bool `json:"failed,omitempty"`
}

// Cache is the per-symbol news cache in front of the news source
// ⭐ SSOT: the only path from request handling to the news source
type Cache struct {
	fetcher Fetcher
	opts    Options
	logger  *logger.Logger
	metrics *metrics.Metrics
	l2      *redis.Cache
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	flights singleflight.Group
}

// New creates a cache over fetcher
func New(fetcher Fetcher, opts Options, log *logger.Logger) *Cache {
	return &Cache{
		fetcher: fetcher,
		opts:    opts.withDefaults(),
		logger:  log.Component("enrich"),
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// WithL2 adds a shared second-level cache (Redis)
func (c *Cache) WithL2(l2 *redis.Cache) *Cache {
	c.l2 = l2
	return c
}

// WithMetrics records hits, misses and fetch failures
func (c *Cache) WithMetrics(m *metrics.Metrics) *Cache {
	c.metrics = m
	return c
}

// Lookup returns up to Limit recent articles for symbol.
// Never fails; upstream errors fall back to the last good articles, or an
// empty list when there are none.
func (c *Cache) Lookup(ctx context.Context, symbol string) []contracts.NewsItem {
	return cloneItems(c.lookup(ctx, contracts.NormalizeSymbol(symbol)).Articles)
}

func (c *Cache) lookup(ctx context.Context, key string) entry {
	if key == "" {
		return entry{Articles: []contracts.NewsItem{}}
	}

	if e, ok := c.fresh(key); ok {
		c.metrics.CacheHit()
		return e
	}

	if e, ok := c.loadL2(ctx, key); ok {
		c.metrics.CacheHit()
		return e
	}

	c.metrics.CacheMiss()
	v, _, _ := c.flights.Do(key, func() (interface{}, error) {
		// a flight that just landed may have filled the entry
		if e, ok := c.fresh(key); ok {
			return e, nil
		}
		return c.fetch(ctx, key), nil
	})
	return v.(entry)
}

// LookupBatch resolves many symbols concurrently with a bounded worker pool.
// Keys are normalized tickers.
func (c *Cache) LookupBatch(ctx context.Context, symbols []string) map[string][]contracts.NewsItem {
	entries := c.lookupBatch(ctx, symbols)
	out := make(map[string][]contracts.NewsItem, len(entries))
	for key, e := range entries {
		out[key] = cloneItems(e.Articles)
	}
	return out
}

func (c *Cache) lookupBatch(ctx context.Context, symbols []string) map[string]entry {
	out := make(map[string]entry, len(symbols))
	var outMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)

	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		key := contracts.NormalizeSymbol(s)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		g.Go(func() error {
			e := c.lookup(gctx, key)
			outMu.Lock()
			out[key] = e
			outMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// Attach returns a copy of records with News replaced by cached articles.
// When the source failed and nothing better is cached, a record keeps the
// news it was persisted with.
func (c *Cache) Attach(ctx context.Context, records []contracts.CandidateRecord) []contracts.CandidateRecord {
	symbols := make([]string, len(records))
	for i, r := range records {
		symbols[i] = r.Symbol
	}
	entries := c.lookupBatch(ctx, symbols)

	out := make([]contracts.CandidateRecord, len(records))
	copy(out, records)
	for i := range out {
		e, ok := entries[contracts.NormalizeSymbol(out[i].Symbol)]
		if ok && e.Failed && len(e.Articles) == 0 && len(out[i].News) > 0 {
			out[i].News = cloneItems(out[i].News)
			continue
		}
		out[i].News = cloneItems(e.Articles)
	}
	return out
}

// fresh returns the in-memory entry when it can be served without fetching
func (c *Cache) fresh(key string) (entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.isFresh(e) {
		return entry{}, false
	}
	return e, true
}

// isFresh: inside the TTL, and either failed, empty or holding at least
// one article published within the lookback window
func (c *Cache) isFresh(e entry) bool {
	now := c.now()
	if now.Sub(e.FetchedAt) >= c.opts.TTL {
		return false
	}
	if e.Failed || len(e.Articles) == 0 {
		return true
	}
	cutoff := now.Add(-c.opts.Lookback)
	for _, a := range e.Articles {
		if a.PublishedSince(cutoff) {
			return true
		}
	}
	return false
}

func (c *Cache) store(key string, e entry) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// fetch calls the news source once and records the outcome, success or not
func (c *Cache) fetch(ctx context.Context, key string) entry {
	// the flight is shared, so one caller going away must not fail the others
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	items, err := c.fetcher.FetchNews(fctx, key, c.opts.Limit, c.opts.Lookback)
	c.metrics.ObserveFetch(time.Since(start), err)

	e := entry{Articles: items, FetchedAt: c.now()}
	if err != nil {
		e = entry{Articles: c.lastGood(key), FetchedAt: c.now(), Failed: true}
		c.logger.WithFields(map[string]interface{}{
			"symbol":   key,
			"error":    err.Error(),
			"fallback": len(e.Articles),
		}).Warn("News fetch failed, serving last known articles")
	}
	if e.Articles == nil {
		e.Articles = []contracts.NewsItem{}
	}

	c.store(key, e)
	c.saveL2(fctx, key, e)
	return e
}

// lastGood returns the articles held for key regardless of age
func (c *Cache) lastGood(key string) []contracts.NewsItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneItems(c.entries[key].Articles)
}

func (c *Cache) loadL2(ctx context.Context, key string) (entry, bool) {
	if c.l2 == nil {
		return entry{}, false
	}

	var e entry
	found, err := c.l2.Get(ctx, redis.NewsKey(key), &e)
	if err != nil {
		c.logger.WithError(err).Warn("L2 cache read failed")
		return entry{}, false
	}
	if !found || !c.isFresh(e) {
		return entry{}, false
	}
	if e.Articles == nil {
		e.Articles = []contracts.NewsItem{}
	}
	c.store(key, e)
	return e, true
}

func (c *Cache) saveL2(ctx context.Context, key string, e entry) {
	if c.l2 == nil {
		return
	}
	if err := c.l2.Set(ctx, redis.NewsKey(key), e, c.opts.TTL); err != nil {
		c.logger.WithError(err).Warn("L2 cache write failed")
	}
}

func cloneItems(items []contracts.NewsItem) []contracts.NewsItem {
	out := make([]contracts.NewsItem, len(items))
	copy(out, items)
	return out
}

// Prune drops entries too old to serve even as a fallback (TTL plus
// lookback) and returns how many were removed. Merely expired entries
// stay as the fallback for failed fetches.
func (c *Cache) Prune() int {
	now := c.now()
	maxAge := c.opts.TTL + c.opts.Lookback
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.FetchedAt) >= maxAge {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached symbols
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
