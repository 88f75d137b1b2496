package gather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kitkwok/tightzone/internal/analyzer"
	"github.com/kitkwok/tightzone/internal/contracts"
	"github.com/kitkwok/tightzone/internal/external/tradingview"
	"github.com/kitkwok/tightzone/internal/refresh"
	"github.com/kitkwok/tightzone/pkg/logger"
)

// Screener returns the candidate universe
type Screener interface {
	Scan(ctx context.Context, q tradingview.Query) ([]tradingview.Row, error)
}

// HistorySource returns daily closes for a ticker
type HistorySource interface {
	FetchHistory(ctx context.Context, symbol, rng, interval string) ([]contracts.PriceBar, error)
}

// NewsAttacher fills the News field of records
type NewsAttacher interface {
	Attach(ctx context.Context, records []contracts.CandidateRecord) []contracts.CandidateRecord
}

// SnapshotWriter persists a finished snapshot
type SnapshotWriter interface {
	Replace(ctx context.Context, snap *contracts.Snapshot) error
}

// Config holds gatherer configuration
type Config struct {
	Query    tradingview.Query
	Range    string
	Interval string
	Workers  int // concurrent history fetches
	Segments int // analyzer windows
	MinZones int // keep records with at least this many zones, 0 keeps all
}

// Gatherer builds a fresh snapshot: screen, fetch history, keep VCP
// candidates, attach news, persist.
// ⭐ SSOT: the gathering step
type Gatherer struct {
	screener Screener
	history  HistorySource
	news     NewsAttacher
	writer   SnapshotWriter
	logger   *logger.Logger
	now      func() time.Time

	outMu sync.Mutex
	out   io.Writer // progress events, one JSON object per line
}

// NewGatherer creates a new Gatherer. progress receives structured events.
func NewGatherer(
	screener Screener,
	history HistorySource,
	news NewsAttacher,
	writer SnapshotWriter,
	progress io.Writer,
	log *logger.Logger,
) *Gatherer {
	return &Gatherer{
		screener: screener,
		history:  history,
		news:     news,
		writer:   writer,
		out:      progress,
		logger:   log.Component("gather"),
		now:      time.Now,
	}
}

// historyResult is one worker outcome
type historyResult struct {
	index int
	bars  []contracts.PriceBar
	err   error
}

// Run executes one gather and returns the persisted snapshot
func (g *Gatherer) Run(ctx context.Context, cfg Config) (*contracts.Snapshot, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	// 1. Screen
	rows, err := g.screener.Scan(ctx, cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("screen: %w", err)
	}

	records := make([]contracts.CandidateRecord, len(rows))
	for i, row := range rows {
		records[i] = row.ToCandidate()
	}

	g.logger.WithFields(map[string]interface{}{
		"candidates": len(records),
		"workers":    cfg.Workers,
		"range":      cfg.Range,
	}).Info("Starting history collection")
	g.emit(refresh.ProgressEvent(0, len(records)))

	// 2. Price history, bounded worker pool
	if err := g.collectHistory(ctx, records, cfg); err != nil {
		return nil, err
	}

	// 3. Pattern filter
	kept := filterByZones(records, cfg.Segments, cfg.MinZones)
	g.logger.WithFields(map[string]interface{}{
		"screened":  len(records),
		"kept":      len(kept),
		"min_zones": cfg.MinZones,
	}).Info("Pattern filter applied")

	// 4. News
	if g.news != nil && len(kept) > 0 {
		kept = g.news.Attach(ctx, kept)
	}
	g.emit(refresh.FoundEvent(len(kept)))

	// 5. Persist
	snap := &contracts.Snapshot{Records: kept, LastUpdated: g.now().UTC()}
	if err := g.writer.Replace(ctx, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	g.logger.WithField("records", len(kept)).Info("Gather completed")
	return snap, nil
}

func (g *Gatherer) collectHistory(ctx context.Context, records []contracts.CandidateRecord, cfg Config) error {
	if len(records) == 0 {
		return nil
	}

	indexCh := make(chan int, len(records))
	resultCh := make(chan historyResult, len(records))

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			g.historyWorker(ctx, workerID, records, indexCh, resultCh, cfg)
		}(i)
	}

	for i := range records {
		indexCh <- i
	}
	close(indexCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	done, failed := 0, 0
	for res := range resultCh {
		done++
		if res.err != nil {
			failed++
			records[res.index].HistoryError = res.err.Error()
			records[res.index].PriceHistory = []contracts.PriceBar{}
		} else {
			records[res.index].PriceHistory = res.bars
		}
		g.emit(refresh.ProgressEvent(done, len(records)))
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("history collection: %w", err)
	}

	g.logger.WithFields(map[string]interface{}{
		"success": done - failed,
		"failed":  failed,
		"total":   done,
	}).Info("History collection completed")
	return nil
}

// historyWorker fetches history for indexes from indexCh
func (g *Gatherer) historyWorker(ctx context.Context, workerID int, records []contracts.CandidateRecord, indexCh <-chan int, resultCh chan<- historyResult, cfg Config) {
	for i := range indexCh {
		if err := ctx.Err(); err != nil {
			resultCh <- historyResult{index: i, err: err}
			continue
		}

		symbol := records[i].Symbol
		bars, err := g.history.FetchHistory(ctx, symbol, cfg.Range, cfg.Interval)
		if err != nil {
			g.logger.WithError(err).WithFields(map[string]interface{}{
				"worker": workerID,
				"symbol": symbol,
			}).Warn("Failed to fetch history")
			resultCh <- historyResult{index: i, err: err}
			continue
		}

		g.logger.WithFields(map[string]interface{}{
			"worker": workerID,
			"symbol": symbol,
			"bars":   len(bars),
		}).Debug("Fetched history")
		resultCh <- historyResult{index: i, bars: bars}
	}
}

// filterByZones keeps records whose history shows at least minZones
// contraction zones, preserving screener order
func filterByZones(records []contracts.CandidateRecord, segments, minZones int) []contracts.CandidateRecord {
	kept := make([]contracts.CandidateRecord, 0, len(records))
	for _, rec := range records {
		if minZones > 0 && len(analyzer.IdentifyZones(rec.PriceHistory, segments)) < minZones {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

// emit writes one progress event line. Write errors are ignored: progress
// is advisory.
func (g *Gatherer) emit(ev refresh.Event) {
	if g.out == nil {
		return
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}

	g.outMu.Lock()
	defer g.outMu.Unlock()
	_, _ = g.out.Write(append(line, '\n'))
}
