package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kitkwok/tightzone/internal/gather"
)

// gatherCmd represents the gather command
var gatherCmd = &cobra.Command{
	Use:   "gather",
	Short: "Run the gathering step once",
	Long: `Screen the market, download price history, keep VCP candidates,
attach recent news and replace the stored snapshot.

Progress is written to stdout as one JSON object per line:
  {"type":"progress","current":3,"total":50}
  {"type":"found","count":12}

Logs go to stderr. The serve command launches this as its refresh step.

Example:
  go run ./cmd/tightzone gather
  go run ./cmd/tightzone gather --exchange NASDAQ --limit 20 --min-zones 3`,
	RunE: runGather,
}

var (
	gatherExchange string
	gatherLimit    int
	gatherFilters  string
	gatherMinZones int
	gatherWorkers  int
)

func init() {
	rootCmd.AddCommand(gatherCmd)

	// Flags
	gatherCmd.Flags().StringVar(&gatherExchange, "exchange", "", "restrict the screen to one exchange (NASDAQ, NYSE, AMEX)")
	gatherCmd.Flags().IntVar(&gatherLimit, "limit", 0, "maximum screener rows (default SCREENER_LIMIT)")
	gatherCmd.Flags().StringVar(&gatherFilters, "filters", "", "JSON file replacing the default screen filters")
	gatherCmd.Flags().IntVar(&gatherMinZones, "min-zones", -1, "minimum contraction zones to keep a record (default ANALYZER_MIN_ZONES)")
	gatherCmd.Flags().IntVar(&gatherWorkers, "workers", 0, "concurrent history downloads (default HISTORY_WORKERS)")
}

func runGather(cmd *cobra.Command, args []string) error {
	start := time.Now()

	// stop cleanly when the orchestrator cancels us
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config, logs on stderr since stdout carries progress
	a, err := loadApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, log := a.cfg, a.log

	// 2. Store
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	// 3. Sources
	query, err := a.screenerQuery(gatherExchange, gatherLimit, gatherFilters)
	if err != nil {
		return err
	}
	screener := a.screenerClient()
	history := a.historyClient()
	news := a.newsCache(nil)

	// 4. Run
	gc := gather.Config{
		Query:    query,
		Range:    cfg.History.Range,
		Interval: cfg.History.Interval,
		Workers:  cfg.History.Workers,
		Segments: cfg.Analyzer.Segments,
		MinZones: cfg.Analyzer.MinZones,
	}
	if gatherWorkers > 0 {
		gc.Workers = gatherWorkers
	}
	if gatherMinZones >= 0 {
		gc.MinZones = gatherMinZones
	}

	g := gather.NewGatherer(screener, history, news, st, os.Stdout, log)
	snap, err := g.Run(ctx, gc)
	if err != nil {
		log.WithError(err).Error("Gather failed")
		return fmt.Errorf("gather: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"records":     snap.Count(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Gather completed")
	PrintCompletion(os.Stderr, fmt.Sprintf("Gather of %d records", snap.Count()), time.Since(start))
	return nil
}
