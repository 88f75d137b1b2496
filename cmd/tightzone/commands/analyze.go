package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kitkwok/tightzone/internal/analyzer"
	"github.com/kitkwok/tightzone/internal/contracts"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze SYMBOL",
	Short: "Analyze one ticker's contraction zones",
	Long: `Download price history for one ticker and print its contraction
zones and pattern grade.

Example:
  go run ./cmd/tightzone analyze AAPL
  go run ./cmd/tightzone analyze NASDAQ:NVDA --segments 6 --range 1y`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeSegments int
	analyzeRange    string
	analyzeJSON     bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	// Flags
	analyzeCmd.Flags().IntVar(&analyzeSegments, "segments", 0, "number of windows (default ANALYZER_SEGMENTS)")
	analyzeCmd.Flags().StringVar(&analyzeRange, "range", "", "history range, e.g. 6mo, 1y (default HISTORY_RANGE)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the analyzed record as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := loadApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	segments := cfg.Analyzer.Segments
	if analyzeSegments > 0 {
		segments = analyzeSegments
	}
	rng := cfg.History.Range
	if analyzeRange != "" {
		rng = analyzeRange
	}

	symbol := contracts.NormalizeSymbol(args[0])
	bars, err := a.historyClient().FetchHistory(ctx, symbol, rng, cfg.History.Interval)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", symbol, err)
	}

	rec := analyzer.AnalyzeRecord(contracts.CandidateRecord{Symbol: symbol, PriceHistory: bars}, segments)
	if analyzeJSON {
		return PrintJSON(os.Stdout, rec)
	}

	q := rec.Quality
	PrintHeader(os.Stdout, "VCP Analysis: "+symbol, [][2]string{
		{"Bars", strconv.Itoa(len(bars))},
		{"Segments", strconv.Itoa(segments)},
		{"Zones", strconv.Itoa(q.ZoneCount)},
		{"Contract", fmt.Sprintf("%.2f%%", q.ContractionRate)},
		{"Score", fmt.Sprintf("%d (%s)", q.Score, q.Grade)},
	})
	PrintZones(os.Stdout, bars, rec.Zones)
	return nil
}
