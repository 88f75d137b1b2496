package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kitkwok/tightzone/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// every command prints headers and summaries the same way
// ═══════════════════════════════════════════════════════════

const (
	doubleLine = "═══════════════════════════════════════════════════════════"
	singleLine = "───────────────────────────────────────────────────────────"
)

// PrintHeader prints a titled block with key/value rows
func PrintHeader(w io.Writer, title string, rows [][2]string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, doubleLine)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, singleLine)
	for _, row := range rows {
		fmt.Fprintf(w, "  %-10s: %s\n", row[0], row[1])
	}
	fmt.Fprintln(w, singleLine)
}

// PrintCompletion prints the closing line of a command
func PrintCompletion(w io.Writer, what string, took time.Duration) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "✅ %s completed in %.2fs\n", what, took.Seconds())
}

// PrintWarning prints a warning message
func PrintWarning(w io.Writer, message string) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "⚠️  %s\n", message)
	fmt.Fprintln(w)
}

// PrintJSON writes v indented
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintZones prints one row per contraction zone, dated from bars
func PrintZones(w io.Writer, bars []contracts.PriceBar, zones []contracts.ContractionZone) {
	if len(zones) == 0 {
		fmt.Fprintln(w, "  (no contraction zones)")
		return
	}
	fmt.Fprintf(w, "  %-4s %-12s %-12s %10s %10s %10s\n", "#", "Start", "End", "High", "Low", "Range")
	for i, z := range zones {
		fmt.Fprintf(w, "  %-4d %-12s %-12s %10.2f %10.2f %10.2f\n",
			i+1, barDate(bars, z.Start), barDate(bars, z.End), z.High, z.Low, z.Range())
	}
}

// PrintCandidates prints a compact table of records
func PrintCandidates(w io.Writer, records []contracts.CandidateRecord) {
	fmt.Fprintf(w, "  %-10s %-28s %10s %14s\n", "Symbol", "Name", "Close", "Volume")
	for _, r := range records {
		fmt.Fprintf(w, "  %-10s %-28s %10.2f %14.0f\n", r.Symbol, truncate(r.Name, 28), r.Close, r.Volume)
	}
}

// Helper functions

func barDate(bars []contracts.PriceBar, i int) string {
	if i < 0 || i >= len(bars) || bars[i].Date.IsZero() {
		return "-"
	}
	return bars[i].Date.Format("2006-01-02")
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
