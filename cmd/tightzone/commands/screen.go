package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kitkwok/tightzone/internal/contracts"
	"github.com/kitkwok/tightzone/internal/external/tradingview"
)

// screenCmd represents the screen command
var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Run the market screen without history or news",
	Long: `Send the screener query and print the matching rows.

Useful for checking filter files before a full gather.

Example:
  go run ./cmd/tightzone screen
  go run ./cmd/tightzone screen --exchange NYSE --limit 20
  go run ./cmd/tightzone screen --filters filters.json --dump-payload`,
	RunE: runScreen,
}

var (
	screenExchange    string
	screenLimit       int
	screenFilters     string
	screenDumpPayload bool
	screenJSON        bool
)

func init() {
	rootCmd.AddCommand(screenCmd)

	// Flags
	screenCmd.Flags().StringVar(&screenExchange, "exchange", "", "restrict the screen to one exchange")
	screenCmd.Flags().IntVar(&screenLimit, "limit", 100, "maximum rows")
	screenCmd.Flags().StringVar(&screenFilters, "filters", "", "JSON file replacing the default screen filters")
	screenCmd.Flags().BoolVar(&screenDumpPayload, "dump-payload", false, "print the request body and exit")
	screenCmd.Flags().BoolVar(&screenJSON, "json", false, "print rows as JSON")
}

func runScreen(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := loadApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	query, err := a.screenerQuery(screenExchange, screenLimit, screenFilters)
	if err != nil {
		return err
	}

	if screenDumpPayload {
		return PrintJSON(os.Stdout, tradingview.BuildPayload(query))
	}

	rows, err := a.screenerClient().Scan(ctx, query)
	if err != nil {
		return fmt.Errorf("screen: %w", err)
	}

	records := make([]contracts.CandidateRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.ToCandidate())
	}

	if screenJSON {
		return PrintJSON(os.Stdout, records)
	}

	exchange := query.Exchange
	if exchange == "" {
		exchange = "all"
	}
	PrintHeader(os.Stdout, "Market Screen", [][2]string{
		{"Market", a.cfg.Screener.Market},
		{"Exchange", exchange},
		{"Limit", strconv.Itoa(query.Limit)},
		{"Matches", strconv.Itoa(len(records))},
	})
	PrintCandidates(os.Stdout, records)
	PrintCompletion(os.Stdout, "Screen", time.Since(start))
	return nil
}
