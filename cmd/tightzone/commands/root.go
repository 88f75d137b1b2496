package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tightzone",
	Short: "TightZone - VCP stock screener backend",
	Long: `TightZone screens US equities for volatility contraction patterns,
enriches candidates with price history and recent news, and serves the
result over HTTP.

Usage:
  go run ./cmd/tightzone [command]

Examples:
  go run ./cmd/tightzone serve
  go run ./cmd/tightzone gather --min-zones 2
  go run ./cmd/tightzone screen --exchange NASDAQ --limit 20
  go run ./cmd/tightzone analyze AAPL`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")
}
