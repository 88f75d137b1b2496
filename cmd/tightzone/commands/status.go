package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kitkwok/tightzone/internal/refresh"
	"github.com/kitkwok/tightzone/pkg/httputil"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the refresh status of a running server",
	Long: `Query a running server for its refresh state.

Display:
- Phase: idle, running, succeeded or failed
- Progress: tickers processed out of total
- Records: size of the served snapshot
- Stale: whether the snapshot is older than REFRESH_STALE_AFTER

Example:
  go run ./cmd/tightzone status
  go run ./cmd/tightzone status --watch --refresh 2s
  go run ./cmd/tightzone status --url http://localhost:8080`,
	RunE: runStatus,
}

var (
	// Status flags
	statusURL     string
	statusWatch   bool
	statusRefresh time.Duration
)

func init() {
	rootCmd.AddCommand(statusCmd)

	// Flags
	statusCmd.Flags().StringVar(&statusURL, "url", "", "server base URL (default http://localhost:$PORT)")
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "keep polling until interrupted")
	statusCmd.Flags().DurationVar(&statusRefresh, "refresh", 3*time.Second, "poll interval with --watch")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	base := statusURL
	if base == "" {
		base = "http://localhost:" + a.cfg.Port
	}
	endpoint := strings.TrimRight(base, "/") + "/api/refresh/status"
	client := httputil.NewWithTimeout(a.log, 5*time.Second).DisableRetry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := displayStatus(ctx, client, endpoint); err != nil || !statusWatch {
		return err
	}

	// Status monitoring loop
	ticker := time.NewTicker(statusRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nStopped")
			return nil
		case <-ticker.C:
			if err := displayStatus(ctx, client, endpoint); err != nil {
				PrintWarning(os.Stdout, err.Error())
			}
		}
	}
}

func displayStatus(ctx context.Context, client *httputil.Client, endpoint string) error {
	var st refresh.Status
	if err := client.GetJSON(ctx, endpoint, &st); err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}

	p := st.Progress
	rows := [][2]string{
		{"Phase", string(st.Phase)},
		{"Progress", fmt.Sprintf("%d/%d (%d%%)", p.Current, p.Total, p.Percentage)},
		{"Records", strconv.Itoa(st.Count)},
		{"Updated", formatTime(st.LastUpdated)},
		{"Stale", strconv.FormatBool(st.Stale)},
	}
	if st.Running() {
		rows = append(rows, [2]string{"Started", formatTime(st.StartedAt)})
	}
	if p.Found > 0 {
		rows = append(rows, [2]string{"Found", strconv.Itoa(p.Found)})
	}
	if st.LastError != "" {
		rows = append(rows, [2]string{"Error", st.LastError})
	}

	PrintHeader(os.Stdout, "Refresh Status "+time.Now().Format("15:04:05"), rows)
	return nil
}
