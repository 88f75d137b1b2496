package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kitkwok/tightzone/internal/api"
	"github.com/kitkwok/tightzone/internal/api/handlers"
	"github.com/kitkwok/tightzone/internal/metrics"
	"github.com/kitkwok/tightzone/internal/refresh"
	"github.com/kitkwok/tightzone/internal/scheduler"
	"github.com/kitkwok/tightzone/internal/scheduler/jobs"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the query API server",
	Long: `Start the HTTP API server.

This command:
- loads the last snapshot from the store
- serves the aggregate and single-stock queries
- runs the gathering step on request or on schedule
- streams refresh progress over WebSocket

Endpoints:
  GET  /health                 - Health check
  GET  /metrics                - Prometheus metrics
  GET  /api/stocks             - Aggregate view
  GET  /api/stocks/{symbol}    - Single stock
  POST /api/refresh            - Trigger a refresh
  GET  /api/refresh/status     - Refresh progress
  GET  /api/refresh/stream     - Refresh progress (WebSocket)
  GET  /api/jobs               - Scheduled job stats

Example:
  go run ./cmd/tightzone serve
  go run ./cmd/tightzone serve --port 8080 --no-schedule`,
	RunE: runServe,
}

var (
	servePort       string
	serveNoSchedule bool
	serveOnStartup  bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	// Flags
	serveCmd.Flags().StringVar(&servePort, "port", "", "API server port (overrides PORT)")
	serveCmd.Flags().BoolVar(&serveNoSchedule, "no-schedule", false, "do not start the cron scheduler")
	serveCmd.Flags().BoolVar(&serveOnStartup, "refresh-on-startup", false, "trigger a refresh once the server is up")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// 1. Load config and logger
	a, err := loadApp(os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, log := a.cfg, a.log
	if servePort != "" {
		cfg.Port = servePort
	}

	log.WithFields(map[string]interface{}{
		"port":  cfg.Port,
		"env":   cfg.Env,
		"store": cfg.Store.Backend,
	}).Info("Initializing API server")

	// 2. Metrics
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	// 3. Snapshot store
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	st.WithMetrics(m)
	if err := a.loadSnapshot(ctx, st); err != nil {
		return err
	}

	// 4. News enrichment cache
	rc := a.connectRedis()
	newsCache := a.newsCache(m)

	// 5. Refresh orchestrator
	launcher, err := gatherLauncher(a)
	if err != nil {
		return err
	}
	orch := refresh.New(launcher, st, refresh.Options{
		Timeout:    cfg.Refresh.Timeout,
		StaleAfter: cfg.Refresh.StaleAfter,
	}, log).WithMetrics(m)

	// 6. Scheduler
	sched := scheduler.New(scheduler.Options{MaxRetries: 1, RetryDelay: time.Minute}, log)
	if err := sched.AddJob(jobs.NewRefreshJob(orch, cfg.Refresh.Schedule, log)); err != nil {
		return fmt.Errorf("register refresh job: %w", err)
	}
	if err := sched.AddJob(jobs.NewCacheCleanupJob(newsCache, log)); err != nil {
		return fmt.Errorf("register cache cleanup job: %w", err)
	}
	if !serveNoSchedule {
		sched.Start()
	}

	// 7. Handlers
	health := handlers.NewHealthHandler(st, orch, log)
	if a.db != nil {
		health.AddCheck("database", a.db)
	}
	if rc.Enabled() {
		health.AddCheck("redis", rc)
	}

	h := api.Handlers{
		Stocks:  handlers.NewStockHandler(st, newsCache, orch, cfg.Analyzer.Segments, log),
		Refresh: handlers.NewRefreshHandler(orch, cfg.Analyzer.Segments, log),
		Stream:  handlers.NewStreamHandler(orch, log),
		Jobs:    handlers.NewJobsHandler(sched),
		Health:  health,
	}

	// 8. Router and server
	router := api.NewRouter(h, m, log)
	server := api.New(cfg, log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.WithField("records", st.Count()).Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	if serveOnStartup || cfg.Refresh.OnStartup {
		res := orch.RequestRefresh(ctx)
		log.WithField("started", res.Started).Info("Startup refresh requested")
	}

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-errCh:
		if serveErr != nil {
			log.WithError(serveErr).Error("API server stopped unexpectedly")
		}
	}

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	sched.Stop()
	if err := orch.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Refresh did not stop cleanly")
	}

	log.Info("Server stopped")
	return serveErr
}

// gatherLauncher runs GATHER_COMMAND when set and "<self> gather" otherwise
func gatherLauncher(a *app) (*refresh.ExecLauncher, error) {
	if a.cfg.Refresh.Command != "" {
		path, args, err := refresh.ParseCommand(a.cfg.Refresh.Command)
		if err != nil {
			return nil, err
		}
		return refresh.NewExecLauncher(a.log, path, args...), nil
	}

	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return refresh.NewExecLauncher(a.log, self, "gather"), nil
}
