package jobs

import (
	"context"
	"fmt"

	"github.com/kitkwok/tightzone/internal/contracts"
	"github.com/kitkwok/tightzone/internal/refresh"
	"github.com/kitkwok/tightzone/pkg/logger"
)

// Refresher is the part of the orchestrator the job drives
type Refresher interface {
	RequestRefresh(ctx context.Context) refresh.Result
	Wait(ctx context.Context) error
	Status() refresh.Status
}

// RefreshJob triggers a gathering run and waits for its outcome
// ⭐ SSOT: scheduled refreshes go through this job only
type RefreshJob struct {
	refresher Refresher
	schedule  string
	logger    *logger.Logger
}

// NewRefreshJob creates a new refresh job
func NewRefreshJob(refresher Refresher, schedule string, log *logger.Logger) *RefreshJob {
	return &RefreshJob{
		refresher: refresher,
		schedule:  schedule,
		logger:    log,
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "refresh"
}

// Schedule returns the cron schedule
func (j *RefreshJob) Schedule() string {
	return j.schedule
}

// Run requests a refresh and blocks until it settles. A run already in
// flight is awaited instead of started.
func (j *RefreshJob) Run(ctx context.Context) error {
	res := j.refresher.RequestRefresh(ctx)
	if !res.Started && !res.Status.Running() {
		return fmt.Errorf("refresh not started: %s", res.Status.LastError)
	}
	if !res.Started {
		j.logger.Info("Refresh already running, waiting for it")
	}

	if err := j.refresher.Wait(ctx); err != nil {
		return fmt.Errorf("wait for refresh: %w", err)
	}

	st := j.refresher.Status()
	if st.Phase == contracts.PhaseFailed {
		return fmt.Errorf("refresh failed: %s", st.LastError)
	}

	j.logger.WithField("records", st.Count).Info("Scheduled refresh completed")
	return nil
}
