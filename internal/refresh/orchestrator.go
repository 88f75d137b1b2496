package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kitkwok/tightzone/internal/contracts"
	"github.com/kitkwok/tightzone/internal/metrics"
	"github.com/kitkwok/tightzone/internal/store"
	"github.com/kitkwok/tightzone/pkg/logger"
)

// Options tunes the orchestrator
type Options struct {
	Timeout       time.Duration // hard bound on one run, default 10m
	StaleAfter    time.Duration // running longer than this is flagged stale, default 5m
	ReloadTimeout time.Duration // bound on the store reload after success, default 30s
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Minute
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 5 * time.Minute
	}
	if o.ReloadTimeout <= 0 {
		o.ReloadTimeout = 30 * time.Second
	}
	return o
}

// Status is what pollers see
type Status struct {
	contracts.RefreshState
	Count int  `json:"count"`
	Stale bool `json:"stale"`
}

// Result answers a refresh request
type Result struct {
	Started  bool
	Status   Status
	Snapshot *contracts.Snapshot
}

// Orchestrator runs at most one gathering step at a time and tracks its progress
// ⭐ SSOT: the only writer of RefreshState
type Orchestrator struct {
	launcher Launcher
	store    *store.Store
	opts     Options
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	base   context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	state contracts.RefreshState
	done  chan struct{} // closed when the current run settles
}

// New creates an idle orchestrator
func New(launcher Launcher, st *store.Store, opts Options, log *logger.Logger) *Orchestrator {
	base, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		launcher: launcher,
		store:    st,
		opts:     opts.withDefaults(),
		logger:   log.Component("refresh"),
		now:      time.Now,
		base:     base,
		cancel:   cancel,
		state:    contracts.RefreshState{Phase: contracts.PhaseIdle},
	}

	if snap := st.Current(); snap != nil && !snap.LastUpdated.IsZero() {
		at := snap.LastUpdated
		o.state.LastUpdated = &at
	}
	return o
}

// WithMetrics records refresh outcomes
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// RequestRefresh starts a gathering run unless one is already in flight.
// It never waits for the run.
func (o *Orchestrator) RequestRefresh(ctx context.Context) Result {
	o.mu.Lock()
	if o.state.Phase == contracts.PhaseRunning {
		o.mu.Unlock()
		o.metrics.RefreshSkipped()
		o.logger.Debug("Refresh already running, request ignored")
		return Result{Started: false, Status: o.Status(), Snapshot: o.store.Current()}
	}

	startedAt := o.now()
	o.state.Phase = contracts.PhaseRunning
	o.state.Progress = contracts.Progress{}
	o.state.LastError = ""
	o.state.StartedAt = &startedAt
	done := make(chan struct{})
	o.done = done
	o.mu.Unlock()

	o.metrics.RefreshStarted()

	// the run outlives the request; only the timeout and Close stop it
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.Timeout)
	stop := context.AfterFunc(o.base, cancel)

	task, err := o.launcher.Launch(runCtx)
	if err != nil {
		stop()
		cancel()
		o.finish(done, contracts.PhaseFailed, fmt.Sprintf("launch gathering step: %v", err))
		return Result{Started: false, Status: o.Status(), Snapshot: o.store.Current()}
	}

	o.logger.Info("Refresh started")
	go o.supervise(runCtx, func() { stop(); cancel() }, task, done)

	return Result{Started: true, Status: o.Status(), Snapshot: o.store.Current()}
}

// supervise consumes the task's output and settles the run
func (o *Orchestrator) supervise(ctx context.Context, release func(), task Task, done chan struct{}) {
	defer release()

	for line := range task.Lines() {
		o.applyOutput(line)
	}

	if err := task.Wait(); err != nil {
		msg := err.Error()
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			msg = fmt.Sprintf("gathering step timed out after %s: %s", o.opts.Timeout, msg)
		case o.base.Err() != nil:
			msg = "gathering step stopped by shutdown: " + msg
		}
		o.finish(done, contracts.PhaseFailed, msg)
		return
	}

	reloadCtx, cancel := context.WithTimeout(o.base, o.opts.ReloadTimeout)
	defer cancel()
	if err := o.store.Reload(reloadCtx); err != nil {
		o.finish(done, contracts.PhaseFailed, fmt.Sprintf("reload snapshot: %v", err))
		return
	}

	o.finish(done, contracts.PhaseSucceeded, "")
}

func (o *Orchestrator) applyOutput(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	// work on a copy so readers never observe a half-applied event
	p := o.state.Progress
	if applyLine(&p, line) {
		o.state.Progress = p
	}
}

// finish moves the state machine to a terminal phase and releases waiters
func (o *Orchestrator) finish(done chan struct{}, phase contracts.Phase, lastError string) {
	o.mu.Lock()
	now := o.now()
	var took time.Duration
	if o.state.StartedAt != nil {
		took = now.Sub(*o.state.StartedAt)
	}

	o.state.Phase = phase
	o.state.LastError = lastError
	if phase == contracts.PhaseSucceeded {
		o.state.LastUpdated = &now
		o.state.Progress.Percentage = 100
	}
	close(done)
	o.mu.Unlock()

	o.metrics.RefreshFinished(phase, took)

	log := o.logger.WithFields(map[string]interface{}{
		"phase":    phase,
		"duration": took.String(),
		"records":  o.store.Count(),
	})
	if phase == contracts.PhaseSucceeded {
		log.Info("Refresh completed")
	} else {
		log.WithField("error", lastError).Error("Refresh failed")
	}
}

// Status returns a consistent copy of the refresh state. It never blocks on a run.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	state := o.state
	o.mu.RUnlock()

	// copy pointer fields so callers cannot alias orchestrator state
	if state.StartedAt != nil {
		t := *state.StartedAt
		state.StartedAt = &t
	}
	if state.LastUpdated != nil {
		t := *state.LastUpdated
		state.LastUpdated = &t
	}

	stale := state.Running() && state.StartedAt != nil &&
		o.now().Sub(*state.StartedAt) > o.opts.StaleAfter

	return Status{
		RefreshState: state,
		Count:        o.store.Count(),
		Stale:        stale,
	}
}

// Wait blocks until the in-flight run settles, or returns at once when idle
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.RLock()
	done := o.done
	o.mu.RUnlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops any in-flight run and waits for it to settle
func (o *Orchestrator) Close(ctx context.Context) error {
	o.cancel()
	return o.Wait(ctx)
}
