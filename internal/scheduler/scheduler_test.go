package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitkwok/tightzone/pkg/logger"
)

type testJob struct {
	name     string
	schedule string
	calls    atomic.Int64
	failFor  int64 // first N calls fail
	block    chan struct{}
}

func (j *testJob) Name() string     { return j.name }
func (j *testJob) Schedule() string { return j.schedule }

func (j *testJob) Run(ctx context.Context) error {
	n := j.calls.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if n <= j.failFor {
		return errors.New("transient")
	}
	return nil
}

func newTestScheduler(retries int) *Scheduler {
	return New(Options{MaxRetries: retries, RetryDelay: time.Millisecond}, logger.Nop())
}

func TestAddJob(t *testing.T) {
	s := newTestScheduler(0)

	require.NoError(t, s.AddJob(&testJob{name: "a", schedule: "0 */5 * * * *"}))
	require.NoError(t, s.AddJob(&testJob{name: "b"}))
	assert.Error(t, s.AddJob(&testJob{name: "a"}))
	assert.Error(t, s.AddJob(&testJob{name: "bad", schedule: "not a cron"}))

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())
}

func TestRemoveJob(t *testing.T) {
	s := newTestScheduler(0)
	require.NoError(t, s.AddJob(&testJob{name: "a", schedule: "@every 1h"}))

	require.NoError(t, s.RemoveJob("a"))
	assert.Empty(t, s.GetAllJobs())
	assert.Empty(t, s.cron.Entries())
	assert.Error(t, s.RemoveJob("a"))
}

func TestRunJob_Retries(t *testing.T) {
	s := newTestScheduler(2)
	job := &testJob{name: "flaky", failFor: 2}
	require.NoError(t, s.AddJob(job))

	s.runJob(job)

	history, err := s.GetJobHistory("flaky")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)
	assert.Equal(t, 3, history[0].Attempts)
	assert.Equal(t, int64(3), job.calls.Load())
}

func TestRunJob_FailsAfterRetries(t *testing.T) {
	s := newTestScheduler(1)
	job := &testJob{name: "broken", failFor: 100}
	require.NoError(t, s.AddJob(job))

	s.runJob(job)

	stats := s.GetJobStats()
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].FailureCount)
	assert.Equal(t, "transient", stats[0].LastError)
	assert.NotNil(t, stats[0].LastFailure)
	assert.Nil(t, stats[0].LastSuccess)
	assert.Equal(t, float64(0), stats[0].SuccessRate)
	assert.Equal(t, int64(2), job.calls.Load())
}

func TestRunJob_SkipsOverlap(t *testing.T) {
	s := newTestScheduler(0)
	job := &testJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("slow"))
	require.Eventually(t, func() bool { return job.calls.Load() == 1 }, time.Second, time.Millisecond)

	// second trigger while the first is still running
	s.runJob(job)
	assert.Equal(t, int64(1), job.calls.Load())
	assert.True(t, s.GetJobStats()[0].Running)

	close(job.block)
	require.Eventually(t, func() bool {
		h, _ := s.GetJobHistory("slow")
		return len(h) == 1
	}, time.Second, time.Millisecond)
}

func TestRunJob_Unknown(t *testing.T) {
	s := newTestScheduler(0)
	assert.Error(t, s.RunJob("missing"))
	_, err := s.GetJobHistory("missing")
	assert.Error(t, err)
}

func TestStop_CancelsRunningJob(t *testing.T) {
	s := newTestScheduler(3)
	job := &testJob{name: "long", block: make(chan struct{})}
	require.NoError(t, s.AddJob(job))
	s.Start()

	require.NoError(t, s.RunJob("long"))
	require.Eventually(t, func() bool { return job.calls.Load() == 1 }, time.Second, time.Millisecond)

	s.Stop()

	// cancelled, not retried
	assert.Equal(t, int64(1), job.calls.Load())
	h, err := s.GetJobHistory("long")
	require.NoError(t, err)
	require.Len(t, h, 1)
	assert.False(t, h[0].Success)
}

func TestJobStats_NextRun(t *testing.T) {
	s := newTestScheduler(0)
	require.NoError(t, s.AddJob(&testJob{name: "hourly", schedule: "@every 1h"}))
	require.NoError(t, s.AddJob(&testJob{name: "manual"}))
	s.Start()
	defer s.Stop()

	stats := s.GetJobStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "hourly", stats[0].JobName)
	assert.NotNil(t, stats[0].NextRun)
	assert.Nil(t, stats[1].NextRun)
}

func TestJobHistory_Bounded(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < maxHistory+10; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, maxHistory)

	success, failed := h.Counts()
	assert.Equal(t, maxHistory, success+failed)
}
