package refresh

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitkwok/tightzone/internal/contracts"
	"github.com/kitkwok/tightzone/internal/store"
	"github.com/kitkwok/tightzone/pkg/logger"
)

// fakeTask is driven by the test through its channels
type fakeTask struct {
	lines   chan string
	exitErr chan error
}

func newFakeTask() *fakeTask {
	return &fakeTask{lines: make(chan string), exitErr: make(chan error, 1)}
}

func (t *fakeTask) Lines() <-chan string { return t.lines }
func (t *fakeTask) Wait() error          { return <-t.exitErr }

// exit ends stdout and the process
func (t *fakeTask) exit(err error) {
	close(t.lines)
	t.exitErr <- err
}

type fakeLauncher struct {
	mu       sync.Mutex
	launches atomic.Int64
	tasks    []*fakeTask
	err      error
}

func (l *fakeLauncher) Launch(ctx context.Context) (Task, error) {
	l.launches.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	t := newFakeTask()
	l.mu.Lock()
	l.tasks = append(l.tasks, t)
	l.mu.Unlock()
	return t, nil
}

func (l *fakeLauncher) last() *fakeTask {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks[len(l.tasks)-1]
}

type fixture struct {
	backend *store.FileBackend
	store   *store.Store
}

func newFixture(t *testing.T) *fixture {
	dir := t.TempDir()
	b := store.NewFileBackend(filepath.Join(dir, "stocks.json"), filepath.Join(dir, "meta.json"))
	return &fixture{backend: b, store: store.New(b, logger.Nop())}
}

// seed writes n records to the durable backend, as a gathering step would
func (f *fixture) seed(t *testing.T, n int) {
	snap := &contracts.Snapshot{LastUpdated: time.Now().UTC()}
	for i := 0; i < n; i++ {
		snap.Records = append(snap.Records, contracts.CandidateRecord{Symbol: "NYSE:S" + string(rune('A'+i))})
	}
	require.NoError(t, f.backend.Save(context.Background(), snap))
}

func waitSettled(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Wait(ctx))
}

func TestRequestRefresh_AtMostOneRun(t *testing.T) {
	f := newFixture(t)
	launcher := &fakeLauncher{}
	o := New(launcher, f.store, Options{}, logger.Nop())

	first := o.RequestRefresh(context.Background())
	assert.True(t, first.Started)
	assert.Equal(t, contracts.PhaseRunning, first.Status.Phase)
	assert.Nil(t, first.Snapshot)

	for i := 0; i < 5; i++ {
		again := o.RequestRefresh(context.Background())
		assert.False(t, again.Started)
		assert.True(t, again.Status.Running())
	}
	assert.Equal(t, int64(1), launcher.launches.Load())

	f.seed(t, 3)
	launcher.last().exit(nil)
	waitSettled(t, o)

	st := o.Status()
	assert.Equal(t, contracts.PhaseSucceeded, st.Phase)
	assert.Equal(t, 100, st.Progress.Percentage)
	assert.Equal(t, 3, st.Count)
	assert.NotNil(t, st.LastUpdated)
	assert.Empty(t, st.LastError)

	// a settled orchestrator accepts the next request
	next := o.RequestRefresh(context.Background())
	assert.True(t, next.Started)
	assert.Equal(t, 3, next.Status.Count)
	assert.Equal(t, 0, next.Status.Progress.Percentage)
	launcher.last().exit(errors.New("exit status 1"))
	waitSettled(t, o)
	assert.Equal(t, int64(2), launcher.launches.Load())
}

func TestRequestRefresh_ConcurrentCallers(t *testing.T) {
	f := newFixture(t)
	launcher := &fakeLauncher{}
	o := New(launcher, f.store, Options{}, logger.Nop())

	var started atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if o.RequestRefresh(context.Background()).Started {
				started.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), started.Load())
	assert.Equal(t, int64(1), launcher.launches.Load())

	launcher.last().exit(errors.New("stop"))
	waitSettled(t, o)
}

func TestRequestRefresh_ProgressUpdates(t *testing.T) {
	f := newFixture(t)
	launcher := &fakeLauncher{}
	o := New(launcher, f.store, Options{}, logger.Nop())
	o.RequestRefresh(context.Background())
	task := launcher.last()

	task.lines <- `{"type":"progress","current":3,"total":20}`
	assert.Eventually(t, func() bool { return o.Status().Progress.Current == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 15, o.Status().Progress.Percentage)

	task.lines <- "not a marker"
	task.lines <- `{"type":"progress","current":`
	task.lines <- "Processing 10/20 symbols"
	assert.Eventually(t, func() bool { return o.Status().Progress.Current == 10 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 50, o.Status().Progress.Percentage)

	task.lines <- "Found 7 VCP candidates"
	assert.Eventually(t, func() bool { return o.Status().Progress.Found == 7 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 10, o.Status().Progress.Current)

	f.seed(t, 7)
	task.exit(nil)
	waitSettled(t, o)
	assert.Equal(t, 100, o.Status().Progress.Percentage)
}

func TestRequestRefresh_FailureKeepsStore(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 4)
	require.NoError(t, f.store.Reload(context.Background()))
	before, err := os.ReadFile(f.backend.DataPath())
	require.NoError(t, err)
	served := f.store.Current()

	launcher := &fakeLauncher{}
	o := New(launcher, f.store, Options{}, logger.Nop())
	res := o.RequestRefresh(context.Background())
	require.True(t, res.Started)
	assert.Equal(t, 4, res.Status.Count)
	assert.Same(t, served, res.Snapshot)

	launcher.last().exit(errors.New("exit status 2: upstream unavailable"))
	waitSettled(t, o)

	st := o.Status()
	assert.Equal(t, contracts.PhaseFailed, st.Phase)
	assert.Contains(t, st.LastError, "upstream unavailable")
	assert.Equal(t, 4, st.Count)
	assert.Same(t, served, f.store.Current())

	after, err := os.ReadFile(f.backend.DataPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// lastError is cleared by the next run
	o.RequestRefresh(context.Background())
	assert.Empty(t, o.Status().LastError)
	launcher.last().exit(errors.New("again"))
	waitSettled(t, o)
}

func TestRequestRefresh_LaunchFailure(t *testing.T) {
	f := newFixture(t)
	o := New(&fakeLauncher{err: errors.New("no such file")}, f.store, Options{}, logger.Nop())

	res := o.RequestRefresh(context.Background())
	assert.False(t, res.Started)
	assert.Equal(t, contracts.PhaseFailed, res.Status.Phase)
	assert.Contains(t, res.Status.LastError, "no such file")
	assert.NoError(t, o.Wait(context.Background()))
}

func TestRequestRefresh_ReloadFailure(t *testing.T) {
	f := newFixture(t)
	launcher := &fakeLauncher{}
	o := New(launcher, f.store, Options{}, logger.Nop())

	o.RequestRefresh(context.Background())
	// exits cleanly without writing anything
	launcher.last().exit(nil)
	waitSettled(t, o)

	st := o.Status()
	assert.Equal(t, contracts.PhaseFailed, st.Phase)
	assert.Contains(t, st.LastError, "reload snapshot")
	assert.Nil(t, st.LastUpdated)
}

func TestStatus_Stale(t *testing.T) {
	f := newFixture(t)
	launcher := &fakeLauncher{}
	o := New(launcher, f.store, Options{StaleAfter: 5 * time.Minute}, logger.Nop())

	var mu sync.Mutex
	now := time.Date(2024, 6, 3, 16, 30, 0, 0, time.UTC)
	o.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	o.RequestRefresh(context.Background())
	assert.False(t, o.Status().Stale)

	mu.Lock()
	now = now.Add(6 * time.Minute)
	mu.Unlock()
	assert.True(t, o.Status().Stale)

	launcher.last().exit(errors.New("stop"))
	waitSettled(t, o)
	assert.False(t, o.Status().Stale)
}

func TestStatus_CopiesTimestamps(t *testing.T) {
	f := newFixture(t)
	launcher := &fakeLauncher{}
	o := New(launcher, f.store, Options{}, logger.Nop())
	o.RequestRefresh(context.Background())

	st := o.Status()
	require.NotNil(t, st.StartedAt)
	*st.StartedAt = time.Time{}
	assert.False(t, o.Status().StartedAt.IsZero())

	launcher.last().exit(errors.New("stop"))
	waitSettled(t, o)
}

func TestNew_SeedsLastUpdatedFromStore(t *testing.T) {
	f := newFixture(t)
	f.seed(t, 1)
	require.NoError(t, f.store.Reload(context.Background()))

	o := New(&fakeLauncher{}, f.store, Options{}, logger.Nop())
	st := o.Status()
	assert.Equal(t, contracts.PhaseIdle, st.Phase)
	require.NotNil(t, st.LastUpdated)
	assert.Equal(t, 1, st.Count)
}

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestExecLauncher_Success(t *testing.T) {
	sh := requireShell(t)
	f := newFixture(t)
	f.seed(t, 4)

	script := `echo '{"type":"progress","current":1,"total":2}'; echo 'found 4'; echo 'log line' >&2`
	o := New(NewExecLauncher(logger.Nop(), sh, "-c", script), f.store, Options{}, logger.Nop())

	require.True(t, o.RequestRefresh(context.Background()).Started)
	waitSettled(t, o)

	st := o.Status()
	assert.Equal(t, contracts.PhaseSucceeded, st.Phase, st.LastError)
	assert.Equal(t, 4, st.Progress.Found)
	assert.Equal(t, 1, st.Progress.Current)
	assert.Equal(t, 100, st.Progress.Percentage)
	assert.Equal(t, 4, st.Count)
}

func TestExecLauncher_FailureCarriesStderr(t *testing.T) {
	sh := requireShell(t)
	f := newFixture(t)

	o := New(NewExecLauncher(logger.Nop(), sh, "-c", `echo 'screener unreachable' >&2; exit 3`), f.store, Options{}, logger.Nop())
	o.RequestRefresh(context.Background())
	waitSettled(t, o)

	st := o.Status()
	assert.Equal(t, contracts.PhaseFailed, st.Phase)
	assert.Contains(t, st.LastError, "exit status 3")
	assert.Contains(t, st.LastError, "screener unreachable")
}

func TestExecLauncher_Timeout(t *testing.T) {
	sh := requireShell(t)
	f := newFixture(t)

	o := New(NewExecLauncher(logger.Nop(), sh, "-c", "exec sleep 10"), f.store, Options{Timeout: 100 * time.Millisecond}, logger.Nop())
	o.RequestRefresh(context.Background())
	waitSettled(t, o)

	st := o.Status()
	assert.Equal(t, contracts.PhaseFailed, st.Phase)
	assert.Contains(t, st.LastError, "timed out")
}

func TestExecLauncher_TimeoutSendsSIGTERM(t *testing.T) {
	sh := requireShell(t)
	f := newFixture(t)

	script := `trap 'echo cleaned up >&2; exit 4' TERM; while :; do sleep 0.1; done`
	o := New(NewExecLauncher(logger.Nop(), sh, "-c", script), f.store, Options{Timeout: 200 * time.Millisecond}, logger.Nop())
	o.RequestRefresh(context.Background())
	waitSettled(t, o)

	st := o.Status()
	assert.Equal(t, contracts.PhaseFailed, st.Phase)
	assert.Contains(t, st.LastError, "timed out")
	// the trap only runs on a catchable signal
	assert.Contains(t, st.LastError, "cleaned up")
}

func TestExecLauncher_MissingBinary(t *testing.T) {
	f := newFixture(t)
	o := New(NewExecLauncher(logger.Nop(), filepath.Join(t.TempDir(), "missing")), f.store, Options{}, logger.Nop())

	res := o.RequestRefresh(context.Background())
	assert.False(t, res.Started)
	assert.Equal(t, contracts.PhaseFailed, res.Status.Phase)
}

func TestClose_StopsRun(t *testing.T) {
	sh := requireShell(t)
	f := newFixture(t)

	o := New(NewExecLauncher(logger.Nop(), sh, "-c", "exec sleep 10"), f.store, Options{}, logger.Nop())
	o.RequestRefresh(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Close(ctx))
	assert.Equal(t, contracts.PhaseFailed, o.Status().Phase)
	assert.Contains(t, o.Status().LastError, "shutdown")
}

func TestApplyLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		changed bool
		want    contracts.Progress
	}{
		{"json progress", `{"type":"progress","current":3,"total":20}`, true, contracts.Progress{Current: 3, Total: 20, Percentage: 15}},
		{"json found", `{"type":"found","count":12}`, true, contracts.Progress{Found: 12}},
		{"json unknown type", `{"type":"debug"}`, false, contracts.Progress{}},
		{"json malformed", `{"type":`, false, contracts.Progress{}},
		{"json zero total", `{"type":"progress","current":1,"total":0}`, false, contracts.Progress{}},
		{"text fraction", "[7/8] scanning MSFT", true, contracts.Progress{Current: 7, Total: 8, Percentage: 87}},
		{"text fraction spaced", "progress 2 / 4", true, contracts.Progress{Current: 2, Total: 4, Percentage: 50}},
		{"text found", "Found 5 stocks", true, contracts.Progress{Found: 5}},
		{"overshoot capped", "25/20", true, contracts.Progress{Current: 25, Total: 20, Percentage: 100}},
		{"blank", "   ", false, contracts.Progress{}},
		{"noise", "fetching history for AAPL", false, contracts.Progress{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p contracts.Progress
			assert.Equal(t, tt.changed, applyLine(&p, tt.line))
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 8}
	_, _ = b.Write([]byte("hello "))
	_, _ = b.Write([]byte("world!"))
	assert.Equal(t, "o world!", b.String())
}

func TestParseCommand(t *testing.T) {
	path, args, err := ParseCommand("  python3 gather.py --limit 50 ")
	require.NoError(t, err)
	assert.Equal(t, "python3", path)
	assert.Equal(t, []string{"gather.py", "--limit", "50"}, args)

	_, _, err = ParseCommand("   ")
	assert.Error(t, err)
}
