package refresh

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kitkwok/tightzone/pkg/logger"
)

// Task is one running gathering step
type Task interface {
	// Lines yields stdout lines and is closed when stdout ends
	Lines() <-chan string
	// Wait blocks until the step exits. Call after Lines is drained.
	Wait() error
}

// Launcher starts gathering steps. Cancelling ctx must stop the step.
type Launcher interface {
	Launch(ctx context.Context) (Task, error)
}

// stderrTailBytes bounds the diagnostic kept from a failed step
const stderrTailBytes = 2048

// ExecLauncher runs the gathering step as a child process
type ExecLauncher struct {
	Path string
	Args []string
	Env  []string // appended to the parent environment
	Dir  string

	logger *logger.Logger
}

// NewExecLauncher creates a launcher for path args...
func NewExecLauncher(log *logger.Logger, path string, args ...string) *ExecLauncher {
	return &ExecLauncher{
		Path:   path,
		Args:   args,
		logger: log.Component("gather-process"),
	}
}

// ParseCommand splits a shell-like command line on whitespace.
// Quoting is not supported; wrap complex commands in a script.
func ParseCommand(command string) (string, []string, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty gather command")
	}
	return fields[0], fields[1:], nil
}

// Launch starts the process and begins streaming its stdout
func (l *ExecLauncher) Launch(ctx context.Context) (Task, error) {
	cmd := exec.CommandContext(ctx, l.Path, l.Args...)
	cmd.Dir = l.Dir
	cmd.Env = append(os.Environ(), l.Env...)
	// ask the step to stop first; WaitDelay later escalates to a kill and
	// bounds the wait for orphaned pipe holders
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	// a plain writer makes Wait own the copy, so WaitDelay also covers
	// grandchildren that inherit stdout
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	tail := &tailBuffer{max: stderrTailBytes}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("start %s: %w", l.Path, err)
	}

	l.logger.WithFields(map[string]interface{}{
		"path": l.Path,
		"args": l.Args,
		"pid":  cmd.Process.Pid,
	}).Info("Gathering step started")

	t := &execTask{
		stderr:  tail,
		lines:   make(chan string, 64),
		scanned: make(chan struct{}),
		exited:  make(chan struct{}),
	}

	go func() {
		defer close(t.scanned)
		defer close(t.lines)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			t.lines <- scanner.Text()
		}
		// an oversized line stops the scanner; keep the pipe flowing
		_, _ = io.Copy(io.Discard, pr)
	}()

	go func() {
		defer close(t.exited)
		t.err = cmd.Wait()
		pw.Close()
	}()

	return t, nil
}

type execTask struct {
	stderr  *tailBuffer
	lines   chan string
	scanned chan struct{}
	exited  chan struct{}
	err     error // set before exited is closed
}

func (t *execTask) Lines() <-chan string {
	return t.lines
}

func (t *execTask) Wait() error {
	<-t.exited
	<-t.scanned
	if t.err == nil {
		return nil
	}
	if tail := strings.TrimSpace(t.stderr.String()); tail != "" {
		return fmt.Errorf("%w: %s", t.err, tail)
	}
	return t.err
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
