package worker

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/teris-io/shortid"
)

const (
	// DefaultTimeout is the hard wall-clock ceiling per worker invocation.
	DefaultTimeout = 5 * time.Minute
	// DefaultMaxOutput caps combined captured stdout/stderr per invocation.
	DefaultMaxOutput = 10 << 20
)

// Invoker spawns external worker processes. It is stateless apart from the
// running-process table, which maps an invocation key (usually a job id) to
// the live process so cancellation can reach it. The invoker knows nothing
// about stages; callers hand it a script name and a ready argv.
type Invoker struct {
	python    string
	scriptDir string
	timeout   time.Duration
	maxOutput int64

	sid *shortid.Shortid

	mu      sync.Mutex
	running map[string]*exec.Cmd
}

// NewInvoker returns an invoker running scripts from scriptDir with the
// given interpreter.
func NewInvoker(python, scriptDir string) (*Invoker, error) {
	sid, err := shortid.New(1, shortid.DefaultABC, uint64(time.Now().Unix()))
	if err != nil {
		return nil, fmt.Errorf("invoker: failed to create run id generator: %w", err)
	}
	return &Invoker{
		python:    python,
		scriptDir: scriptDir,
		timeout:   DefaultTimeout,
		maxOutput: DefaultMaxOutput,
		sid:       sid,
		running:   make(map[string]*exec.Cmd),
	}, nil
}

// RunKey builds a fresh invocation key for one-shot runs that have no job
// id (synchronous photo crop, auto-crop probing).
func (inv *Invoker) RunKey(prefix string) string {
	return prefix + "-" + inv.runID()
}

func (inv *Invoker) runID() string {
	id, err := inv.sid.Generate()
	if err != nil {
		return fmt.Sprintf("r%d", time.Now().UnixNano())
	}
	return id
}

// Invoke runs `python <scriptDir>/<script> <args...>` and returns the
// trimmed stdout. The process is registered in the running table under key
// for the duration of the run. Failure modes: *TimeoutError after the
// wall-clock ceiling, *OutputOverflowError past the capture limit,
// *ExitError on non-zero exit.
func (inv *Invoker) Invoke(ctx context.Context, key, script string, args []string) ([]byte, error) {
	runID := inv.runID()
	scriptPath := filepath.Join(inv.scriptDir, script)

	cctx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, inv.python, append([]string{scriptPath}, args...)...)
	budget := &outputBudget{remaining: inv.maxOutput}
	stdout := &cappedStream{budget: budget}
	stderr := &cappedStream{budget: budget}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// A runaway writer is killed as soon as it blows the budget instead of
	// filling memory until the timeout.
	budget.kill = func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", script, err)
	}
	inv.track(key, cmd)
	log.Printf("[run %s] %s started (key=%s pid=%d)", runID, script, key, cmd.Process.Pid)

	waitErr := cmd.Wait()
	inv.untrack(key)

	if budget.overflowed() {
		log.Printf("[run %s] %s killed: output over %d bytes", runID, script, inv.maxOutput)
		return nil, &OutputOverflowError{Limit: inv.maxOutput}
	}
	if cctx.Err() == context.DeadlineExceeded {
		log.Printf("[run %s] %s killed: timeout after %s", runID, script, inv.timeout)
		return nil, &TimeoutError{Script: script}
	}
	if waitErr != nil {
		exitCode := -1
		if ee, ok := waitErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
		msg := strings.TrimSpace(stderr.buf.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		log.Printf("[run %s] %s failed (exit=%d)", runID, script, exitCode)
		return nil, &ExitError{Script: script, ExitCode: exitCode, Stderr: msg}
	}

	log.Printf("[run %s] %s done", runID, script)
	return bytes.TrimSpace(stdout.buf.Bytes()), nil
}

// Cancel sends a graceful termination signal to the process registered
// under key. Unknown keys are a no-op.
func (inv *Invoker) Cancel(key string) {
	inv.mu.Lock()
	cmd, ok := inv.running[key]
	inv.mu.Unlock()
	if !ok || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Printf("Failed to signal worker for %s: %v", key, err)
	}
}

// Running reports whether a process is live for key.
func (inv *Invoker) Running(key string) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	_, ok := inv.running[key]
	return ok
}

// RunningCount reports the size of the running-process table.
func (inv *Invoker) RunningCount() int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return len(inv.running)
}

func (inv *Invoker) track(key string, cmd *exec.Cmd) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.running[key] = cmd
}

func (inv *Invoker) untrack(key string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.running, key)
}

// outputBudget is the shared stdout+stderr capture allowance of one run.
type outputBudget struct {
	mu        sync.Mutex
	remaining int64
	over      bool
	kill      func()
}

func (b *outputBudget) overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.over
}

// cappedStream buffers writes until the shared budget runs out, then
// discards and kills the producer.
type cappedStream struct {
	budget *outputBudget
	buf    bytes.Buffer
}

func (s *cappedStream) Write(p []byte) (int, error) {
	b := s.budget
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.over {
		return len(p), nil
	}
	if int64(len(p)) > b.remaining {
		b.over = true
		if b.kill != nil {
			b.kill()
		}
		return len(p), nil
	}
	b.remaining -= int64(len(p))
	s.buf.Write(p)
	return len(p), nil
}
