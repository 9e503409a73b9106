package tool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultMaxOutputBytes caps captured stdout and stderr, each. Output past
// the cap is dropped and the result flagged truncated.
const DefaultMaxOutputBytes = 1 << 20

// killGracePeriod is how long Wait allows for pipe draining after the
// process group has been killed.
const killGracePeriod = 3 * time.Second

// ExecSpec describes a subprocess to run.
type ExecSpec struct {
	Argv    []string
	Stdin   string
	Dir     string
	Env     map[string]string
	Timeout time.Duration
	// MaxOutputBytes caps each captured stream; zero means
	// DefaultMaxOutputBytes.
	MaxOutputBytes int
}

// ExecutionResult is the raw outcome of a subprocess run. A non-zero exit
// code is data, not an error: the tool ran and reported failure, which the
// formatter passes through to the caller.
type ExecutionResult struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Duration  time.Duration
	TimedOut  bool
	Truncated bool
}

// Runner executes assembled invocations. The engine depends on this
// interface so tests can substitute a stub and assert that invalid requests
// never spawn a process.
type Runner interface {
	Run(ctx context.Context, spec ExecSpec) (ExecutionResult, *InvokeError)
}

// ProcessRunner runs subprocesses on the host. Each child is placed in its
// own process group so a timeout kills the whole tree, not just the
// immediate interpreter.
type ProcessRunner struct{}

func NewProcessRunner() *ProcessRunner { return &ProcessRunner{} }

func (p *ProcessRunner) Run(ctx context.Context, spec ExecSpec) (ExecutionResult, *InvokeError) {
	if len(spec.Argv) == 0 {
		return ExecutionResult{}, NewInvokeError(StageExecute, CodeExecutionFailed, "Empty argv")
	}
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}
	if len(spec.Env) > 0 {
		env := os.Environ()
		for key, value := range spec.Env {
			env = append(env, key+"="+value)
		}
		cmd.Env = env
	}

	capBytes := spec.MaxOutputBytes
	if capBytes <= 0 {
		capBytes = DefaultMaxOutputBytes
	}
	stdout := newCappedBuffer(capBytes)
	stderr := newCappedBuffer(capBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	setProcAttributes(cmd)
	cmd.Cancel = func() error { return terminateProcess(cmd) }
	cmd.WaitDelay = killGracePeriod

	start := time.Now()
	err := cmd.Run()
	result := ExecutionResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
		return result, NewInvokeError(StageExecute, CodeTimeout,
			fmt.Sprintf("Execution exceeded the %s timeout", timeout)).
			WithDetail("timeout_seconds", timeout.Seconds())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, NewInvokeError(StageExecute, CodeExecutionFailed,
			fmt.Sprintf("Failed to run %s", spec.Argv[0])).WithCause(err)
	}
	result.ExitCode = 0
	return result, nil
}

// cappedBuffer collects at most cap bytes and discards the rest, recording
// that truncation happened. Write never fails so the child is not killed by
// a broken pipe when it outruns the cap.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.limit - len(b.buf)
	if remaining > 0 {
		if len(p) <= remaining {
			b.buf = append(b.buf, p...)
		} else {
			b.buf = append(b.buf, p[:remaining]...)
			b.truncated = true
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
