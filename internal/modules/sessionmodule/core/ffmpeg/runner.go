// Package ffmpeg runs the external ffmpeg binary for the session module.
// All invocations go through a Runner so the encoder and the audio
// characterizer can be exercised in tests without ffmpeg installed.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/zynkhq/zynk/internal/metrics"
	sErrors "github.com/zynkhq/zynk/internal/modules/sessionmodule/errors"
)

// stderrTailBytes bounds how much ffmpeg stderr is kept for diagnosis.
const stderrTailBytes = 8 << 10

// Invocation describes one ffmpeg run.
type Invocation struct {
	// Label names the strategy in logs and metrics.
	Label  string
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
}

// Runner executes ffmpeg. Implementations return a *errors.SessionError
// wrapping ErrToolMissing, ErrToolFailed or ErrToolTimeout.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// ExecRunner runs ffmpeg as a subprocess.
type ExecRunner struct {
	path      string
	timeout   time.Duration
	killGrace time.Duration
	logger    hclog.Logger
}

// NewExecRunner creates a runner for the binary at path. A non-positive
// timeout leaves invocations bounded only by their context.
func NewExecRunner(path string, timeout, killGrace time.Duration, logger hclog.Logger) *ExecRunner {
	if path == "" {
		path = "ffmpeg"
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ExecRunner{
		path:      path,
		timeout:   timeout,
		killGrace: killGrace,
		logger:    logger.Named("ffmpeg"),
	}
}

// Run executes one invocation. A hung process is killed once its deadline
// passes and Run returns at most killGrace later.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) error {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.path, inv.Args...)
	cmd.Stdin = inv.Stdin
	cmd.Stdout = inv.Stdout
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stderr = stderr
	if r.killGrace > 0 {
		cmd.WaitDelay = r.killGrace
	}

	r.logger.Debug("running ffmpeg", "label", inv.Label, "args", strings.Join(inv.Args, " "))

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)
	metrics.EncodeObserved(inv.Label, duration, err)

	if err == nil {
		r.logger.Debug("ffmpeg finished", "label", inv.Label, "duration", duration)
		return nil
	}

	classified := r.classify(ctx, runCtx, inv, err, stderr.String())
	r.logger.Warn("ffmpeg invocation failed",
		"label", inv.Label,
		"duration", duration,
		"error", classified,
		"stderr", stderr.String())
	return classified
}

func (r *ExecRunner) classify(parent, runCtx context.Context, inv Invocation, err error, stderr string) error {
	switch {
	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist):
		return sErrors.ToolError("ffmpeg_lookup", fmt.Errorf("%w: %s", sErrors.ErrToolMissing, r.path)).
			WithDetail("strategy", inv.Label)

	case parent.Err() != nil:
		// Caller abandoned the session; not a tool fault.
		return sErrors.ToolError("ffmpeg_execution", parent.Err()).
			WithDetail("strategy", inv.Label)

	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return sErrors.ToolError("ffmpeg_execution", fmt.Errorf("%w after %s", sErrors.ErrToolTimeout, r.timeout)).
			WithDetail("strategy", inv.Label).
			WithDetail("ffmpeg_output", stderr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return sErrors.ToolError("ffmpeg_execution", fmt.Errorf("%w: exit status %d", sErrors.ErrToolFailed, exitErr.ExitCode())).
			WithDetail("strategy", inv.Label).
			WithDetail("ffmpeg_output", stderr)
	}

	return sErrors.ToolError("ffmpeg_execution", errors.Join(sErrors.ErrToolFailed, err)).
		WithDetail("strategy", inv.Label).
		WithDetail("ffmpeg_output", stderr)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
