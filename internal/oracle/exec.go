package oracle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// waitDelay bounds how long Wait blocks on pipes held open by orphaned
// grandchildren after the go tool itself was killed.
const waitDelay = 5 * time.Second

type runOutput struct {
	stdout   string
	stderr   string
	exitCode int
	duration time.Duration
}

// runTests executes `go test` with coverage instrumentation in dir. The run
// is detached from ctx cancellation and bounded only by the oracle timeout.
func (o *Oracle) runTests(ctx context.Context, dir string) (runOutput, error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.Timeout)
	defer cancel()

	args := []string{
		"test",
		"-cover",
		"-covermode=set",
		"-coverprofile=" + profileFile,
		// The binary's own limit sits behind ours so the kill below wins.
		"-timeout=" + (2 * o.cfg.Timeout).String(),
		".",
	}
	cmd := exec.CommandContext(runCtx, o.cfg.GoBinary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOFLAGS=-mod=mod", "GOWORK=off", "GOTOOLCHAIN=local")
	cmd.WaitDelay = waitDelay
	setupProcessGroup(cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: o.cfg.MaxOutputBytes}
	stderr := &limitedWriter{w: &stderrBuf, max: o.cfg.MaxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	o.logger.Debug("Running go test.", zap.String("dir", dir), zap.Strings("args", args))
	started := time.Now()
	err := cmd.Run()

	out := runOutput{
		stdout:   stdoutBuf.String(),
		stderr:   stderrBuf.String(),
		exitCode: -1,
		duration: time.Since(started),
	}
	if cmd.ProcessState != nil {
		out.exitCode = cmd.ProcessState.ExitCode()
	}
	if stdout.truncated || stderr.truncated {
		o.logger.Warn("Test output exceeded capture limit and was truncated.",
			zap.Int64("limit", o.cfg.MaxOutputBytes))
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return out, &EvalError{Kind: KindTimeout, Stdout: out.stdout, Stderr: out.stderr, Err: runCtx.Err()}
	}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return out, &EvalError{Kind: KindLaunch, Stdout: out.stdout, Stderr: out.stderr, Err: err}
	}
	return out, nil
}

// limitedWriter is an io.Writer that keeps at most max bytes and silently
// discards the rest.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		// Report the full length so the child never sees a short write.
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
