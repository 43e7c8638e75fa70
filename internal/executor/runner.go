package executor

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"strand/internal/logging"
)

// Invocation describes one worker launch.
type Invocation struct {
	Command string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// Result captures the observable outcome of a worker process.
type Result struct {
	ExitCode int
	TimedOut bool
}

// Runner abstracts worker process execution for testability.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// processRunner launches the worker in its own process group so a timeout
// kill reaches the whole tree, not just the direct child.
type processRunner struct {
	logger *slog.Logger
}

func newProcessRunner(logger *slog.Logger) processRunner {
	return processRunner{logger: logging.NewComponentLogger(logger, "worker")}
}

func (r processRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.Command(inv.Command, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return Result{}, err
	}
	pid := cmd.Process.Pid

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()
	// The wait below reaps the child in every path, so no worker process
	// outlives this call.

	select {
	case waitErr := <-done:
		return resultFromWait(waitErr)
	case <-runCtx.Done():
		r.terminate(pid)
		<-done
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		return Result{TimedOut: true}, nil
	}
}

// terminate kills the worker's process group. The liveness probe tolerates
// the race where the worker exits between the deadline firing and the kill.
func (r processRunner) terminate(pid int) {
	if err := unix.Kill(pid, 0); err != nil {
		return
	}
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		r.logger.Warn("worker group kill failed",
			logging.Int("pid", pid),
			logging.Error(err),
		)
	}
}

func resultFromWait(waitErr error) (Result, error) {
	if waitErr == nil {
		return Result{ExitCode: 0}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode()}, nil
	}
	return Result{}, waitErr
}
