package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"strand/internal/bead"
	"strand/internal/beadstore"
	"strand/internal/config"
	"strand/internal/logging"
	"strand/internal/truth"
)

const (
	placeholderBeadID   = "{bead_id}"
	placeholderBeadPath = "{bead_path}"
)

// Option configures the executor.
type Option func(*Executor)

// WithRunner injects a custom worker runner (primarily for tests).
func WithRunner(runner Runner) Option {
	return func(e *Executor) {
		if runner != nil {
			e.runner = runner
		}
	}
}

// Executor drives a single bead through one execution attempt.
type Executor struct {
	cfg    *config.Config
	store  *beadstore.Store
	truth  truth.Source
	runner Runner
	logger *slog.Logger
}

// New constructs an executor.
func New(cfg *config.Config, store *beadstore.Store, source truth.Source, logger *slog.Logger, opts ...Option) (*Executor, error) {
	if cfg == nil || store == nil || source == nil {
		return nil, errors.New("executor requires config, store, and truth source")
	}
	e := &Executor{
		cfg:    cfg,
		store:  store,
		truth:  source,
		runner: newProcessRunner(logger),
		logger: logging.NewComponentLogger(logger, "executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute runs one attempt for the bead and persists the resulting state.
// Worker failures are contained as status transitions; the returned error is
// reserved for store I/O problems and cancellation.
func (e *Executor) Execute(ctx context.Context, b *bead.Bead) error {
	if b == nil {
		return errors.New("bead is required")
	}
	if strings.TrimSpace(b.ID) == "" {
		return errors.New("bead id is required")
	}
	if b.Status == "" {
		b.Status = bead.StatusPending
	}

	runID := uuid.NewString()
	logger := e.logger.With(
		logging.String(logging.FieldBeadID, b.ID),
		logging.String(logging.FieldRunID, runID),
	)

	maxAttempts := e.cfg.Daemon.MaxAttempts
	if b.Meta.AttemptCount >= maxAttempts {
		b.SetBlocked(fmt.Sprintf("attempts exhausted before dispatch (%d/%d)", b.Meta.AttemptCount, maxAttempts))
		if err := e.store.Save(ctx, b); err != nil {
			return err
		}
		logger.Warn("bead blocked",
			logging.String(logging.FieldEventType, "bead_blocked"),
			logging.Int(logging.FieldAttempt, b.Meta.AttemptCount),
			logging.String(logging.FieldErrorHint, "re-arm with 'strand queue retry --include-blocked'"),
		)
		return nil
	}

	started := time.Now().UTC()
	b.Status = bead.StatusInProgress
	b.Meta.LastAttempt = &started
	b.Meta.AttemptCount++
	if err := e.store.Save(ctx, b); err != nil {
		return err
	}

	logger.Info("dispatching worker",
		logging.Int(logging.FieldAttempt, b.Meta.AttemptCount),
		logging.Int("priority", b.Priority),
	)

	result, err := e.runner.Run(ctx, Invocation{
		Command: e.cfg.Worker.Command,
		Args:    expandArgs(e.cfg.Worker.Args, b.ID, e.store.Path(b.ID)),
		Dir:     e.cfg.Paths.WorkDir,
		Timeout: time.Duration(e.cfg.Worker.Timeout) * time.Second,
	})
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-run: re-arm the bead so the next daemon picks it
			// up, then surface the cancellation.
			b.SetRetry("interrupted by daemon shutdown")
			if saveErr := e.store.Save(ctx, b); saveErr != nil {
				logger.Error("save after interruption failed", logging.Error(saveErr))
			}
			return ctx.Err()
		}
		b.SetRetry(fmt.Sprintf("worker launch failed: %v", err))
		if saveErr := e.store.Save(ctx, b); saveErr != nil {
			return saveErr
		}
		logger.Error("worker launch failed",
			logging.String(logging.FieldEventType, "worker_launch_failed"),
			logging.Error(err),
		)
		return nil
	}

	if result.TimedOut {
		b.SetRetry(fmt.Sprintf("worker timed out after %ds", e.cfg.Worker.Timeout))
		b.Meta.TimeoutCount++
		if err := e.store.Save(ctx, b); err != nil {
			return err
		}
		logger.Warn("worker timed out",
			logging.String(logging.FieldEventType, "worker_timeout"),
			logging.Int("timeout_count", b.Meta.TimeoutCount),
			logging.Duration("elapsed", time.Since(started)),
		)
		return nil
	}

	return e.settle(ctx, logger, b, result, maxAttempts)
}

// settle reloads the bead (the worker may have rewritten its file) and
// applies the completion rule: the bead is complete when its record already
// says completed, or when the worker exited cleanly and the truth ledger
// confirms the task.
func (e *Executor) settle(ctx context.Context, logger *slog.Logger, b *bead.Bead, result Result, maxAttempts int) error {
	current, err := e.store.Load(ctx, b.ID)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		logger.Warn("reload after worker exit failed, using in-memory state",
			logging.Error(err),
		)
		current = b
	}
	// The worker may have rewritten the file with stale bookkeeping; keep the
	// counters this attempt already recorded.
	if current.Meta.AttemptCount < b.Meta.AttemptCount {
		current.Meta.AttemptCount = b.Meta.AttemptCount
	}
	if current.Meta.LastAttempt == nil {
		current.Meta.LastAttempt = b.Meta.LastAttempt
	}

	if current.Status == bead.StatusCompleted {
		current.Meta.LastError = ""
		if err := e.store.Save(ctx, current); err != nil {
			return err
		}
		logger.Info("bead completed",
			logging.String(logging.FieldEventType, "bead_completed"),
			logging.String("confirmed_by", "record"),
		)
		return nil
	}

	if result.ExitCode == 0 {
		done, lookupErr := e.truth.Lookup(ctx, current.ID)
		if lookupErr != nil {
			if ctx.Err() != nil {
				return lookupErr
			}
			logger.Warn("truth ledger lookup failed",
				logging.String(logging.FieldEventType, "truth_lookup_failed"),
				logging.Error(lookupErr),
			)
		}
		if done {
			current.SetCompleted()
			if err := e.store.Save(ctx, current); err != nil {
				return err
			}
			logger.Info("bead completed",
				logging.String(logging.FieldEventType, "bead_completed"),
				logging.String("confirmed_by", "truth_ledger"),
			)
			return nil
		}
	}

	var reason string
	if result.ExitCode != 0 {
		reason = fmt.Sprintf("worker exited with code %d", result.ExitCode)
	} else {
		reason = "worker exited cleanly but completion is unconfirmed"
	}

	if current.Meta.AttemptCount >= maxAttempts {
		current.SetFailed(reason)
	} else {
		current.SetRetry(reason)
	}
	if err := e.store.Save(ctx, current); err != nil {
		return err
	}
	logger.Warn("bead attempt failed",
		logging.String(logging.FieldEventType, "bead_attempt_failed"),
		logging.String(logging.FieldStatus, string(current.Status)),
		logging.Int(logging.FieldAttempt, current.Meta.AttemptCount),
		logging.Int("exit_code", result.ExitCode),
	)
	// Propagate the final state back to the caller's copy.
	*b = *current
	return nil
}

// expandArgs substitutes invocation placeholders. When no placeholder is
// present the bead id is appended so the worker always learns which bead to
// run.
func expandArgs(args []string, id, path string) []string {
	expanded := make([]string, 0, len(args)+1)
	sawPlaceholder := false
	for _, arg := range args {
		if strings.Contains(arg, placeholderBeadID) || strings.Contains(arg, placeholderBeadPath) {
			sawPlaceholder = true
		}
		arg = strings.ReplaceAll(arg, placeholderBeadID, id)
		arg = strings.ReplaceAll(arg, placeholderBeadPath, path)
		expanded = append(expanded, arg)
	}
	if !sawPlaceholder {
		expanded = append(expanded, id)
	}
	return expanded
}
