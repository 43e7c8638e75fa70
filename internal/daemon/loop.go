package daemon

import (
	"context"
	"errors"
	"time"

	"strand/internal/logging"
)

// run is the daemon's poll loop. Internal errors never terminate it; repeated
// failures trigger a capped exponential backoff instead. Only context
// cancellation ends the loop.
func (d *Daemon) run(ctx context.Context) {
	defer d.wg.Done()

	pollInterval := time.Duration(d.cfg.Daemon.PollInterval) * time.Second
	bo := newBackoff(
		time.Duration(d.cfg.Daemon.RestartDelayBase)*time.Second,
		time.Duration(d.cfg.Daemon.RestartDelayMax)*time.Second,
		d.cfg.Daemon.ErrorThreshold,
	)

	for {
		if ctx.Err() != nil {
			return
		}

		err := d.cycle(ctx)
		switch {
		case err == nil:
			bo.observeSuccess()
			d.setLastError(nil)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return
		default:
			d.setLastError(err)
			d.logger.Error("cycle failed",
				logging.String(logging.FieldEventType, "cycle_failed"),
				logging.Error(err),
			)
			if wait := bo.observeFailure(); wait > 0 {
				d.logger.Warn("backing off after repeated errors",
					logging.String(logging.FieldEventType, "cycle_backoff"),
					logging.Duration("backoff", wait),
				)
				if !sleepInterruptible(ctx, wait) {
					return
				}
				continue
			}
		}

		if !sleepInterruptible(ctx, pollInterval) {
			return
		}
	}
}

// cycle performs one pass: reset stale work, then dispatch every eligible
// bead in priority order with a short pause between items.
func (d *Daemon) cycle(ctx context.Context) error {
	stuckThreshold := time.Duration(d.cfg.Daemon.StuckThreshold) * time.Second
	if _, err := d.recon.ResetStale(ctx, stuckThreshold); err != nil {
		return err
	}

	eligible, err := d.store.ListEligible(ctx)
	if err != nil {
		return err
	}

	dispatchPause := time.Duration(d.cfg.Daemon.DispatchPause) * time.Second
	for i, b := range eligible {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.setLastBead(b.ID)
		if err := d.exec.Execute(ctx, b); err != nil {
			return err
		}
		if dispatchPause > 0 && i < len(eligible)-1 {
			if !sleepInterruptible(ctx, dispatchPause) {
				return ctx.Err()
			}
		}
	}
	return nil
}

// sleepInterruptible waits for the duration or until cancellation; it returns
// false when the context ended the wait.
func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
