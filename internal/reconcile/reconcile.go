package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"strand/internal/bead"
	"strand/internal/beadstore"
	"strand/internal/logging"
)

// Reconciler resets beads that claim to be executing but whose attempt
// timestamp is older than the staleness threshold, which happens when a
// previous daemon crashed mid-dispatch.
type Reconciler struct {
	store  *beadstore.Store
	logger *slog.Logger
}

// New creates a reconciler over the given store.
func New(store *beadstore.Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logging.NewComponentLogger(logger, "reconcile"),
	}
}

// ResetStale transitions stale in_progress beads back to retry, counting each
// reset in meta.stuck_count. A threshold of zero or less resets every
// in_progress bead regardless of age, which backs the operator-facing queue
// reset command. Returns the number of beads reset.
func (r *Reconciler) ResetStale(ctx context.Context, threshold time.Duration) (int, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-threshold)
	reset := 0
	for _, b := range all {
		if b.Status != bead.StatusInProgress {
			continue
		}
		if threshold > 0 && b.Meta.LastAttempt != nil && b.Meta.LastAttempt.After(cutoff) {
			continue
		}
		var reason string
		if b.Meta.LastAttempt != nil {
			reason = fmt.Sprintf("reset after stale execution (last attempt %s)", b.Meta.LastAttempt.UTC().Format(time.RFC3339))
		} else {
			reason = "reset after stale execution (no attempt timestamp)"
		}
		b.SetRetry(reason)
		b.Meta.StuckCount++
		if err := r.store.Save(ctx, b); err != nil {
			return reset, fmt.Errorf("reset stale bead %s: %w", b.ID, err)
		}
		reset++
		r.logger.Info("reset stale bead",
			logging.String(logging.FieldBeadID, b.ID),
			logging.Int("stuck_count", b.Meta.StuckCount),
		)
	}
	return reset, nil
}
