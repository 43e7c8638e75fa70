package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"strand/internal/bead"
	"strand/internal/beadstore"
	"strand/internal/config"
	"strand/internal/executor"
	"strand/internal/logging"
	"strand/internal/reconcile"
)

// Daemon owns the polling loop and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *beadstore.Store
	exec   *executor.Executor
	recon  *reconcile.Reconciler

	lockPath string
	lock     *flock.Flock
	pidPath  string

	lifecycleMu sync.Mutex
	running     atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	done        chan struct{}
	doneOnce    sync.Once

	mu         sync.Mutex
	lastError  string
	lastBeadID string
}

// Status represents daemon runtime information.
type Status struct {
	Running    bool
	QueueStats map[string]int
	LastError  string
	LastBeadID string
	LockPath   string
	BeadsDir   string
	PID        int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *beadstore.Store, exec *executor.Executor, recon *reconcile.Reconciler, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || exec == nil || recon == nil {
		return nil, errors.New("daemon requires config, store, executor, and reconciler")
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "strandd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		exec:     exec,
		recon:    recon,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		pidPath:  filepath.Join(cfg.Paths.LogDir, "strand.pid"),
		done:     make(chan struct{}),
	}, nil
}

// Start acquires the daemon lock, writes the PID marker, and launches the
// polling loop.
func (d *Daemon) Start(ctx context.Context) error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another strand daemon instance is already running")
	}

	if err := writePIDFile(d.pidPath); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running.Store(true)
	d.wg.Add(1)
	go d.run(loopCtx)

	d.logger.Info("strand daemon started",
		logging.String("lock", d.lockPath),
		logging.String("beads_dir", d.store.Dir()),
	)
	return nil
}

// Stop halts the polling loop, removes the PID marker, and releases the lock.
// It may be called from the IPC goroutine and the process shutdown path
// concurrently; the lifecycle mutex serializes the two.
func (d *Daemon) Stop() {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()

	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()

	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.doneOnce.Do(func() { close(d.done) })
	d.logger.Info("strand daemon stopped")
}

// Done is closed once the daemon has stopped, so the hosting process can exit
// when an IPC stop request arrives instead of waiting for a signal.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// ListBeads returns beads filtered by optional statuses.
func (d *Daemon) ListBeads(ctx context.Context, statuses []bead.Status) ([]*bead.Bead, error) {
	all, err := d.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return all, nil
	}
	wanted := make(map[bead.Status]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}
	filtered := make([]*bead.Bead, 0, len(all))
	for _, b := range all {
		if _, ok := wanted[b.Status]; ok {
			filtered = append(filtered, b)
		}
	}
	return filtered, nil
}

// RetryBeads re-arms failed (and optionally blocked) beads.
func (d *Daemon) RetryBeads(ctx context.Context, ids []string, includeBlocked bool) (int, error) {
	return d.store.Retry(ctx, ids, includeBlocked)
}

// ResetInProgress forces every in_progress bead back to retry.
func (d *Daemon) ResetInProgress(ctx context.Context) (int, error) {
	return d.recon.ResetStale(ctx, 0)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("stats collection failed", logging.Error(err))
		stats = map[string]int{}
	}
	d.mu.Lock()
	lastError := d.lastError
	lastBeadID := d.lastBeadID
	d.mu.Unlock()
	return Status{
		Running:    d.running.Load(),
		QueueStats: stats,
		LastError:  lastError,
		LastBeadID: lastBeadID,
		LockPath:   d.lockPath,
		BeadsDir:   d.store.Dir(),
		PID:        os.Getpid(),
	}
}

func (d *Daemon) setLastError(err error) {
	d.mu.Lock()
	if err != nil {
		d.lastError = err.Error()
	} else {
		d.lastError = ""
	}
	d.mu.Unlock()
}

func (d *Daemon) setLastBead(id string) {
	d.mu.Lock()
	d.lastBeadID = id
	d.mu.Unlock()
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
