package beadstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"strand/internal/bead"
	"strand/internal/config"
	"strand/internal/fileutil"
	"strand/internal/logging"
)

// ErrNotFound indicates the requested bead file does not exist.
var ErrNotFound = errors.New("bead not found")

const (
	beadExt   = ".json"
	tempExt   = ".tmp"
	backupExt = ".bak"
)

// Store persists beads as one JSON file per record in a flat directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// Open prepares a store rooted at the configured beads directory.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("beadstore requires config")
	}
	dir := strings.TrimSpace(cfg.Paths.BeadsDir)
	if dir == "" {
		return nil, errors.New("beads directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create beads directory: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logging.NewComponentLogger(logger, "beadstore"),
	}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path for a bead id.
func (s *Store) Path(id string) string {
	return filepath.Join(s.dir, id+beadExt)
}

// Load reads and decodes a single bead. Missing files map to ErrNotFound.
func (s *Store) Load(ctx context.Context, id string) (*bead.Bead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("bead id is required")
	}
	data, err := os.ReadFile(s.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load bead %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load bead %s: %w", id, err)
	}
	b, err := bead.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load bead %s: %w", id, err)
	}
	if b.ID == "" {
		b.ID = id
	}
	return b, nil
}

// Save persists a bead crash-safely: the record is serialized to a temp file
// in the same directory, the previous file is copied to a backup, the temp
// file is renamed over the target, and the backup is deleted once the rename
// succeeds. If the rename fails the backup is restored. Save deliberately
// ignores context cancellation so in-flight state reaches disk during
// shutdown.
func (s *Store) Save(ctx context.Context, b *bead.Bead) error {
	_ = ctx
	if b == nil {
		return errors.New("bead is required")
	}
	id := strings.TrimSpace(b.ID)
	if id == "" {
		return errors.New("bead id is required")
	}
	b.ID = id

	now := time.Now().UTC()
	if b.CreatedAt == nil {
		created := now
		b.CreatedAt = &created
	}
	if b.UpdatedAt == nil || now.After(*b.UpdatedAt) {
		updated := now
		b.UpdatedAt = &updated
	}
	stamped := now
	b.Meta.LastUpdated = &stamped

	data, err := bead.Encode(b)
	if err != nil {
		return fmt.Errorf("save bead %s: %w", id, err)
	}

	target := s.Path(id)
	tempPath := target + tempExt
	backupPath := target + backupExt

	if err := fileutil.WriteFileSync(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("save bead %s: write temp: %w", id, err)
	}

	hasBackup := false
	if _, err := os.Stat(target); err == nil {
		if err := fileutil.CopyFile(target, backupPath); err != nil {
			_ = os.Remove(tempPath)
			return fmt.Errorf("save bead %s: write backup: %w", id, err)
		}
		hasBackup = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		_ = os.Remove(tempPath)
		return fmt.Errorf("save bead %s: stat target: %w", id, err)
	}

	if err := os.Rename(tempPath, target); err != nil {
		if hasBackup {
			if restoreErr := os.Rename(backupPath, target); restoreErr != nil {
				s.logger.Error("backup restore failed",
					logging.String(logging.FieldBeadID, id),
					logging.Error(restoreErr),
				)
			}
		}
		_ = os.Remove(tempPath)
		return fmt.Errorf("save bead %s: replace target: %w", id, err)
	}

	if hasBackup {
		_ = os.Remove(backupPath)
	}
	return nil
}

// List returns every parseable bead in the store. Corrupt files are logged
// and skipped so one bad record never aborts a scan.
func (s *Store) List(ctx context.Context) ([]*bead.Bead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("scan beads directory: %w", err)
	}

	beads := make([]*bead.Bead, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, beadExt) {
			continue
		}
		id := strings.TrimSuffix(name, beadExt)
		b, err := s.Load(ctx, id)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			s.logger.Warn("skipping unreadable bead file",
				logging.String("file", name),
				logging.Error(err),
			)
			continue
		}
		beads = append(beads, b)
	}
	return beads, nil
}

// ListEligible returns pending and retry beads sorted by ascending priority
// with the id as a deterministic tiebreak.
func (s *Store) ListEligible(ctx context.Context) ([]*bead.Bead, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	eligible := make([]*bead.Bead, 0, len(all))
	for _, b := range all {
		if b.Eligible() {
			eligible = append(eligible, b)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority < eligible[j].Priority
		}
		return eligible[i].ID < eligible[j].ID
	})
	return eligible, nil
}

// Stats returns bead counts per status.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	stats := make(map[string]int, len(bead.AllStatuses()))
	for _, b := range all {
		stats[string(b.Status)]++
	}
	return stats, nil
}

// Retry re-arms failed beads (optionally a subset by id) for another round of
// attempts. Blocked beads are included only when includeBlocked is set, since
// blocked usually signals a configuration problem rather than a worker
// failure. The attempt counter is reset so the bead gets a full allowance.
func (s *Store) Retry(ctx context.Context, ids []string, includeBlocked bool) (int, error) {
	retriable := func(status bead.Status) bool {
		if status == bead.StatusFailed {
			return true
		}
		return includeBlocked && status == bead.StatusBlocked
	}

	var candidates []*bead.Bead
	if len(ids) == 0 {
		all, err := s.List(ctx)
		if err != nil {
			return 0, err
		}
		candidates = all
	} else {
		for _, id := range ids {
			b, err := s.Load(ctx, id)
			if err != nil {
				return 0, err
			}
			candidates = append(candidates, b)
		}
	}

	updated := 0
	for _, b := range candidates {
		if !retriable(b.Status) {
			continue
		}
		b.SetRetry("re-armed by operator")
		b.Meta.AttemptCount = 0
		if err := s.Save(ctx, b); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
