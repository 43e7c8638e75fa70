package beadstore_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"strand/internal/bead"
	"strand/internal/beadstore"
	"strand/internal/logging"
	"strand/internal/testsupport"
)

func newStore(t *testing.T) *beadstore.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store, err := beadstore.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return store
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	b := &bead.Bead{ID: "b-1", Title: "Rebuild cache", Status: bead.StatusPending, Priority: 3}
	if err := store.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if b.CreatedAt == nil || b.UpdatedAt == nil {
		t.Fatal("expected Save to stamp timestamps")
	}

	loaded, err := store.Load(ctx, "b-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Title != "Rebuild cache" || loaded.Priority != 3 {
		t.Fatalf("unexpected loaded bead: %+v", loaded)
	}
	if loaded.Status != bead.StatusPending {
		t.Fatalf("unexpected status %q", loaded.Status)
	}
}

func TestSaveRejectsEmptyID(t *testing.T) {
	store := newStore(t)
	if err := store.Save(context.Background(), &bead.Bead{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestLoadMissingIsErrNotFound(t *testing.T) {
	store := newStore(t)
	_, err := store.Load(context.Background(), "missing")
	if !errors.Is(err, beadstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveFailureMidSequenceKeepsPreviousRecord(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	b := &bead.Bead{ID: "atomic", Title: "first version", Status: bead.StatusPending}
	if err := store.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, err := os.ReadFile(store.Path("atomic"))
	if err != nil {
		t.Fatalf("read saved record: %v", err)
	}

	// Block the write sequence after the temp file exists: a directory at the
	// backup path makes the backup copy fail before the rename.
	blocker := store.Path("atomic") + ".bak"
	if err := os.Mkdir(blocker, 0o755); err != nil {
		t.Fatalf("create blocker: %v", err)
	}

	b.Title = "second version"
	if err := store.Save(ctx, b); err == nil {
		t.Fatal("expected Save to fail with blocked backup path")
	}

	after, err := os.ReadFile(store.Path("atomic"))
	if err != nil {
		t.Fatalf("read record after failed save: %v", err)
	}
	if string(after) != string(before) {
		t.Fatalf("failed save must leave the previous record intact\nbefore: %s\nafter: %s", before, after)
	}
	loaded, err := store.Load(ctx, "atomic")
	if err != nil {
		t.Fatalf("Load after failed save: %v", err)
	}
	if loaded.Title != "first version" {
		t.Fatalf("expected previous record contents, got %+v", loaded)
	}
	if _, err := os.Stat(store.Path("atomic") + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected temp file cleaned up, stat err = %v", err)
	}

	// Once the obstruction is gone the same save succeeds cleanly.
	if err := os.Remove(blocker); err != nil {
		t.Fatalf("remove blocker: %v", err)
	}
	if err := store.Save(ctx, b); err != nil {
		t.Fatalf("Save after unblocking: %v", err)
	}
	loaded, err = store.Load(ctx, "atomic")
	if err != nil {
		t.Fatalf("Load after recovery: %v", err)
	}
	if loaded.Title != "second version" {
		t.Fatalf("expected updated record, got %+v", loaded)
	}
}

func TestSaveRecoversFromCrashResidue(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	b := &bead.Bead{ID: "crashed", Title: "committed", Status: bead.StatusRetry}
	if err := store.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A crash between temp-write and rename leaves stray sidecar files next to
	// the last committed record.
	target := store.Path("crashed")
	if err := os.WriteFile(target+".tmp", []byte("{\"id\": \"crashed\", \"title\": \"torn"), 0o644); err != nil {
		t.Fatalf("write stale temp: %v", err)
	}
	if err := os.WriteFile(target+".bak", []byte("stale backup"), 0o644); err != nil {
		t.Fatalf("write stale backup: %v", err)
	}

	loaded, err := store.Load(ctx, "crashed")
	if err != nil {
		t.Fatalf("Load with residue present: %v", err)
	}
	if loaded.Title != "committed" || loaded.Status != bead.StatusRetry {
		t.Fatalf("expected last committed record, got %+v", loaded)
	}

	if err := store.Save(ctx, loaded); err != nil {
		t.Fatalf("Save over residue: %v", err)
	}
	for _, sidecar := range []string{target + ".tmp", target + ".bak"} {
		if _, err := os.Stat(sidecar); !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("expected %s cleaned up after save, stat err = %v", sidecar, err)
		}
	}
}

func TestSaveLeavesNoSidecarFiles(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	b := &bead.Bead{ID: "b-2", Status: bead.StatusPending}
	for i := 0; i < 3; i++ {
		if err := store.Save(ctx, b); err != nil {
			t.Fatalf("Save #%d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != "b-2.json" {
			t.Fatalf("unexpected leftover file %q", entry.Name())
		}
	}
}

func TestSavePreservesCreatedAt(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	b := &bead.Bead{ID: "b-3", Status: bead.StatusPending}
	if err := store.Save(ctx, b); err != nil {
		t.Fatalf("Save: %v", err)
	}
	created := *b.CreatedAt

	loaded, err := store.Load(ctx, "b-3")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	loaded.Status = bead.StatusRetry
	if err := store.Save(ctx, loaded); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if !loaded.CreatedAt.Equal(created) {
		t.Fatalf("created_at changed: %v -> %v", created, loaded.CreatedAt)
	}
	if loaded.UpdatedAt.Before(created) {
		t.Fatal("updated_at went backwards")
	}
}

func TestLoadTwiceIsByteStable(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	// Sparse hand-written record: missing fields must default identically on
	// every load.
	raw := []byte(`{"id": "sparse", "title": "Hand made"}`)
	if err := os.WriteFile(store.Path("sparse"), raw, 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	first, err := store.Load(ctx, "sparse")
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	firstEncoded, err := bead.Encode(first)
	if err != nil {
		t.Fatalf("encode first: %v", err)
	}
	second, err := bead.Decode(firstEncoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	secondEncoded, err := bead.Encode(second)
	if err != nil {
		t.Fatalf("encode second: %v", err)
	}
	if string(firstEncoded) != string(secondEncoded) {
		t.Fatalf("defaulting not idempotent:\nfirst:  %s\nsecond: %s", firstEncoded, secondEncoded)
	}
}

func TestListSkipsCorruptFiles(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &bead.Bead{ID: "good", Status: bead.StatusPending}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(store.Path("broken"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Dir(), "good.json.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatalf("seed temp file: %v", err)
	}

	beads, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(beads) != 1 || beads[0].ID != "good" {
		t.Fatalf("expected single good bead, got %+v", beads)
	}
}

func TestListEligibleOrdering(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	seed := []*bead.Bead{
		{ID: "z-low", Status: bead.StatusPending, Priority: 9},
		{ID: "b-high", Status: bead.StatusRetry, Priority: 1},
		{ID: "a-high", Status: bead.StatusPending, Priority: 1},
		{ID: "done", Status: bead.StatusCompleted, Priority: 0},
		{ID: "stuck", Status: bead.StatusInProgress, Priority: 0},
		{ID: "no-prio", Status: bead.StatusPending, Priority: bead.PriorityLowest},
	}
	for _, b := range seed {
		if err := store.Save(ctx, b); err != nil {
			t.Fatalf("Save %s: %v", b.ID, err)
		}
	}

	eligible, err := store.ListEligible(ctx)
	if err != nil {
		t.Fatalf("ListEligible: %v", err)
	}
	var ids []string
	for _, b := range eligible {
		ids = append(ids, b.ID)
	}
	want := []string{"a-high", "b-high", "z-low", "no-prio"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}
}

func TestStats(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	for _, b := range []*bead.Bead{
		{ID: "p1", Status: bead.StatusPending},
		{ID: "p2", Status: bead.StatusPending},
		{ID: "f1", Status: bead.StatusFailed},
	} {
		if err := store.Save(ctx, b); err != nil {
			t.Fatalf("Save %s: %v", b.ID, err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats["pending"] != 2 || stats["failed"] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestRetryReArmsFailedBeads(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	failed := &bead.Bead{ID: "f1", Status: bead.StatusFailed}
	failed.Meta.AttemptCount = 3
	blocked := &bead.Bead{ID: "bl1", Status: bead.StatusBlocked}
	completed := &bead.Bead{ID: "c1", Status: bead.StatusCompleted}
	for _, b := range []*bead.Bead{failed, blocked, completed} {
		if err := store.Save(ctx, b); err != nil {
			t.Fatalf("Save %s: %v", b.ID, err)
		}
	}

	updated, err := store.Retry(ctx, nil, false)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 updated, got %d", updated)
	}

	reloaded, err := store.Load(ctx, "f1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.Status != bead.StatusRetry || reloaded.Meta.AttemptCount != 0 {
		t.Fatalf("expected re-armed bead, got %+v", reloaded)
	}

	stillBlocked, err := store.Load(ctx, "bl1")
	if err != nil {
		t.Fatalf("Load blocked: %v", err)
	}
	if stillBlocked.Status != bead.StatusBlocked {
		t.Fatalf("blocked bead should be untouched, got %q", stillBlocked.Status)
	}

	updated, err = store.Retry(ctx, []string{"bl1"}, true)
	if err != nil {
		t.Fatalf("Retry blocked: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected blocked bead re-armed, got %d", updated)
	}
}
