package executor_test

import (
	"context"
	"strings"
	"testing"

	"strand/internal/bead"
	"strand/internal/beadstore"
	"strand/internal/config"
	"strand/internal/executor"
	"strand/internal/logging"
	"strand/internal/testsupport"
)

type stubTruth struct {
	done map[string]bool
}

func (s stubTruth) Lookup(_ context.Context, id string) (bool, error) {
	return s.done[id], nil
}

type stubRunner struct {
	result     executor.Result
	err        error
	calls      int
	invocation executor.Invocation
	onRun      func()
}

func (s *stubRunner) Run(_ context.Context, inv executor.Invocation) (executor.Result, error) {
	s.calls++
	s.invocation = inv
	if s.onRun != nil {
		s.onRun()
	}
	return s.result, s.err
}

type fixture struct {
	cfg    *config.Config
	store  *beadstore.Store
	runner *stubRunner
	truth  stubTruth
	exec   *executor.Executor
}

func newFixture(t *testing.T, runner *stubRunner, done map[string]bool) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store, err := beadstore.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	source := stubTruth{done: done}
	exec, err := executor.New(cfg, store, source, logging.NewNop(), executor.WithRunner(runner))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{cfg: cfg, store: store, runner: runner, truth: source, exec: exec}
}

func (f *fixture) seed(t *testing.T, b *bead.Bead) {
	t.Helper()
	if err := f.store.Save(context.Background(), b); err != nil {
		t.Fatalf("seed bead: %v", err)
	}
}

func (f *fixture) reload(t *testing.T, id string) *bead.Bead {
	t.Helper()
	b, err := f.store.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("reload %s: %v", id, err)
	}
	return b
}

func TestExecuteCompletesViaTruthLedger(t *testing.T) {
	runner := &stubRunner{result: executor.Result{ExitCode: 0}}
	f := newFixture(t, runner, map[string]bool{"b-1": true})
	f.seed(t, &bead.Bead{ID: "b-1", Status: bead.StatusPending})

	b := f.reload(t, "b-1")
	if err := f.exec.Execute(context.Background(), b); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	final := f.reload(t, "b-1")
	if final.Status != bead.StatusCompleted {
		t.Fatalf("expected completed, got %q", final.Status)
	}
	if final.Meta.AttemptCount != 1 || final.Meta.LastAttempt == nil {
		t.Fatalf("expected attempt bookkeeping, got %+v", final.Meta)
	}
	if final.Meta.LastError != "" {
		t.Fatalf("expected cleared last_error, got %q", final.Meta.LastError)
	}
}

func TestExecuteCleanExitWithoutConfirmationRetries(t *testing.T) {
	runner := &stubRunner{result: executor.Result{ExitCode: 0}}
	f := newFixture(t, runner, nil)
	f.seed(t, &bead.Bead{ID: "b-2", Status: bead.StatusPending})

	b := f.reload(t, "b-2")
	if err := f.exec.Execute(context.Background(), b); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	final := f.reload(t, "b-2")
	if final.Status != bead.StatusRetry {
		t.Fatalf("expected retry for unconfirmed completion, got %q", final.Status)
	}
	if !strings.Contains(final.Meta.LastError, "unconfirmed") {
		t.Fatalf("expected unconfirmed reason, got %q", final.Meta.LastError)
	}
}

func TestExecuteRecordCompletionWinsOverExitCode(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.seed(t, &bead.Bead{ID: "b-3", Status: bead.StatusPending})

	// Worker rewrites its own record to completed, then exits non-zero.
	runner := &stubRunner{result: executor.Result{ExitCode: 2}}
	runner.onRun = func() {
		rewritten := f.reload(t, "b-3")
		rewritten.Status = bead.StatusCompleted
		if err := f.store.Save(context.Background(), rewritten); err != nil {
			t.Fatalf("rewrite bead: %v", err)
		}
	}
	exec, err := executor.New(f.cfg, f.store, f.truth, logging.NewNop(), executor.WithRunner(runner))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	b := f.reload(t, "b-3")
	if err := exec.Execute(context.Background(), b); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	final := f.reload(t, "b-3")
	if final.Status != bead.StatusCompleted {
		t.Fatalf("record completion must win, got %q", final.Status)
	}
}

func TestExecuteNonZeroExitRetriesThenFails(t *testing.T) {
	runner := &stubRunner{result: executor.Result{ExitCode: 1}}
	f := newFixture(t, runner, nil)
	f.seed(t, &bead.Bead{ID: "b-4", Status: bead.StatusPending})
	ctx := context.Background()

	maxAttempts := f.cfg.Daemon.MaxAttempts
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		b := f.reload(t, "b-4")
		if err := f.exec.Execute(ctx, b); err != nil {
			t.Fatalf("Execute attempt %d: %v", attempt, err)
		}
		final := f.reload(t, "b-4")
		if attempt < maxAttempts {
			if final.Status != bead.StatusRetry {
				t.Fatalf("attempt %d: expected retry, got %q", attempt, final.Status)
			}
		} else {
			if final.Status != bead.StatusFailed {
				t.Fatalf("attempt %d: expected failed, got %q", attempt, final.Status)
			}
		}
		if final.Meta.AttemptCount != attempt {
			t.Fatalf("expected attempt_count %d, got %d", attempt, final.Meta.AttemptCount)
		}
		if !strings.Contains(final.Meta.LastError, "exited with code 1") {
			t.Fatalf("expected exit reason, got %q", final.Meta.LastError)
		}
	}
	if runner.calls != maxAttempts {
		t.Fatalf("expected %d worker runs, got %d", maxAttempts, runner.calls)
	}
}

func TestExecuteBlocksWhenAttemptsExhaustedBeforeDispatch(t *testing.T) {
	runner := &stubRunner{result: executor.Result{ExitCode: 0}}
	f := newFixture(t, runner, nil)

	b := &bead.Bead{ID: "b-5", Status: bead.StatusRetry}
	b.Meta.AttemptCount = f.cfg.Daemon.MaxAttempts
	f.seed(t, b)

	loaded := f.reload(t, "b-5")
	if err := f.exec.Execute(context.Background(), loaded); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if runner.calls != 0 {
		t.Fatal("blocked bead must not spawn a worker")
	}

	final := f.reload(t, "b-5")
	if final.Status != bead.StatusBlocked {
		t.Fatalf("expected blocked, got %q", final.Status)
	}
}

func TestExecuteTimeoutMarksRetry(t *testing.T) {
	runner := &stubRunner{result: executor.Result{TimedOut: true}}
	f := newFixture(t, runner, nil)
	f.seed(t, &bead.Bead{ID: "b-6", Status: bead.StatusPending})

	b := f.reload(t, "b-6")
	if err := f.exec.Execute(context.Background(), b); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	final := f.reload(t, "b-6")
	if final.Status != bead.StatusRetry {
		t.Fatalf("expected retry after timeout, got %q", final.Status)
	}
	if final.Meta.TimeoutCount != 1 {
		t.Fatalf("expected timeout_count 1, got %d", final.Meta.TimeoutCount)
	}
}

func TestExecuteExpandsPlaceholders(t *testing.T) {
	runner := &stubRunner{result: executor.Result{ExitCode: 0}}
	f := newFixture(t, runner, map[string]bool{"b-7": true})
	f.cfg.Worker.Args = []string{"run", "--bead", "{bead_id}", "--file", "{bead_path}"}
	f.seed(t, &bead.Bead{ID: "b-7", Status: bead.StatusPending})

	b := f.reload(t, "b-7")
	if err := f.exec.Execute(context.Background(), b); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	args := runner.invocation.Args
	want := []string{"run", "--bead", "b-7", "--file", f.store.Path("b-7")}
	if len(args) != len(want) {
		t.Fatalf("expected args %v, got %v", want, args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("expected args %v, got %v", want, args)
		}
	}
	if runner.invocation.Dir != f.cfg.Paths.WorkDir {
		t.Fatalf("expected pinned working dir %q, got %q", f.cfg.Paths.WorkDir, runner.invocation.Dir)
	}
}

func TestExecuteAppendsIDWithoutPlaceholders(t *testing.T) {
	runner := &stubRunner{result: executor.Result{ExitCode: 0}}
	f := newFixture(t, runner, map[string]bool{"b-8": true})
	f.cfg.Worker.Args = []string{"run"}
	f.seed(t, &bead.Bead{ID: "b-8", Status: bead.StatusPending})

	b := f.reload(t, "b-8")
	if err := f.exec.Execute(context.Background(), b); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	args := runner.invocation.Args
	if len(args) != 2 || args[1] != "b-8" {
		t.Fatalf("expected bead id appended, got %v", args)
	}
}

func TestExecuteRejectsEmptyID(t *testing.T) {
	runner := &stubRunner{}
	f := newFixture(t, runner, nil)
	if err := f.exec.Execute(context.Background(), &bead.Bead{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}
