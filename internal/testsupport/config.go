package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"strand/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.BeadsDir = filepath.Join(base, "beads")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.TruthPath = filepath.Join(base, "truth.json")
	cfgVal.Worker.Command = "/bin/true"
	cfgVal.Worker.Timeout = 5
	cfgVal.Daemon.PollInterval = 1
	cfgVal.Daemon.DispatchPause = 0
	cfgVal.Daemon.StuckThreshold = 60

	for _, dir := range []string{cfgVal.Paths.BeadsDir, cfgVal.Paths.WorkDir, cfgVal.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkerCommand overrides the worker command and args on the test config.
func WithWorkerCommand(command string, args ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Worker.Command = command
		b.cfg.Worker.Args = args
	}
}

// WithMaxAttempts overrides the retry bound on the test config.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.MaxAttempts = attempts
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.BeadsDir)
}
