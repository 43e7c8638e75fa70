package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"strand/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[worker]
command = "/usr/local/bin/bead-worker"
`)
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Daemon.PollInterval != 5 {
		t.Fatalf("expected default poll interval, got %d", cfg.Daemon.PollInterval)
	}
	if cfg.Daemon.RestartDelayBase != 30 || cfg.Daemon.RestartDelayMax != 600 {
		t.Fatalf("unexpected backoff defaults: %d/%d", cfg.Daemon.RestartDelayBase, cfg.Daemon.RestartDelayMax)
	}
	if cfg.Worker.Timeout != 900 {
		t.Fatalf("expected default worker timeout, got %d", cfg.Worker.Timeout)
	}
	if !filepath.IsAbs(cfg.Paths.BeadsDir) {
		t.Fatalf("expected expanded beads dir, got %q", cfg.Paths.BeadsDir)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected console format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRequiresWorkerCommand(t *testing.T) {
	path := writeConfig(t, `
[daemon]
poll_interval = 5
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "worker.command") {
		t.Fatalf("expected worker.command error, got %v", err)
	}
}

func TestLoadRejectsStuckThresholdBelowTimeout(t *testing.T) {
	path := writeConfig(t, `
[worker]
command = "worker"
timeout = 600

[daemon]
stuck_threshold = 300
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "stuck_threshold") {
		t.Fatalf("expected stuck_threshold error, got %v", err)
	}
}

func TestLoadRejectsInvertedBackoffBounds(t *testing.T) {
	path := writeConfig(t, `
[worker]
command = "worker"

[daemon]
restart_delay_base = 700
restart_delay_max = 600
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "restart_delay_base") {
		t.Fatalf("expected backoff bounds error, got %v", err)
	}
}

func TestNormalizeWorkerArgs(t *testing.T) {
	path := writeConfig(t, `
[worker]
command = " worker "
args = ["run", " ", "{bead_id}"]
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worker.Command != "worker" {
		t.Fatalf("expected trimmed command, got %q", cfg.Worker.Command)
	}
	if len(cfg.Worker.Args) != 2 || cfg.Worker.Args[0] != "run" || cfg.Worker.Args[1] != "{bead_id}" {
		t.Fatalf("unexpected args: %v", cfg.Worker.Args)
	}
}

func TestLoadUnknownLoggingFormatFallsBack(t *testing.T) {
	path := writeConfig(t, `
[worker]
command = "worker"

[logging]
format = "xml"
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("expected console fallback, got %q", cfg.Logging.Format)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[worker]") {
		t.Fatalf("sample missing worker section:\n%s", data)
	}
}
