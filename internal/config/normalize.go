package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorker()
	c.normalizeDaemon()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.BeadsDir) == "" {
		c.Paths.BeadsDir = defaultBeadsDir
	}
	if c.Paths.BeadsDir, err = expandPath(c.Paths.BeadsDir); err != nil {
		return fmt.Errorf("paths.beads_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TruthPath) == "" {
		c.Paths.TruthPath = defaultTruthPath
	}
	if c.Paths.TruthPath, err = expandPath(c.Paths.TruthPath); err != nil {
		return fmt.Errorf("paths.truth_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeWorker() {
	c.Worker.Command = strings.TrimSpace(c.Worker.Command)
	args := make([]string, 0, len(c.Worker.Args))
	for _, arg := range c.Worker.Args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			args = append(args, trimmed)
		}
	}
	c.Worker.Args = args
	if c.Worker.Timeout <= 0 {
		c.Worker.Timeout = defaultWorkerTimeout
	}
}

func (c *Config) normalizeDaemon() {
	if c.Daemon.PollInterval <= 0 {
		c.Daemon.PollInterval = defaultPollInterval
	}
	if c.Daemon.DispatchPause < 0 {
		c.Daemon.DispatchPause = defaultDispatchPause
	}
	if c.Daemon.MaxAttempts <= 0 {
		c.Daemon.MaxAttempts = defaultMaxAttempts
	}
	if c.Daemon.StuckThreshold <= 0 {
		c.Daemon.StuckThreshold = defaultStuckThreshold
	}
	if c.Daemon.ErrorThreshold <= 0 {
		c.Daemon.ErrorThreshold = defaultErrorThreshold
	}
	if c.Daemon.RestartDelayBase <= 0 {
		c.Daemon.RestartDelayBase = defaultRestartDelayBase
	}
	if c.Daemon.RestartDelayMax <= 0 {
		c.Daemon.RestartDelayMax = defaultRestartDelayMax
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
