package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorker(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorker() error {
	if strings.TrimSpace(c.Worker.Command) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/strand/config.toml"
		}
		return fmt.Errorf("worker.command is required. Edit %s (create with 'strand config init')", defaultPath)
	}
	if c.Worker.Timeout <= 0 {
		return errors.New("worker.timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if err := ensurePositiveMap(map[string]int{
		"daemon.poll_interval":      c.Daemon.PollInterval,
		"daemon.max_attempts":       c.Daemon.MaxAttempts,
		"daemon.error_threshold":    c.Daemon.ErrorThreshold,
		"daemon.restart_delay_base": c.Daemon.RestartDelayBase,
		"daemon.restart_delay_max":  c.Daemon.RestartDelayMax,
	}); err != nil {
		return err
	}
	if c.Daemon.DispatchPause < 0 {
		return errors.New("daemon.dispatch_pause must be >= 0")
	}
	if c.Daemon.RestartDelayBase > c.Daemon.RestartDelayMax {
		return errors.New("daemon.restart_delay_base must not exceed daemon.restart_delay_max")
	}
	if c.Daemon.StuckThreshold <= c.Worker.Timeout {
		return errors.New("daemon.stuck_threshold must be greater than worker.timeout")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
