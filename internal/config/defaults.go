package config

const (
	defaultBeadsDir         = "~/.local/share/strand/beads"
	defaultWorkDir          = "~/.local/share/strand/work"
	defaultLogDir           = "~/.local/share/strand/logs"
	defaultTruthPath        = "~/.local/share/strand/truth.json"
	defaultWorkerTimeout    = 900
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultPollInterval     = 5
	defaultDispatchPause    = 1
	defaultMaxAttempts      = 3
	defaultStuckThreshold   = 7200
	defaultErrorThreshold   = 5
	defaultRestartDelayBase = 30
	defaultRestartDelayMax  = 600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			BeadsDir:  defaultBeadsDir,
			WorkDir:   defaultWorkDir,
			LogDir:    defaultLogDir,
			TruthPath: defaultTruthPath,
		},
		Worker: Worker{
			Timeout: defaultWorkerTimeout,
		},
		Daemon: Daemon{
			PollInterval:     defaultPollInterval,
			DispatchPause:    defaultDispatchPause,
			MaxAttempts:      defaultMaxAttempts,
			StuckThreshold:   defaultStuckThreshold,
			ErrorThreshold:   defaultErrorThreshold,
			RestartDelayBase: defaultRestartDelayBase,
			RestartDelayMax:  defaultRestartDelayMax,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
