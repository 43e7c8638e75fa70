// Package logging builds slog loggers with console and JSON handlers and
// provides the attribute helpers and field keys used across the daemon.
package logging
