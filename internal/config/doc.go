// Package config loads, normalizes and validates the TOML configuration for
// the strand daemon and CLI.
package config
