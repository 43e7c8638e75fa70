// Package daemon runs the bead polling loop with single-instance locking,
// consecutive-error backoff, and an IPC-facing status surface.
package daemon
