// Package beadstore persists beads as individual JSON files with crash-safe
// replace-by-rename writes and defensive defaulting on read.
package beadstore
