package bead

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a bead.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRetry      Status = "retry"
	StatusBlocked    Status = "blocked"
)

// PriorityLowest is assigned to beads with a missing or invalid priority so
// they sort after every explicitly prioritized bead.
const PriorityLowest = 1<<31 - 1

// DefaultType is the bead type recorded when the source file omits one.
const DefaultType = "task"

var allStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusCompleted,
	StatusFailed,
	StatusRetry,
	StatusBlocked,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var terminalStatuses = map[Status]struct{}{
	StatusCompleted: {},
	StatusFailed:    {},
	StatusBlocked:   {},
}

// Meta carries execution bookkeeping persisted alongside the bead payload.
type Meta struct {
	AttemptCount int        `json:"attempt_count"`
	TimeoutCount int        `json:"timeout_count"`
	StuckCount   int        `json:"stuck_count"`
	LastAttempt  *time.Time `json:"last_attempt"`
	LastError    string     `json:"last_error"`
	LastUpdated  *time.Time `json:"last_updated"`
}

// Bead is a unit of work persisted as one file in the beads directory.
type Bead struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Intent      string     `json:"intent"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    int        `json:"priority"`
	Meta        Meta       `json:"meta"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status Status) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// Eligible reports whether the bead may be dispatched this cycle.
func (b *Bead) Eligible() bool {
	return b.Status == StatusPending || b.Status == StatusRetry
}

// SetFailed marks the bead as failed with the given error message.
func (b *Bead) SetFailed(message string) {
	b.Status = StatusFailed
	b.Meta.LastError = message
}

// SetBlocked marks the bead as blocked with the given reason.
func (b *Bead) SetBlocked(reason string) {
	b.Status = StatusBlocked
	b.Meta.LastError = reason
}

// SetCompleted marks the bead as completed and clears the last error.
func (b *Bead) SetCompleted() {
	b.Status = StatusCompleted
	b.Meta.LastError = ""
}

// SetRetry marks the bead for another attempt with the given reason.
func (b *Bead) SetRetry(reason string) {
	b.Status = StatusRetry
	b.Meta.LastError = reason
}
