package ipc

import "time"

// StopRequest stops the daemon loop.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// QueueBead is the wire representation of a bead for CLI callers.
type QueueBead struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	Priority     int        `json:"priority"`
	AttemptCount int        `json:"attempt_count"`
	TimeoutCount int        `json:"timeout_count"`
	StuckCount   int        `json:"stuck_count"`
	LastAttempt  *time.Time `json:"last_attempt"`
	LastError    string     `json:"last_error"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

// StatusResponse represents daemon status information.
type StatusResponse struct {
	Running    bool           `json:"running"`
	QueueStats map[string]int `json:"queue_stats"`
	LastError  string         `json:"last_error"`
	LastBeadID string         `json:"last_bead_id"`
	LockPath   string         `json:"lock_path"`
	BeadsDir   string         `json:"beads_dir"`
	PID        int            `json:"pid"`
}

// QueueListRequest filters bead listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains bead entries.
type QueueListResponse struct {
	Beads []QueueBead `json:"beads"`
}

// QueueRetryRequest re-arms failed beads. Empty list means all failed beads.
type QueueRetryRequest struct {
	IDs            []string `json:"ids"`
	IncludeBlocked bool     `json:"include_blocked"`
}

// QueueRetryResponse reports number of re-armed beads.
type QueueRetryResponse struct {
	Updated int `json:"updated"`
}

// QueueResetRequest forces in_progress beads back to retry.
type QueueResetRequest struct{}

// QueueResetResponse reports number of beads reset.
type QueueResetResponse struct {
	Updated int `json:"updated"`
}
