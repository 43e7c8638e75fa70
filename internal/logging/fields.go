package logging

// Standardized attribute keys shared across components.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
	FieldBeadID    = "bead_id"
	FieldRunID     = "run_id"
	FieldStatus    = "status"
	FieldAttempt   = "attempt"
)
