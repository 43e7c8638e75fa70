package bead

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// beadRecord mirrors Bead with lenient field types so hand-written or
// externally generated files parse without errors. Missing fields are filled
// with defaults after decoding.
type beadRecord struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Intent      string          `json:"intent"`
	Description string          `json:"description"`
	Status      string          `json:"status"`
	Priority    json.RawMessage `json:"priority"`
	Meta        *Meta           `json:"meta"`
	CreatedAt   json.RawMessage `json:"created_at"`
	UpdatedAt   json.RawMessage `json:"updated_at"`
}

// Decode parses a bead record, tolerating a UTF-8 byte-order marker and
// filling every missing field with its default. Decoding the output of Encode
// yields an identical bead, so repeated load/save round-trips are stable.
func Decode(data []byte) (*Bead, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var record beadRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse bead: %w", err)
	}

	b := &Bead{
		ID:          strings.TrimSpace(record.ID),
		Type:        strings.TrimSpace(record.Type),
		Title:       record.Title,
		Intent:      record.Intent,
		Description: record.Description,
		Priority:    parsePriority(record.Priority),
	}
	if b.Type == "" {
		b.Type = DefaultType
	}
	if status, ok := ParseStatus(record.Status); ok {
		b.Status = status
	} else {
		b.Status = StatusPending
	}
	if record.Meta != nil {
		b.Meta = *record.Meta
	}
	if b.Meta.AttemptCount < 0 {
		b.Meta.AttemptCount = 0
	}
	if b.Meta.TimeoutCount < 0 {
		b.Meta.TimeoutCount = 0
	}
	if b.Meta.StuckCount < 0 {
		b.Meta.StuckCount = 0
	}
	b.CreatedAt = parseTimestamp(record.CreatedAt)
	b.UpdatedAt = parseTimestamp(record.UpdatedAt)
	return b, nil
}

// Encode serializes a bead to the canonical on-disk representation.
func Encode(b *Bead) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode bead: %w", err)
	}
	return append(data, '\n'), nil
}

// parsePriority accepts a JSON number or a quoted number. Anything else,
// including a missing value or a negative number, maps to PriorityLowest.
func parsePriority(raw json.RawMessage) int {
	if len(raw) == 0 {
		return PriorityLowest
	}
	var number int
	if err := json.Unmarshal(raw, &number); err == nil {
		if number < 0 {
			return PriorityLowest
		}
		return number
	}
	var quoted string
	if err := json.Unmarshal(raw, &quoted); err == nil {
		if parsed, err := strconv.Atoi(strings.TrimSpace(quoted)); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return PriorityLowest
}

func parseTimestamp(raw json.RawMessage) *time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var value time.Time
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	if value.IsZero() {
		return nil
	}
	return &value
}
