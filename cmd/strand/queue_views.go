package main

import (
	"strconv"

	"strand/internal/bead"
	"strand/internal/ipc"
)

func buildQueueStatusRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range bead.AllStatuses() {
		count, ok := stats[string(status)]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{string(status), strconv.Itoa(count)})
	}
	return rows
}

func buildQueueListRows(entries []ipc.QueueBead) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		priority := strconv.Itoa(entry.Priority)
		if entry.Priority == bead.PriorityLowest {
			priority = "-"
		}
		rows = append(rows, []string{
			entry.ID,
			truncate(entry.Title, 40),
			entry.Status,
			priority,
			strconv.Itoa(entry.AttemptCount),
			truncate(entry.LastError, 48),
		})
	}
	return rows
}

func filterQueueBeads(beads []*bead.Bead, statuses []bead.Status) []ipc.QueueBead {
	wanted := make(map[bead.Status]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}
	entries := make([]ipc.QueueBead, 0, len(beads))
	for _, b := range beads {
		if len(wanted) > 0 {
			if _, ok := wanted[b.Status]; !ok {
				continue
			}
		}
		entries = append(entries, ipc.QueueBead{
			ID:           b.ID,
			Title:        b.Title,
			Status:       string(b.Status),
			Priority:     b.Priority,
			AttemptCount: b.Meta.AttemptCount,
			TimeoutCount: b.Meta.TimeoutCount,
			StuckCount:   b.Meta.StuckCount,
			LastAttempt:  b.Meta.LastAttempt,
			LastError:    b.Meta.LastError,
			UpdatedAt:    b.UpdatedAt,
		})
	}
	return entries
}

func truncate(value string, max int) string {
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}
