package db

import (
	"database/sql"
	"fmt"
	"time"
)

// GetRecentCommands returns the newest limit events, newest first.
func GetRecentCommands(conn *sql.DB, limit int) ([]CommandEvent, error) {
	rows, err := conn.Query(
		`SELECT id, received_at, line, response, is_error, latency_micros FROM command_log ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query command log: %w", err)
	}
	defer rows.Close()

	var events []CommandEvent
	for rows.Next() {
		var ev CommandEvent
		var receivedAt string
		if err := rows.Scan(&ev.ID, &receivedAt, &ev.Line, &ev.Response, &ev.IsError, &ev.LatencyMicros); err != nil {
			return nil, fmt.Errorf("failed to scan command event: %w", err)
		}
		ev.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetCommandStats returns total commands processed and total errors.
func GetCommandStats(conn *sql.DB) (total int64, errors int64, err error) {
	err = conn.QueryRow(`SELECT COUNT(*), COALESCE(SUM(is_error), 0) FROM command_log`).Scan(&total, &errors)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query command stats: %w", err)
	}
	return total, errors, nil
}
