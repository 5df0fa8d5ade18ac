package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// CommandEvent is one dispatched command as recorded in the audit log.
type CommandEvent struct {
	ID            int64
	ReceivedAt    time.Time
	Line          string
	Response      string
	IsError       bool
	LatencyMicros int64
}

// InsertCommandEvent appends one event to the audit log.
func InsertCommandEvent(conn *sql.DB, ev CommandEvent) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO command_log (received_at, line, response, is_error, latency_micros) VALUES (?, ?, ?, ?, ?)`,
		ev.ReceivedAt.Format(time.RFC3339Nano), ev.Line, ev.Response, ev.IsError, ev.LatencyMicros,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert command event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit command event: %w", err)
	}
	return nil
}

// PruneCommandLog keeps the newest keep rows, bounding database growth.
func PruneCommandLog(conn *sql.DB, keep int) error {
	_, err := conn.Exec(
		`DELETE FROM command_log WHERE id NOT IN (SELECT id FROM command_log ORDER BY id DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return fmt.Errorf("prune command log: %w", err)
	}
	return nil
}

// Recorder adapts the audit log to the runtime's Auditor interface. Failures
// are logged and dropped so storage trouble can never stall the loop.
type Recorder struct {
	conn *sql.DB
}

func NewRecorder(conn *sql.DB) *Recorder {
	return &Recorder{conn: conn}
}

func (r *Recorder) RecordCommand(receivedAt time.Time, line, response string, latency time.Duration) {
	ev := CommandEvent{
		ReceivedAt:    receivedAt,
		Line:          line,
		Response:      response,
		IsError:       strings.HasPrefix(response, "ERROR:"),
		LatencyMicros: latency.Microseconds(),
	}
	if err := InsertCommandEvent(r.conn, ev); err != nil {
		log.Warn().Err(err).Msg("Failed to record command event")
	}
}
