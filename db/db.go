package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Open opens (creating if needed) the command audit database and applies
// migrations.
func Open(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info().Str("path", dbPath).Msg("Command audit database ready")
	return conn, nil
}

// ApplyMigrations creates the audit schema if it does not exist.
func ApplyMigrations(conn *sql.DB) error {
	_, err := conn.Exec(`CREATE TABLE IF NOT EXISTS command_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		received_at TEXT NOT NULL,
		line TEXT NOT NULL,
		response TEXT NOT NULL,
		is_error BOOLEAN NOT NULL DEFAULT FALSE,
		latency_micros INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return fmt.Errorf("failed to create command_log table: %w", err)
	}

	_, err = conn.Exec(`CREATE INDEX IF NOT EXISTS idx_command_log_received_at ON command_log (received_at)`)
	if err != nil {
		return fmt.Errorf("failed to create command_log index: %w", err)
	}

	return nil
}
