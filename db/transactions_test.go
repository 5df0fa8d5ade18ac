package db

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, ApplyMigrations(conn))
	return conn
}

func TestInsertAndQueryCommandEvents(t *testing.T) {
	conn := openTestDB(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, InsertCommandEvent(conn, CommandEvent{
		ReceivedAt: base, Line: "PING", Response: "PONG", LatencyMicros: 42,
	}))
	require.NoError(t, InsertCommandEvent(conn, CommandEvent{
		ReceivedAt: base.Add(time.Second), Line: "ON 9", Response: "ERROR:INVALID_RELAY_NUMBER", IsError: true, LatencyMicros: 17,
	}))

	events, err := GetRecentCommands(conn, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// newest first
	assert.Equal(t, "ON 9", events[0].Line)
	assert.True(t, events[0].IsError)
	assert.Equal(t, "PING", events[1].Line)
	assert.Equal(t, int64(42), events[1].LatencyMicros)
	assert.True(t, events[1].ReceivedAt.Equal(base))
}

func TestGetCommandStats(t *testing.T) {
	conn := openTestDB(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, InsertCommandEvent(conn, CommandEvent{ReceivedAt: time.Now(), Line: "PING", Response: "PONG"}))
	}
	require.NoError(t, InsertCommandEvent(conn, CommandEvent{ReceivedAt: time.Now(), Line: "FOO", Response: "ERROR:INVALID_COMMAND", IsError: true}))

	total, errors, err := GetCommandStats(conn)
	require.NoError(t, err)
	assert.Equal(t, int64(6), total)
	assert.Equal(t, int64(1), errors)
}

func TestPruneCommandLogKeepsNewest(t *testing.T) {
	conn := openTestDB(t)

	for i := 0; i < 20; i++ {
		require.NoError(t, InsertCommandEvent(conn, CommandEvent{ReceivedAt: time.Now(), Line: "STATUS", Response: "00000000"}))
	}
	require.NoError(t, PruneCommandLog(conn, 5))

	total, _, err := GetCommandStats(conn)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
}

func TestRecorderSwallowsFailures(t *testing.T) {
	conn := openTestDB(t)
	rec := NewRecorder(conn)

	rec.RecordCommand(time.Now(), "PING", "PONG", 50*time.Microsecond)

	conn.Close()
	// recorder must not panic or block once the database is gone
	rec.RecordCommand(time.Now(), "PING", "PONG", 50*time.Microsecond)
}
