// Package storage persists chat history, memory facts, conversation summaries
// and the turn audit log in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	DriverCGO    = "sqlite3" // mattn/go-sqlite3
	DriverPureGo = "sqlite"  // modernc.org/sqlite
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS chat_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_history_session_id ON chat_history(session_id, id);

CREATE TABLE IF NOT EXISTS memory (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	category TEXT NOT NULL DEFAULT 'general',
	content TEXT NOT NULL,
	importance INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_summary (
	session_id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT,
	session_id TEXT,
	timestamp TEXT NOT NULL,
	event_type TEXT NOT NULL,
	data TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_log_trace_id ON audit_log(trace_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_session_id ON audit_log(session_id);
`

// Timestamps are stored as RFC3339 text so both drivers read them back the same way.
const timeLayout = time.RFC3339Nano

type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens/creates the SQLite database at path with the given driver and
// ensures the schema exists.
func Open(ctx context.Context, driver, path string) (*DB, error) {
	if driver == "" {
		driver = DriverCGO
	}
	if path == "" {
		path = "./assistant.db"
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &DB{db: db, now: time.Now}, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) History() *HistoryStore   { return &HistoryStore{d: d} }
func (d *DB) Memory() *MemoryStore     { return &MemoryStore{d: d} }
func (d *DB) Summaries() *SummaryStore { return &SummaryStore{d: d} }

func (d *DB) timestamp() string {
	return d.now().UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
