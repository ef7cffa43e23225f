// Package statedb implements the SQLite-backed state store described in
// spec.md §4.E: log retention, thread memories, phase-1 job leasing, and
// memory-consolidation locks. It uses modernc.org/sqlite (pure Go, no cgo)
// rather than mattn/go-sqlite3, matching the teacher's
// internal/memory/backend/sqlitevec choice of driver library — but opened
// under the driver name "sqlite" that modernc.org/sqlite actually registers
// (the teacher's own sqlitevec backend opens "sqlite3", which only works
// there because mattn/go-sqlite3 is also linked in elsewhere; see
// DESIGN.md).
package statedb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the underlying *sql.DB with the schema this package owns.
type DB struct {
	conn *sql.DB
}

// Open creates (if needed) and migrates the state database at path.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("statedb: open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1) // SQLite: one writer at a time, matches teacher's sqlitevec pattern.

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			ts_nanos INTEGER NOT NULL,
			level TEXT NOT NULL,
			target TEXT NOT NULL,
			message TEXT NOT NULL,
			thread_id TEXT,
			process_uuid TEXT,
			module_path TEXT,
			file TEXT,
			line INTEGER,
			estimated_bytes INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_thread ON logs(thread_id)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_process ON logs(process_uuid)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_id ON logs(id)`,
		`CREATE TABLE IF NOT EXISTS thread_memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			scope_kind TEXT NOT NULL,
			scope_key TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_thread_memories_scope ON thread_memories(scope_kind, scope_key)`,
		`CREATE TABLE IF NOT EXISTS phase1_jobs (
			thread_id TEXT NOT NULL,
			scope_kind TEXT NOT NULL,
			scope_key TEXT NOT NULL,
			owner TEXT NOT NULL,
			token TEXT NOT NULL,
			source_ts TEXT NOT NULL,
			leased_at TEXT NOT NULL,
			lease_secs INTEGER NOT NULL,
			PRIMARY KEY (thread_id, scope_kind, scope_key)
		)`,
		`CREATE TABLE IF NOT EXISTS memory_locks (
			scope_kind TEXT NOT NULL,
			scope_key TEXT NOT NULL,
			owner TEXT NOT NULL,
			token TEXT NOT NULL,
			acquired_at TEXT NOT NULL,
			lease_secs INTEGER NOT NULL,
			PRIMARY KEY (scope_kind, scope_key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("statedb: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }
