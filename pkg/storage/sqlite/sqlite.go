// Package sqlite persists incidents in a local SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection with thread-safe access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New opens (creating if needed) the database at dbPath and migrates it.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate creates the necessary tables if they don't exist.
// Timestamps are RFC 3339 text with nanoseconds in UTC.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS incidents (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		worker_id TEXT NOT NULL,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		confidence REAL NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		acknowledged INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS incident_notes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		incident_id TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		content TEXT NOT NULL,
		FOREIGN KEY (incident_id) REFERENCES incidents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_worker ON incidents(worker_id);
	CREATE INDEX IF NOT EXISTS idx_incident_notes_incident ON incident_notes(incident_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}
