// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the server builds
// without cgo. Use ":memory:" for tests; every test gets a fresh database.
//
// TABLES:
//
//	users            one row per Google account (google_sub is unique)
//	progress_events  append-only event log; heartbeat/checkin rows are
//	                 unique per (user_email, mission_id) via a partial index
//	scenarios        narrative content; tags and choices are JSON columns
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/schoolquest/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements every repository.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// An in-memory database lives in a single connection; a second pooled
	// connection would see an empty schema.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets the dashboard read while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate is idempotent: CREATE ... IF NOT EXISTS plus addColumnIfNotExists
// for columns added after the first release.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			google_sub TEXT NOT NULL UNIQUE,
			email      TEXT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	if err := db.addColumnIfNotExists("users", "image",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding image to users: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS progress_events (
			id         TEXT PRIMARY KEY,
			user_email TEXT NOT NULL,
			mission_id TEXT NOT NULL,
			kind       TEXT NOT NULL,
			score      INTEGER NOT NULL DEFAULT 0,
			payload    TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_progress_user_created
			ON progress_events(user_email, created_at);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_progress_upsert
			ON progress_events(user_email, mission_id)
			WHERE kind IN ('heartbeat', 'checkin');
	`)
	if err != nil {
		return fmt.Errorf("creating progress_events table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS scenarios (
			id      TEXT PRIMARY KEY,
			chapter INTEGER NOT NULL,
			title   TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			tags    TEXT NOT NULL DEFAULT '[]',
			choices TEXT NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_scenarios_chapter ON scenarios(chapter);
	`)
	if err != nil {
		return fmt.Errorf("creating scenarios table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
