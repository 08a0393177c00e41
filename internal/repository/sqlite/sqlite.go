// Package sqlite implements the repository interfaces on SQLite through
// modernc.org/sqlite, a pure-Go driver, so the server builds without cgo.
//
// One *DB serves sketches, users and run history. Use ":memory:" in tests.
//
// WHY ONE CONNECTION?
// An in-memory database lives inside a single connection: a second pooled
// connection would see an empty database. File databases run in WAL mode
// and would happily use a pool, but the server's write rate (one run at a
// time, a few sketch saves) never needs one, so every DB gets the same
// setting.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

type DB struct {
	conn *sql.DB
}

// New opens dbPath and brings the schema up to date.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
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

// Ping is used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate is idempotent: every statement can run against an existing
// database.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id         TEXT PRIMARY KEY,
				github_id  INTEGER UNIQUE,
				login      TEXT NOT NULL UNIQUE,
				email      TEXT NOT NULL DEFAULT '',
				avatar_url TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`},
		{"sketches", `
			CREATE TABLE IF NOT EXISTS sketches (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL,
				code        TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				user_id     TEXT REFERENCES users(id) ON DELETE SET NULL,
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`},
		{"sketches indexes", `
			CREATE INDEX IF NOT EXISTS idx_sketches_created_at ON sketches(created_at);
			CREATE INDEX IF NOT EXISTS idx_sketches_user_id ON sketches(user_id)`},
		{"runs", `
			CREATE TABLE IF NOT EXISTS runs (
				id          TEXT PRIMARY KEY,
				sketch_id   TEXT REFERENCES sketches(id) ON DELETE SET NULL,
				user_id     TEXT REFERENCES users(id) ON DELETE SET NULL,
				status      TEXT NOT NULL,
				diagnostics INTEGER NOT NULL DEFAULT 0,
				error       TEXT NOT NULL DEFAULT '',
				started_at  DATETIME NOT NULL,
				duration_ms INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`},
	}
	for _, s := range steps {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s: %w", s.name, err)
		}
	}

	// Databases created before local accounts existed lack this column.
	if err := db.addColumnIfNotExists("users", "password_hash", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding users.password_hash: %w", err)
	}
	return nil
}

func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition))
	return err
}

// clampPage applies the shared page-size rules.
func clampPage(limit, offset int) (int, int) {
	switch {
	case limit <= 0:
		limit = 20
	case limit > 100:
		limit = 100
	}
	return limit, max(offset, 0)
}

// nullString stores "" as NULL so foreign keys stay optional.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
