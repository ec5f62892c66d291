// Package history keeps a durable record of automation runs so past
// outcomes survive process restarts and can be recalled from the chat
// surface.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Status is a run's terminal outcome.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record is one finished run.
type Record struct {
	ID               string
	StartedAt        time.Time
	EndedAt          time.Time
	Status           Status
	CategoriesWalked int
	ItemsChecked     int
	Failure          string
}

// DB wraps the SQLite run log.
type DB struct {
	conn *sql.DB
}

// Open opens (and migrates) the run log at dbPath.
// If dbPath is empty, defaults to ~/.planpilot/history.db
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("history: resolve home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, ".planpilot", "history.db")
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("history: create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: migrate database: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		ended_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		categories_walked INTEGER NOT NULL DEFAULT 0,
		items_checked INTEGER NOT NULL DEFAULT 0,
		failure TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Record inserts one finished run.
func (db *DB) Record(rec Record) error {
	_, err := db.conn.Exec(`
		INSERT INTO runs (id, started_at, ended_at, status, categories_walked, items_checked, failure)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.StartedAt, rec.EndedAt, string(rec.Status), rec.CategoriesWalked, rec.ItemsChecked, rec.Failure)
	if err != nil {
		return fmt.Errorf("history: record run %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (db *DB) Recent(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.Query(`
		SELECT id, started_at, ended_at, status, categories_walked, items_checked, failure
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var status string
		if err := rows.Scan(&rec.ID, &rec.StartedAt, &rec.EndedAt, &status, &rec.CategoriesWalked, &rec.ItemsChecked, &rec.Failure); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		rec.Status = Status(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	return records, nil
}
