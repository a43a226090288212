// Package journal provides an optional SQLite record of sync runs and
// per-file outcomes. It powers incremental skips and gives CI a queryable
// history; without a configured journal the tool stays fully stateless.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	synced      INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS files (
	run_id   INTEGER NOT NULL REFERENCES runs(id),
	path     TEXT NOT NULL,
	checksum TEXT NOT NULL DEFAULT '',
	outcome  TEXT NOT NULL,
	page_id  TEXT NOT NULL DEFAULT '',
	error    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_files_path ON files(path);
CREATE INDEX IF NOT EXISTS idx_files_run ON files(run_id);
`

// Outcomes recorded per file.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// FileRecord is one per-file outcome row.
type FileRecord struct {
	Path     string
	Checksum string
	Outcome  string
	PageID   string
	Error    string
}

// DB wraps a sql.DB with journal-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the journal database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// BeginRun inserts a new run row and returns its ID.
func (db *DB) BeginRun(startedAt time.Time) (int64, error) {
	res, err := db.conn.Exec(`INSERT INTO runs (started_at) VALUES (?)`, startedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("journal: begin run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal: begin run: %w", err)
	}
	return id, nil
}

// FinishRun records the aggregate counters and the finish time.
func (db *DB) FinishRun(runID int64, synced, failed, skipped int) error {
	_, err := db.conn.Exec(`
		UPDATE runs SET finished_at = ?, synced = ?, failed = ?, skipped = ?
		WHERE id = ?`,
		time.Now().UTC(), synced, failed, skipped, runID)
	if err != nil {
		return fmt.Errorf("journal: finish run: %w", err)
	}
	return nil
}

// RecordFile appends one per-file outcome to the run.
func (db *DB) RecordFile(runID int64, rec FileRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO files (run_id, path, checksum, outcome, page_id, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, rec.Path, rec.Checksum, rec.Outcome, rec.PageID, rec.Error)
	if err != nil {
		return fmt.Errorf("journal: record file: %w", err)
	}
	return nil
}

// LastSyncedChecksum returns the checksum of the most recent successful
// sync (created or updated) of path, or "" when the file has never
// synced cleanly.
func (db *DB) LastSyncedChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`
		SELECT checksum FROM files
		WHERE path = ? AND outcome IN (?, ?)
		ORDER BY rowid DESC LIMIT 1`,
		path, OutcomeCreated, OutcomeUpdated).Scan(&cs)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("journal: last checksum for %s: %w", path, err)
	}
	return cs, nil
}
