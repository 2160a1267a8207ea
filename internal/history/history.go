// Package history provides SQLite-backed storage of finished playback
// runs.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	macro_id       TEXT NOT NULL,
	macro_name     TEXT NOT NULL DEFAULT '',
	started_at     DATETIME NOT NULL,
	finished_at    DATETIME NOT NULL,
	iterations     INTEGER NOT NULL DEFAULT 0,
	steps_executed INTEGER NOT NULL DEFAULT 0,
	outcome        TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_runs_macro ON runs(macro_id);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// Run is one stored playback record.
type Run struct {
	ID            int64     `json:"id"`
	MacroID       string    `json:"macro_id"`
	MacroName     string    `json:"macro_name"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Iterations    int       `json:"iterations"`
	StepsExecuted int       `json:"steps_executed"`
	Outcome       string    `json:"outcome"`
	Error         string    `json:"error,omitempty"`
}

// DB wraps a sql.DB with run-history operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// RecordRun stores a finished playback run. ID is assigned by the
// database and ignored on insert.
func (db *DB) RecordRun(r Run) error {
	_, err := db.conn.Exec(`
		INSERT INTO runs (macro_id, macro_name, started_at, finished_at, iterations, steps_executed, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.MacroID, r.MacroName, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Iterations, r.StepsExecuted, r.Outcome, r.Error)
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}
	return nil
}

// ListRuns returns runs newest-first, optionally filtered by macro ID,
// along with the total count matching the filter.
func (db *DB) ListRuns(limit, offset int, macroID string) ([]Run, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := ""
	args := []any{}
	if macroID != "" {
		where = "WHERE macro_id = ?"
		args = append(args, macroID)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM runs `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("history: count runs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, macro_id, macro_name, started_at, finished_at, iterations, steps_executed, outcome, error
		FROM runs %s
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, where)
	rows, err := db.conn.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.MacroID, &r.MacroName, &r.StartedAt, &r.FinishedAt,
			&r.Iterations, &r.StepsExecuted, &r.Outcome, &r.Error); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}
