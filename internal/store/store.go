// Package store manages the SQLite database holding local events, sync
// mappings, conflict records, sync logs, and per-user preferences.
//
// Only this package may open or query the database. All other packages
// receive a [*Store] and call its methods.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS local_events (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    title         TEXT NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    date          TEXT NOT NULL DEFAULT '',
    start_time    TEXT NOT NULL DEFAULT '',
    end_time      TEXT NOT NULL DEFAULT '',
    location      TEXT NOT NULL DEFAULT '',
    participants  TEXT NOT NULL DEFAULT '[]',
    category      TEXT NOT NULL DEFAULT '',
    origin        TEXT NOT NULL DEFAULT 'manual',
    created_at    TEXT NOT NULL DEFAULT '',
    updated_at    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_local_events_user_date ON local_events (user_id, date);

CREATE TABLE IF NOT EXISTS sync_mappings (
    id                   TEXT PRIMARY KEY,
    user_id              TEXT NOT NULL,
    local_event_id       TEXT NOT NULL DEFAULT '',
    external_event_id    TEXT NOT NULL,
    local_fingerprint    TEXT NOT NULL DEFAULT '',
    external_fingerprint TEXT NOT NULL DEFAULT '',
    status               TEXT NOT NULL DEFAULT 'pending',
    last_error           TEXT NOT NULL DEFAULT '',
    created_at           TEXT NOT NULL DEFAULT '',
    updated_at           TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_mappings_local    ON sync_mappings (user_id, local_event_id) WHERE local_event_id != '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_mappings_external ON sync_mappings (user_id, external_event_id);

CREATE TABLE IF NOT EXISTS conflicts (
    id                   TEXT PRIMARY KEY,
    user_id              TEXT NOT NULL,
    local_event_id       TEXT NOT NULL DEFAULT '',
    external_event_id    TEXT NOT NULL DEFAULT '',
    conflict_type        TEXT NOT NULL,
    local_data           TEXT NOT NULL DEFAULT '',
    external_data        TEXT NOT NULL DEFAULT '',
    local_modified_at    TEXT NOT NULL DEFAULT '',
    external_modified_at TEXT NOT NULL DEFAULT '',
    detected_at          TEXT NOT NULL DEFAULT '',
    status               TEXT NOT NULL DEFAULT 'pending',
    resolution           TEXT NOT NULL DEFAULT '',
    resolved_by          TEXT NOT NULL DEFAULT '',
    resolved_at          TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_conflicts_user_status ON conflicts (user_id, status);

CREATE TABLE IF NOT EXISTS sync_logs (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    operation   TEXT NOT NULL DEFAULT 'full_sync',
    direction   TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'in_progress',
    processed   INTEGER NOT NULL DEFAULT 0,
    created     INTEGER NOT NULL DEFAULT 0,
    updated     INTEGER NOT NULL DEFAULT 0,
    deleted     INTEGER NOT NULL DEFAULT 0,
    conflicts   INTEGER NOT NULL DEFAULT 0,
    errors      TEXT NOT NULL DEFAULT '[]',
    started_at  TEXT NOT NULL DEFAULT '',
    finished_at TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sync_logs_user ON sync_logs (user_id, started_at);

CREATE TABLE IF NOT EXISTS sync_preferences (
    user_id               TEXT PRIMARY KEY,
    enabled               INTEGER NOT NULL DEFAULT 1,
    direction             TEXT NOT NULL DEFAULT 'bidirectional',
    poll_interval_seconds INTEGER NOT NULL DEFAULT 900,
    auto_resolve          INTEGER NOT NULL DEFAULT 0,
    calendar_id           TEXT NOT NULL DEFAULT 'primary',
    last_attempted_at     TEXT NOT NULL DEFAULT '',
    last_succeeded_at     TEXT NOT NULL DEFAULT '',
    sync_in_progress      INTEGER NOT NULL DEFAULT 0
);
`

// Store is the SQLite-backed repository for all sync engine state.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the database:
// ~/.local/share/calrelay/calrelay.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "calrelay", "calrelay.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so scan helpers can be shared.
type scanner interface {
	Scan(dest ...any) error
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// encodeJSON marshals v for a TEXT column; nil slices become "[]" / "null"
// handling is left to the decoder.
func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding json column: %w", err)
	}
	return string(b), nil
}

func decodeStrings(raw string) []string {
	if raw == "" || raw == "null" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
