package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calrelay/calrelay/internal/model"
)

// SyncLog is the append-only audit record of one orchestrated run. Created at
// run start with status in_progress and finished exactly once with the final
// counters and a terminal status.
type SyncLog struct {
	ID         string
	UserID     string
	Operation  string
	Direction  model.Direction
	Status     model.RunStatus
	Processed  int
	Created    int
	Updated    int
	Deleted    int
	Conflicts  int
	Errors     []string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

const syncLogCols = `
	id, user_id, operation, direction, status,
	processed, created, updated, deleted, conflicts, errors,
	started_at, finished_at, duration_ms`

// StartSyncLog opens a new in_progress log entry and returns its id.
func (s *Store) StartSyncLog(ctx context.Context, userID, operation string, direction model.Direction) (string, error) {
	id := uuid.NewString()
	const q = `
		INSERT INTO sync_logs (id, user_id, operation, direction, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		id, userID, operation, string(direction), string(model.RunInProgress),
		formatTime(nowUTC()),
	)
	if err != nil {
		return "", fmt.Errorf("starting sync log for %q: %w", userID, err)
	}
	return id, nil
}

// FinishSyncLog closes a log entry with final counters, terminal status, and
// duration computed from the stored start time.
func (s *Store) FinishSyncLog(ctx context.Context, id string, status model.RunStatus, counters SyncCounters, errs []string) error {
	existing, err := s.GetSyncLog(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("sync log %s: %w", id, model.ErrNotFound)
	}

	finished := nowUTC()
	encoded, err := encodeJSON(errs)
	if err != nil {
		return err
	}

	const q = `
		UPDATE sync_logs
		SET status = ?, processed = ?, created = ?, updated = ?, deleted = ?,
		    conflicts = ?, errors = ?, finished_at = ?, duration_ms = ?
		WHERE id = ?`
	_, err = s.db.ExecContext(ctx, q,
		string(status), counters.Processed, counters.Created, counters.Updated,
		counters.Deleted, counters.Conflicts, encoded,
		formatTime(finished), finished.Sub(existing.StartedAt).Milliseconds(), id,
	)
	if err != nil {
		return fmt.Errorf("finishing sync log %s: %w", id, err)
	}
	return nil
}

// SyncCounters aggregates the per-run event counts written to the log.
type SyncCounters struct {
	Processed int
	Created   int
	Updated   int
	Deleted   int
	Conflicts int
}

// GetSyncLog returns the log entry with the given id, or (nil, nil) if absent.
func (s *Store) GetSyncLog(ctx context.Context, id string) (*SyncLog, error) {
	q := `SELECT` + syncLogCols + ` FROM sync_logs WHERE id = ?`
	return scanSyncLog(s.db.QueryRowContext(ctx, q, id))
}

// ListSyncLogs returns the user's most recent log entries, newest first.
func (s *Store) ListSyncLogs(ctx context.Context, userID string, limit int) ([]*SyncLog, error) {
	q := `SELECT` + syncLogCols + `
		FROM sync_logs
		WHERE user_id = ?
		ORDER BY started_at DESC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync logs for %q: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var logs []*SyncLog
	for rows.Next() {
		l, err := scanSyncLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanSyncLog(sc scanner) (*SyncLog, error) {
	var l SyncLog
	var direction, status, errs, startedAt, finishedAt string
	var durationMS int64

	err := sc.Scan(
		&l.ID, &l.UserID, &l.Operation, &direction, &status,
		&l.Processed, &l.Created, &l.Updated, &l.Deleted, &l.Conflicts, &errs,
		&startedAt, &finishedAt, &durationMS,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning sync log row: %w", err)
	}

	l.Direction = model.Direction(direction)
	l.Status = model.RunStatus(status)
	l.Errors = decodeStrings(errs)
	l.StartedAt, _ = parseTime(startedAt)
	l.FinishedAt, _ = parseTime(finishedAt)
	l.Duration = time.Duration(durationMS) * time.Millisecond
	return &l, nil
}
