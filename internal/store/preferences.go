package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/calrelay/calrelay/internal/model"
)

// Default preference values applied when a user's row is created lazily.
const (
	defaultPollInterval = 15 * time.Minute
	defaultCalendarID   = "primary"
)

// Preferences is the per-user sync configuration.
type Preferences struct {
	UserID          string
	Enabled         bool
	Direction       model.Direction
	PollInterval    time.Duration
	AutoResolve     bool
	CalendarID      string
	LastAttemptedAt time.Time
	LastSucceededAt time.Time
}

// PreferencesPatch updates a subset of preference fields; nil pointers leave
// the stored value unchanged.
type PreferencesPatch struct {
	Enabled      *bool
	Direction    *model.Direction
	PollInterval *time.Duration
	AutoResolve  *bool
	CalendarID   *string
}

const preferencesCols = `
	user_id, enabled, direction, poll_interval_seconds, auto_resolve,
	calendar_id, last_attempted_at, last_succeeded_at`

// GetPreferences returns the user's preferences, creating the row with
// documented defaults (enabled, bidirectional, 15-minute interval,
// auto-resolve off, primary calendar) on first request.
func (s *Store) GetPreferences(ctx context.Context, userID string) (*Preferences, error) {
	q := `SELECT` + preferencesCols + ` FROM sync_preferences WHERE user_id = ?`
	p, err := scanPreferences(s.db.QueryRowContext(ctx, q, userID))
	if err != nil {
		return nil, err
	}
	if p != nil {
		return p, nil
	}

	const ins = `INSERT INTO sync_preferences (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, ins, userID); err != nil {
		return nil, fmt.Errorf("creating default preferences for %q: %w", userID, err)
	}
	return &Preferences{
		UserID:       userID,
		Enabled:      true,
		Direction:    model.DirectionBidirectional,
		PollInterval: defaultPollInterval,
		CalendarID:   defaultCalendarID,
	}, nil
}

// UpdatePreferences applies a patch and returns the stored row.
func (s *Store) UpdatePreferences(ctx context.Context, userID string, patch PreferencesPatch) (*Preferences, error) {
	current, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	if patch.Enabled != nil {
		current.Enabled = *patch.Enabled
	}
	if patch.Direction != nil {
		if !patch.Direction.IsValid() {
			return nil, fmt.Errorf("invalid direction %q", *patch.Direction)
		}
		current.Direction = *patch.Direction
	}
	if patch.PollInterval != nil {
		current.PollInterval = *patch.PollInterval
	}
	if patch.AutoResolve != nil {
		current.AutoResolve = *patch.AutoResolve
	}
	if patch.CalendarID != nil {
		current.CalendarID = *patch.CalendarID
	}

	const q = `
		UPDATE sync_preferences
		SET enabled = ?, direction = ?, poll_interval_seconds = ?,
		    auto_resolve = ?, calendar_id = ?
		WHERE user_id = ?`
	_, err = s.db.ExecContext(ctx, q,
		boolToInt(current.Enabled), string(current.Direction),
		int64(current.PollInterval/time.Second), boolToInt(current.AutoResolve),
		current.CalendarID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating preferences for %q: %w", userID, err)
	}
	return current, nil
}

// TouchSyncTimestamps records a run attempt and, when the run finished with
// zero errors, advances the last-successful timestamp as well.
func (s *Store) TouchSyncTimestamps(ctx context.Context, userID string, succeeded bool) error {
	now := formatTime(nowUTC())
	q := `UPDATE sync_preferences SET last_attempted_at = ? WHERE user_id = ?`
	args := []any{now, userID}
	if succeeded {
		q = `UPDATE sync_preferences SET last_attempted_at = ?, last_succeeded_at = ? WHERE user_id = ?`
		args = []any{now, now, userID}
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("updating sync timestamps for %q: %w", userID, err)
	}
	return nil
}

// TryAcquireRunLock attempts the per-user mutual-exclusion gate via a
// compare-and-set on the preferences row. It returns false when a run is
// already in progress. The lock lives in the database so multiple worker
// processes sharing the store observe it.
func (s *Store) TryAcquireRunLock(ctx context.Context, userID string) (bool, error) {
	// The row must exist before the CAS can match.
	if _, err := s.GetPreferences(ctx, userID); err != nil {
		return false, err
	}

	const q = `UPDATE sync_preferences SET sync_in_progress = 1 WHERE user_id = ? AND sync_in_progress = 0`
	res, err := s.db.ExecContext(ctx, q, userID)
	if err != nil {
		return false, fmt.Errorf("acquiring run lock for %q: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquiring run lock for %q: %w", userID, err)
	}
	return n == 1, nil
}

// ReleaseRunLock clears the per-user in-progress flag.
func (s *Store) ReleaseRunLock(ctx context.Context, userID string) error {
	const q = `UPDATE sync_preferences SET sync_in_progress = 0 WHERE user_id = ?`
	if _, err := s.db.ExecContext(ctx, q, userID); err != nil {
		return fmt.Errorf("releasing run lock for %q: %w", userID, err)
	}
	return nil
}

func scanPreferences(sc scanner) (*Preferences, error) {
	var p Preferences
	var enabled, autoResolve int
	var direction, attempted, succeeded string
	var pollSeconds int64

	err := sc.Scan(
		&p.UserID, &enabled, &direction, &pollSeconds, &autoResolve,
		&p.CalendarID, &attempted, &succeeded,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning preferences row: %w", err)
	}

	p.Enabled = enabled != 0
	p.AutoResolve = autoResolve != 0
	p.Direction = model.Direction(direction)
	p.PollInterval = time.Duration(pollSeconds) * time.Second
	p.LastAttemptedAt, _ = parseTime(attempted)
	p.LastSucceededAt, _ = parseTime(succeeded)
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
