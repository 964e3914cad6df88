package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/calrelay/calrelay/internal/model"
)

const localEventCols = `
	id, user_id, title, description, date, start_time, end_time,
	location, participants, category, origin, created_at, updated_at`

// ListLocalEvents returns the user's events with dates inside [from, to],
// both inclusive, in DateLayout.
func (s *Store) ListLocalEvents(ctx context.Context, userID, from, to string) ([]*model.LocalEvent, error) {
	q := `SELECT` + localEventCols + `
		FROM local_events
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date, start_time`
	rows, err := s.db.QueryContext(ctx, q, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying local events for %q: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var events []*model.LocalEvent
	for rows.Next() {
		e, err := scanLocalEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetLocalEvent returns the event with the given id, or (nil, nil) if absent.
func (s *Store) GetLocalEvent(ctx context.Context, id string) (*model.LocalEvent, error) {
	q := `SELECT` + localEventCols + ` FROM local_events WHERE id = ?`
	return scanLocalEvent(s.db.QueryRowContext(ctx, q, id))
}

// InsertLocalEvent stores a new event, minting an id when the draft has none,
// and returns the stored row.
func (s *Store) InsertLocalEvent(ctx context.Context, draft *model.LocalEvent) (*model.LocalEvent, error) {
	e := *draft
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Origin == "" {
		e.Origin = model.OriginManual
	}
	now := nowUTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	participants, err := encodeJSON(e.Participants)
	if err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO local_events
		    (id, user_id, title, description, date, start_time, end_time,
		     location, participants, category, origin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		e.ID, e.UserID, e.Title, e.Description, e.Date, e.StartTime, e.EndTime,
		e.Location, participants, e.Category, string(e.Origin),
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting local event %q: %w", e.Title, err)
	}
	return &e, nil
}

// UpdateLocalEvent overwrites the stored event's content fields and returns
// the updated row. Identity fields (id, user, origin, created_at) are kept.
func (s *Store) UpdateLocalEvent(ctx context.Context, id string, draft *model.LocalEvent) (*model.LocalEvent, error) {
	participants, err := encodeJSON(draft.Participants)
	if err != nil {
		return nil, err
	}

	const q = `
		UPDATE local_events SET
		    title = ?, description = ?, date = ?, start_time = ?, end_time = ?,
		    location = ?, participants = ?, category = ?, updated_at = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q,
		draft.Title, draft.Description, draft.Date, draft.StartTime, draft.EndTime,
		draft.Location, participants, draft.Category, formatTime(nowUTC()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating local event %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("updating local event %s: %w", id, model.ErrNotFound)
	}
	return s.GetLocalEvent(ctx, id)
}

// DeleteLocalEvent removes the event with the given id.
func (s *Store) DeleteLocalEvent(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM local_events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting local event %s: %w", id, err)
	}
	return nil
}

func scanLocalEvent(sc scanner) (*model.LocalEvent, error) {
	var e model.LocalEvent
	var participants, origin, createdAt, updatedAt string

	err := sc.Scan(
		&e.ID, &e.UserID, &e.Title, &e.Description, &e.Date, &e.StartTime,
		&e.EndTime, &e.Location, &participants, &e.Category, &origin,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning local event row: %w", err)
	}

	e.Participants = decodeStrings(participants)
	e.Origin = model.Origin(origin)
	e.CreatedAt, _ = parseTime(createdAt)
	e.UpdatedAt, _ = parseTime(updatedAt)
	return &e, nil
}
