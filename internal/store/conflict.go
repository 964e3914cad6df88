package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calrelay/calrelay/internal/model"
)

// Conflict records a detected divergence awaiting resolution, with full JSON
// snapshots of both sides taken at detection time. A conflict is immutable
// once it leaves the pending state.
type Conflict struct {
	ID                 string
	UserID             string
	LocalEventID       string
	ExternalEventID    string
	Type               model.ConflictType
	LocalData          string // JSON snapshot of the local event, "" for deletions
	ExternalData       string // JSON snapshot of the external event, "" for deletions
	LocalModifiedAt    time.Time
	ExternalModifiedAt time.Time
	DetectedAt         time.Time
	Status             model.ConflictStatus
	Resolution         model.ResolutionChoice
	ResolvedBy         string
	ResolvedAt         time.Time
}

const conflictCols = `
	id, user_id, local_event_id, external_event_id, conflict_type,
	local_data, external_data, local_modified_at, external_modified_at,
	detected_at, status, resolution, resolved_by, resolved_at`

// CreateConflict stores a new pending conflict, minting an id and detection
// timestamp when the record has none.
func (s *Store) CreateConflict(ctx context.Context, c *Conflict) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = nowUTC()
	}
	c.Status = model.ConflictPending

	const q = `
		INSERT INTO conflicts
		    (id, user_id, local_event_id, external_event_id, conflict_type,
		     local_data, external_data, local_modified_at, external_modified_at,
		     detected_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		c.ID, c.UserID, c.LocalEventID, c.ExternalEventID, string(c.Type),
		c.LocalData, c.ExternalData,
		formatTime(c.LocalModifiedAt), formatTime(c.ExternalModifiedAt),
		formatTime(c.DetectedAt), string(c.Status),
	)
	if err != nil {
		return fmt.Errorf("creating conflict for %s↔%s: %w", c.LocalEventID, c.ExternalEventID, err)
	}
	return nil
}

// HasPendingConflict reports whether an unresolved conflict already exists
// for the mapped pair. Repeated sync runs over the same divergence must not
// pile up duplicate records.
func (s *Store) HasPendingConflict(ctx context.Context, userID, externalEventID string) (bool, error) {
	const q = `SELECT COUNT(*) FROM conflicts WHERE user_id = ? AND external_event_id = ? AND status = ?`
	var n int
	err := s.db.QueryRowContext(ctx, q, userID, externalEventID, string(model.ConflictPending)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking pending conflicts for %s: %w", externalEventID, err)
	}
	return n > 0, nil
}

// GetConflict returns the conflict with the given id, or (nil, nil) if absent.
func (s *Store) GetConflict(ctx context.Context, id string) (*Conflict, error) {
	q := `SELECT` + conflictCols + ` FROM conflicts WHERE id = ?`
	return scanConflict(s.db.QueryRowContext(ctx, q, id))
}

// ListPendingConflicts returns the user's unresolved conflicts, oldest first.
func (s *Store) ListPendingConflicts(ctx context.Context, userID string) ([]*Conflict, error) {
	q := `SELECT` + conflictCols + `
		FROM conflicts
		WHERE user_id = ? AND status = ?
		ORDER BY detected_at`
	rows, err := s.db.QueryContext(ctx, q, userID, string(model.ConflictPending))
	if err != nil {
		return nil, fmt.Errorf("querying pending conflicts for %q: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var conflicts []*Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// ResolveConflict transitions a pending conflict to resolved and records the
// choice, resolver, and timestamp. Resolution is single-shot: a record that
// already left the pending state returns [model.ErrConflictResolved] and is
// not altered.
func (s *Store) ResolveConflict(ctx context.Context, id string, choice model.ResolutionChoice, resolverID string) error {
	return s.closeConflict(ctx, id, model.ConflictResolved, choice, resolverID)
}

// IgnoreConflict transitions a pending conflict to ignored. Like resolution,
// this is single-shot.
func (s *Store) IgnoreConflict(ctx context.Context, id, resolverID string) error {
	return s.closeConflict(ctx, id, model.ConflictIgnored, "", resolverID)
}

// closeConflict performs the guarded pending→terminal transition. The status
// predicate in the WHERE clause is what makes resolution single-shot even
// with concurrent resolvers.
func (s *Store) closeConflict(ctx context.Context, id string, status model.ConflictStatus, choice model.ResolutionChoice, resolverID string) error {
	const q = `
		UPDATE conflicts
		SET status = ?, resolution = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ? AND status = ?`
	res, err := s.db.ExecContext(ctx, q,
		string(status), string(choice), resolverID, formatTime(nowUTC()),
		id, string(model.ConflictPending),
	)
	if err != nil {
		return fmt.Errorf("resolving conflict %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolving conflict %s: %w", id, err)
	}
	if n == 0 {
		existing, err := s.GetConflict(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("conflict %s: %w", id, model.ErrNotFound)
		}
		return fmt.Errorf("conflict %s: %w", id, model.ErrConflictResolved)
	}
	return nil
}

func scanConflict(sc scanner) (*Conflict, error) {
	var c Conflict
	var ctype, status, resolution string
	var localMod, extMod, detectedAt, resolvedAt string

	err := sc.Scan(
		&c.ID, &c.UserID, &c.LocalEventID, &c.ExternalEventID, &ctype,
		&c.LocalData, &c.ExternalData, &localMod, &extMod,
		&detectedAt, &status, &resolution, &c.ResolvedBy, &resolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conflict row: %w", err)
	}

	c.Type = model.ConflictType(ctype)
	c.Status = model.ConflictStatus(status)
	c.Resolution = model.ResolutionChoice(resolution)
	c.LocalModifiedAt, _ = parseTime(localMod)
	c.ExternalModifiedAt, _ = parseTime(extMod)
	c.DetectedAt, _ = parseTime(detectedAt)
	c.ResolvedAt, _ = parseTime(resolvedAt)
	return &c, nil
}
