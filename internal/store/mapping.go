package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calrelay/calrelay/internal/model"
)

// Mapping correlates one local event with one external event and carries the
// fingerprints observed at the last successful sync of the pair. LocalEventID
// is empty only transiently, before the first successful remote creation.
// Mappings are never deleted on the sync path; a broken correspondence is
// marked [model.SyncStatusError] with LastError set, preserving auditability.
type Mapping struct {
	ID                  string
	UserID              string
	LocalEventID        string
	ExternalEventID     string
	LocalFingerprint    string
	ExternalFingerprint string
	Status              model.SyncStatus
	LastError           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

const mappingCols = `
	id, user_id, local_event_id, external_event_id,
	local_fingerprint, external_fingerprint, status, last_error,
	created_at, updated_at`

// GetMappingByLocalID returns the user's live mapping for a local event id,
// or (nil, nil) if no such mapping exists.
func (s *Store) GetMappingByLocalID(ctx context.Context, userID, localID string) (*Mapping, error) {
	q := `SELECT` + mappingCols + ` FROM sync_mappings WHERE user_id = ? AND local_event_id = ?`
	return scanMapping(s.db.QueryRowContext(ctx, q, userID, localID))
}

// GetMappingByExternalID returns the user's mapping for an external event id,
// or (nil, nil) if no such mapping exists.
func (s *Store) GetMappingByExternalID(ctx context.Context, userID, externalID string) (*Mapping, error) {
	q := `SELECT` + mappingCols + ` FROM sync_mappings WHERE user_id = ? AND external_event_id = ?`
	return scanMapping(s.db.QueryRowContext(ctx, q, userID, externalID))
}

// ListMappings returns all of the user's mappings.
func (s *Store) ListMappings(ctx context.Context, userID string) ([]*Mapping, error) {
	q := `SELECT` + mappingCols + ` FROM sync_mappings WHERE user_id = ?`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("querying mappings for %q: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []*Mapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// UpsertMapping inserts or updates a mapping. The row is matched by
// (user, local event id) when the local id is present, otherwise by
// (user, external event id), so applying the same mapping twice produces one
// row. The mapping's ID and timestamps are filled in on the way through.
func (s *Store) UpsertMapping(ctx context.Context, m *Mapping) error {
	if m.ID == "" {
		existing, err := s.findExisting(ctx, m)
		if err != nil {
			return err
		}
		if existing != nil {
			m.ID = existing.ID
			m.CreatedAt = existing.CreatedAt
		}
	}

	now := nowUTC()
	if m.ID == "" {
		m.ID = uuid.NewString()
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	const q = `
		INSERT INTO sync_mappings
		    (id, user_id, local_event_id, external_event_id,
		     local_fingerprint, external_fingerprint, status, last_error,
		     created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    local_event_id       = excluded.local_event_id,
		    external_event_id    = excluded.external_event_id,
		    local_fingerprint    = excluded.local_fingerprint,
		    external_fingerprint = excluded.external_fingerprint,
		    status               = excluded.status,
		    last_error           = excluded.last_error,
		    updated_at           = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, q,
		m.ID, m.UserID, m.LocalEventID, m.ExternalEventID,
		m.LocalFingerprint, m.ExternalFingerprint, string(m.Status), m.LastError,
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting mapping %s↔%s: %w", m.LocalEventID, m.ExternalEventID, err)
	}
	return nil
}

// MarkMappingError retires a mapping from the sync path without deleting it.
func (s *Store) MarkMappingError(ctx context.Context, id, lastError string) error {
	const q = `UPDATE sync_mappings SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, q, string(model.SyncStatusError), lastError, formatTime(nowUTC()), id); err != nil {
		return fmt.Errorf("marking mapping %s as error: %w", id, err)
	}
	return nil
}

// DeleteMapping removes a mapping after the pair it tracked ceased to
// exist, such as when a deletion conflict is resolved by deleting the
// surviving side.
func (s *Store) DeleteMapping(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_mappings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting mapping %s: %w", id, err)
	}
	return nil
}

func (s *Store) findExisting(ctx context.Context, m *Mapping) (*Mapping, error) {
	if m.LocalEventID != "" {
		existing, err := s.GetMappingByLocalID(ctx, m.UserID, m.LocalEventID)
		if err != nil || existing != nil {
			return existing, err
		}
	}
	return s.GetMappingByExternalID(ctx, m.UserID, m.ExternalEventID)
}

func scanMapping(sc scanner) (*Mapping, error) {
	var m Mapping
	var status, createdAt, updatedAt string

	err := sc.Scan(
		&m.ID, &m.UserID, &m.LocalEventID, &m.ExternalEventID,
		&m.LocalFingerprint, &m.ExternalFingerprint, &status, &m.LastError,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning mapping row: %w", err)
	}

	m.Status = model.SyncStatus(status)
	m.CreatedAt, _ = parseTime(createdAt)
	m.UpdatedAt, _ = parseTime(updatedAt)
	return &m, nil
}
