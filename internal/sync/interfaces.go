// Package sync implements the bidirectional reconciliation engine. It
// compares local events and external provider events against the mapping
// store's last-synced fingerprints, classifies every pair, dispatches
// creates and updates to the owning side, and records conflicts for pairs
// that changed on both sides.
//
// The package contains two main components:
//
//   - [Orchestrator] performs one full run per call and exposes the
//     conflict/preferences surface.
//   - [Engine] runs the polling loop around the orchestrator for all
//     configured users.
package sync

import (
	"context"
	"time"

	"github.com/calrelay/calrelay/internal/model"
	"github.com/calrelay/calrelay/internal/store"
)

// LocalStore provides read/write access to locally-owned events.
// Implemented by [store.Store].
type LocalStore interface {
	ListLocalEvents(ctx context.Context, userID, from, to string) ([]*model.LocalEvent, error)
	GetLocalEvent(ctx context.Context, id string) (*model.LocalEvent, error)
	InsertLocalEvent(ctx context.Context, draft *model.LocalEvent) (*model.LocalEvent, error)
	UpdateLocalEvent(ctx context.Context, id string, draft *model.LocalEvent) (*model.LocalEvent, error)
	DeleteLocalEvent(ctx context.Context, id string) error
}

// Provider provides access to the external calendar. Implemented by
// [google.Client]. All calls carry caller-enforced timeouts so a stuck
// request cannot hold the per-user run lock indefinitely.
type Provider interface {
	CheckAuth(ctx context.Context) error
	ListEvents(ctx context.Context, timeMin, timeMax time.Time, maxResults int64) ([]*model.ExternalEvent, error)
	InsertEvent(ctx context.Context, draft *model.ExternalEvent) (*model.ExternalEvent, error)
	UpdateEvent(ctx context.Context, id string, draft *model.ExternalEvent) (*model.ExternalEvent, error)
	DeleteEvent(ctx context.Context, id string) error
}

// StateStore provides access to mappings, conflicts, sync logs, preferences,
// and the per-user run lock. Implemented by [store.Store].
type StateStore interface {
	GetMappingByLocalID(ctx context.Context, userID, localID string) (*store.Mapping, error)
	GetMappingByExternalID(ctx context.Context, userID, externalID string) (*store.Mapping, error)
	ListMappings(ctx context.Context, userID string) ([]*store.Mapping, error)
	UpsertMapping(ctx context.Context, m *store.Mapping) error
	MarkMappingError(ctx context.Context, id, lastError string) error
	DeleteMapping(ctx context.Context, id string) error

	CreateConflict(ctx context.Context, c *store.Conflict) error
	HasPendingConflict(ctx context.Context, userID, externalEventID string) (bool, error)
	GetConflict(ctx context.Context, id string) (*store.Conflict, error)
	ListPendingConflicts(ctx context.Context, userID string) ([]*store.Conflict, error)
	ResolveConflict(ctx context.Context, id string, choice model.ResolutionChoice, resolverID string) error
	IgnoreConflict(ctx context.Context, id, resolverID string) error

	StartSyncLog(ctx context.Context, userID, operation string, direction model.Direction) (string, error)
	FinishSyncLog(ctx context.Context, id string, status model.RunStatus, counters store.SyncCounters, errs []string) error

	GetPreferences(ctx context.Context, userID string) (*store.Preferences, error)
	UpdatePreferences(ctx context.Context, userID string, patch store.PreferencesPatch) (*store.Preferences, error)
	TouchSyncTimestamps(ctx context.Context, userID string, succeeded bool) error
	TryAcquireRunLock(ctx context.Context, userID string) (bool, error)
	ReleaseRunLock(ctx context.Context, userID string) error
}
