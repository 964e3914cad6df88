package model

import "errors"

// Sentinel errors for the conditions callers must distinguish. Matched with
// [errors.Is] after wrapping.
var (
	// ErrReauthRequired means the provider credential is invalid or expired.
	// Never retried by the engine; the run aborts before fetching anything.
	ErrReauthRequired = errors.New("provider reauthorization required")

	// ErrSyncInProgress means a run for the same user is already active.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSyncDisabled means the user's preferences have sync turned off.
	ErrSyncDisabled = errors.New("sync is disabled")

	// ErrConflictResolved means the conflict left the pending state earlier;
	// resolution is single-shot.
	ErrConflictResolved = errors.New("conflict already resolved or ignored")

	// ErrNotFound means the requested row does not exist.
	ErrNotFound = errors.New("not found")
)
