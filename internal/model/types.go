package model

// Direction configures which passes a sync run performs.
type Direction string

const (
	DirectionBidirectional Direction = "bidirectional"
	DirectionLocalToRemote Direction = "local_to_remote"
	DirectionRemoteToLocal Direction = "remote_to_local"
)

// IncludesRemoteToLocal reports whether the remote→local pass runs.
func (d Direction) IncludesRemoteToLocal() bool {
	return d == DirectionBidirectional || d == DirectionRemoteToLocal
}

// IncludesLocalToRemote reports whether the local→remote pass runs.
func (d Direction) IncludesLocalToRemote() bool {
	return d == DirectionBidirectional || d == DirectionLocalToRemote
}

// IsValid reports whether d is a known direction value.
func (d Direction) IsValid() bool {
	switch d {
	case DirectionBidirectional, DirectionLocalToRemote, DirectionRemoteToLocal:
		return true
	}
	return false
}

// SyncStatus is the per-mapping sync state.
type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPending SyncStatus = "pending"
	SyncStatusError   SyncStatus = "error"
)

// ConflictType distinguishes concurrent modification from one-sided deletion.
type ConflictType string

const (
	ConflictModification ConflictType = "modification"
	ConflictDeletion     ConflictType = "deletion"
)

// ConflictStatus is the lifecycle state of a conflict record.
type ConflictStatus string

const (
	ConflictPending  ConflictStatus = "pending"
	ConflictResolved ConflictStatus = "resolved"
	ConflictIgnored  ConflictStatus = "ignored"
)

// ResolutionChoice records which side won a resolved conflict.
type ResolutionChoice string

const (
	ResolutionKeepLocal  ResolutionChoice = "keep_local"
	ResolutionKeepGoogle ResolutionChoice = "keep_google"
	ResolutionMerge      ResolutionChoice = "merge"
)

// IsValid reports whether c is a known resolution choice.
func (c ResolutionChoice) IsValid() bool {
	switch c {
	case ResolutionKeepLocal, ResolutionKeepGoogle, ResolutionMerge:
		return true
	}
	return false
}

// RunStatus is the lifecycle state of a sync log entry.
type RunStatus string

const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)
