package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/calrelay/calrelay/internal/model"
	"github.com/calrelay/calrelay/internal/store"
	"github.com/calrelay/calrelay/internal/translate"
)

// Window bounds the date range fetched from both sides per run. Unbounded
// windows are rejected at configuration time to bound worst-case run cost.
type Window struct {
	PastMonths   int
	FutureMonths int
}

// DefaultWindow is 3 months retrospective to 6 months prospective.
var DefaultWindow = Window{PastMonths: 3, FutureMonths: 6}

// SyncResult is the outcome of one orchestrated run, returned to callers and
// mirrored into the sync log.
type SyncResult struct {
	Success        bool
	AlreadyRunning bool
	LogID          string
	Processed      int
	Created        int
	Updated        int
	Deleted        int
	Conflicts      int
	Errors         []string
}

// Orchestrator drives full sync runs. It is the only component with
// cross-cutting knowledge of both sides; everything it touches goes through
// the [LocalStore], [Provider], and [StateStore] interfaces. Stateless
// between calls; all persistent state lives in the stores.
type Orchestrator struct {
	local      LocalStore
	provider   Provider
	state      StateStore
	loc        *time.Location
	window     Window
	maxResults int64
	log        *slog.Logger
}

// NewOrchestrator creates an Orchestrator wired to the given stores and
// provider. loc anchors local date + time-of-day values to instants and must
// stay constant across runs, or fingerprints of timed events would drift.
func NewOrchestrator(local LocalStore, provider Provider, state StateStore, loc *time.Location, window Window, maxResults int64, logger *slog.Logger) *Orchestrator {
	if window.PastMonths <= 0 || window.FutureMonths <= 0 {
		window = DefaultWindow
	}
	return &Orchestrator{
		local:      local,
		provider:   provider,
		state:      state,
		loc:        loc,
		window:     window,
		maxResults: maxResults,
		log:        logger,
	}
}

// runState carries everything one run accumulates. Counters and the
// conflicted set are shared between the two passes so a conflict detected in
// the remote→local pass suppresses duplicate reporting in the local→remote
// pass.
type runState struct {
	userID     string
	prefs      *store.Preferences
	localList  []*model.LocalEvent
	remoteList []*model.ExternalEvent
	byLocal    map[string]*store.Mapping
	byExternal map[string]*store.Mapping
	remoteByID map[string]*model.ExternalEvent
	conflicted map[string]bool // mapping IDs flagged as conflicts this run
	touched    map[string]bool // mapping IDs counted in the remote→local pass

	processed, created, updated, deleted, conflicts int
	errs                                            []string
}

func (r *runState) counters() store.SyncCounters {
	return store.SyncCounters{
		Processed: r.processed,
		Created:   r.created,
		Updated:   r.updated,
		Deleted:   r.deleted,
		Conflicts: r.conflicts,
	}
}

// recordErr accumulates a per-pair failure; the pair is skipped and retried
// on the next scheduled run.
func (r *runState) recordErr(err error) {
	r.errs = append(r.errs, err.Error())
}

// PerformFullSync executes one full run for the user: run lock, preferences
// gate, auth check, bounded fetch, the two classification passes, and the
// closing bookkeeping. A run already in progress for the same user fails
// fast with [model.ErrSyncInProgress] instead of queueing.
func (o *Orchestrator) PerformFullSync(ctx context.Context, userID string) (*SyncResult, error) {
	result := &SyncResult{}

	// The lock comes first: a rejected concurrent run must return without
	// reading or writing anything beyond the compare-and-set row itself.
	acquired, err := o.state.TryAcquireRunLock(ctx, userID)
	if err != nil {
		return result, err
	}
	if !acquired {
		result.AlreadyRunning = true
		result.Errors = append(result.Errors, "sync already in progress")
		return result, model.ErrSyncInProgress
	}
	defer func() {
		if err := o.state.ReleaseRunLock(context.WithoutCancel(ctx), userID); err != nil {
			o.log.Error("releasing run lock", "user", userID, "error", err)
		}
	}()

	prefs, err := o.state.GetPreferences(ctx, userID)
	if err != nil {
		return result, err
	}
	if !prefs.Enabled {
		// Disabled is a clean no-op, not an error.
		o.log.Info("sync disabled, skipping run", "user", userID)
		result.Success = true
		return result, nil
	}

	// An invalid credential aborts before the fetch window is consumed and
	// is never retried here; the caller must reauthorize.
	if err := o.provider.CheckAuth(ctx); err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result, fmt.Errorf("provider authorization check: %w", err)
	}

	logID, err := o.state.StartSyncLog(ctx, userID, "full_sync", prefs.Direction)
	if err != nil {
		return result, err
	}
	result.LogID = logID

	run := &runState{
		userID:     userID,
		prefs:      prefs,
		byLocal:    make(map[string]*store.Mapping),
		byExternal: make(map[string]*store.Mapping),
		remoteByID: make(map[string]*model.ExternalEvent),
		conflicted: make(map[string]bool),
		touched:    make(map[string]bool),
	}

	runErr := o.executeRun(ctx, run)

	succeeded := runErr == nil && len(run.errs) == 0
	status := model.RunCompleted
	if !succeeded {
		status = model.RunFailed
	}
	if runErr != nil {
		run.recordErr(runErr)
	}

	if err := o.state.FinishSyncLog(ctx, logID, status, run.counters(), run.errs); err != nil {
		o.log.Error("closing sync log", "log_id", logID, "error", err)
		run.recordErr(err)
		succeeded = false
	}
	if err := o.state.TouchSyncTimestamps(ctx, userID, succeeded); err != nil {
		o.log.Error("updating sync timestamps", "user", userID, "error", err)
	}

	result.Success = succeeded
	result.Processed = run.processed
	result.Created = run.created
	result.Updated = run.updated
	result.Deleted = run.deleted
	result.Conflicts = run.conflicts
	result.Errors = run.errs

	o.log.Info("sync run finished",
		"user", userID,
		"status", status,
		"processed", run.processed,
		"created", run.created,
		"updated", run.updated,
		"deleted", run.deleted,
		"conflicts", run.conflicts,
		"errors", len(run.errs),
	)

	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// executeRun fetches both sides and runs the two passes. It returns an error
// only for fatal failures (fetch or persistence); per-pair provider failures
// are accumulated in run.errs instead.
func (o *Orchestrator) executeRun(ctx context.Context, run *runState) error {
	now := time.Now().In(o.loc)
	timeMin := now.AddDate(0, -o.window.PastMonths, 0)
	timeMax := now.AddDate(0, o.window.FutureMonths, 0)

	localEvents, err := o.local.ListLocalEvents(ctx, run.userID,
		timeMin.Format(model.DateLayout), timeMax.Format(model.DateLayout))
	if err != nil {
		return fmt.Errorf("fetching local events: %w", err)
	}
	run.localList = localEvents

	remoteEvents, err := o.provider.ListEvents(ctx, timeMin, timeMax, o.maxResults)
	if err != nil {
		return fmt.Errorf("fetching remote events: %w", err)
	}
	run.remoteList = remoteEvents
	for _, ext := range remoteEvents {
		run.remoteByID[ext.ID] = ext
	}

	mappings, err := o.state.ListMappings(ctx, run.userID)
	if err != nil {
		return fmt.Errorf("loading mappings: %w", err)
	}
	for _, m := range mappings {
		if m.LocalEventID != "" {
			run.byLocal[m.LocalEventID] = m
		}
		run.byExternal[m.ExternalEventID] = m
	}

	// The remote→local pass completes in full before the local→remote pass
	// begins, so conflicts flagged here are visible to the skip check below.
	if run.prefs.Direction.IncludesRemoteToLocal() {
		if err := o.remoteToLocalPass(ctx, run); err != nil {
			return err
		}
	}
	if run.prefs.Direction.IncludesLocalToRemote() {
		if err := o.localToRemotePass(ctx, run); err != nil {
			return err
		}
		if err := o.scanLocalDeletions(ctx, run, mappings); err != nil {
			return err
		}
	}
	return nil
}

// remoteToLocalPass classifies every fetched remote event against the
// mapping store and applies creates, overwrites, and conflict records.
func (o *Orchestrator) remoteToLocalPass(ctx context.Context, run *runState) error {
	for _, ext := range run.remoteList {
		run.processed++

		m := run.byExternal[ext.ID]
		if m == nil || m.LocalEventID == "" {
			if err := o.materializeLocal(ctx, run, m, ext); err != nil {
				return err
			}
			continue
		}
		run.touched[m.ID] = true

		extFP := model.FingerprintExternal(ext)
		if extFP == m.ExternalFingerprint {
			// Unchanged remote, the common case. No store round trip.
			continue
		}

		localEvent, err := o.local.GetLocalEvent(ctx, m.LocalEventID)
		if err != nil {
			return fmt.Errorf("fetching local event %s: %w", m.LocalEventID, err)
		}
		if localEvent == nil {
			// Local side deleted while the remote changed: surface for
			// manual resolution, never guess an auto-delete policy.
			if err := o.recordConflict(ctx, run, m, model.ConflictDeletion, nil, ext); err != nil {
				return err
			}
			continue
		}

		localFP := model.FingerprintLocal(localEvent, o.loc)
		if localFP != m.LocalFingerprint {
			// Both sides changed since the last synced fingerprints.
			if run.prefs.AutoResolve {
				if err := o.resolveLastWriterWins(ctx, run, m, localEvent, ext); err != nil {
					return err
				}
			} else if err := o.recordConflict(ctx, run, m, model.ConflictModification, localEvent, ext); err != nil {
				return err
			}
			continue
		}

		// Only the remote changed: overwrite local with the translated data.
		draft := translate.ToLocal(ext, run.userID, o.loc)
		updated, err := o.local.UpdateLocalEvent(ctx, m.LocalEventID, draft)
		if err != nil {
			return fmt.Errorf("overwriting local event %s: %w", m.LocalEventID, err)
		}
		m.LocalFingerprint = model.FingerprintLocal(updated, o.loc)
		m.ExternalFingerprint = extFP
		m.Status = model.SyncStatusSynced
		m.LastError = ""
		if err := o.state.UpsertMapping(ctx, m); err != nil {
			return err
		}
		run.updated++
	}
	return nil
}

// localToRemotePass mirrors the remote→local pass with the roles reversed.
// Pairs already flagged as conflicts in the first pass are skipped so the
// same divergence is never reported twice.
func (o *Orchestrator) localToRemotePass(ctx context.Context, run *runState) error {
	for _, ev := range run.localList {
		m := run.byLocal[ev.ID]
		if m != nil && run.conflicted[m.ID] {
			continue
		}

		if m == nil {
			run.processed++
			if err := o.pushNewLocal(ctx, run, ev); err != nil {
				return err
			}
			continue
		}
		if !run.touched[m.ID] {
			run.processed++
		}

		localFP := model.FingerprintLocal(ev, o.loc)
		if localFP == m.LocalFingerprint {
			continue
		}

		ext := run.remoteByID[m.ExternalEventID]
		if ext == nil {
			// The remote counterpart is gone from the window while the
			// local side changed: treat the disappearance as a conflict.
			if err := o.recordConflict(ctx, run, m, model.ConflictDeletion, ev, nil); err != nil {
				return err
			}
			continue
		}

		extFP := model.FingerprintExternal(ext)
		if extFP != m.ExternalFingerprint {
			// Both changed. Reachable only when the remote→local pass did
			// not run for this direction.
			if run.prefs.AutoResolve {
				if err := o.resolveLastWriterWins(ctx, run, m, ev, ext); err != nil {
					return err
				}
			} else if err := o.recordConflict(ctx, run, m, model.ConflictModification, ev, ext); err != nil {
				return err
			}
			continue
		}

		// Only the local side changed: push it out.
		draft := o.translateOut(ev)
		updatedExt, err := o.provider.UpdateEvent(ctx, m.ExternalEventID, draft)
		if err != nil {
			run.recordErr(fmt.Errorf("updating remote event %s: %w", m.ExternalEventID, err))
			continue
		}
		m.LocalFingerprint = localFP
		m.ExternalFingerprint = model.FingerprintExternal(updatedExt)
		m.Status = model.SyncStatusSynced
		m.LastError = ""
		if err := o.state.UpsertMapping(ctx, m); err != nil {
			return err
		}
		run.updated++
	}
	return nil
}

// scanLocalDeletions finds mappings whose local event vanished while the
// remote copy is still present and unflagged, and raises deletion conflicts
// for them. Absence from the fetch window alone is not proof of deletion;
// the per-id lookup is.
func (o *Orchestrator) scanLocalDeletions(ctx context.Context, run *runState, mappings []*store.Mapping) error {
	localSeen := make(map[string]bool, len(run.localList))
	for _, ev := range run.localList {
		localSeen[ev.ID] = true
	}

	for _, m := range mappings {
		if m.Status != model.SyncStatusSynced || m.LocalEventID == "" {
			continue
		}
		if localSeen[m.LocalEventID] || run.conflicted[m.ID] {
			continue
		}
		ext := run.remoteByID[m.ExternalEventID]
		if ext == nil {
			continue
		}

		ev, err := o.local.GetLocalEvent(ctx, m.LocalEventID)
		if err != nil {
			return fmt.Errorf("checking local event %s: %w", m.LocalEventID, err)
		}
		if ev != nil {
			// Still exists, just outside the window.
			continue
		}
		run.processed++
		if err := o.recordConflict(ctx, run, m, model.ConflictDeletion, nil, ext); err != nil {
			return err
		}
	}
	return nil
}

// materializeLocal inserts a local copy of a remote event with no live
// counterpart and writes a synced mapping carrying both fresh fingerprints.
// m is non-nil when a pending mapping row already existed for the remote id.
func (o *Orchestrator) materializeLocal(ctx context.Context, run *runState, m *store.Mapping, ext *model.ExternalEvent) error {
	draft := translate.ToLocal(ext, run.userID, o.loc)
	inserted, err := o.local.InsertLocalEvent(ctx, draft)
	if err != nil {
		return fmt.Errorf("materializing remote event %s locally: %w", ext.ID, err)
	}

	if m == nil {
		m = &store.Mapping{UserID: run.userID, ExternalEventID: ext.ID}
	}
	m.LocalEventID = inserted.ID
	m.LocalFingerprint = model.FingerprintLocal(inserted, o.loc)
	m.ExternalFingerprint = model.FingerprintExternal(ext)
	m.Status = model.SyncStatusSynced
	m.LastError = ""
	if err := o.state.UpsertMapping(ctx, m); err != nil {
		return err
	}
	run.touched[m.ID] = true
	run.created++
	return nil
}

// pushNewLocal creates the remote copy of an unmapped local event. The
// provider assigns the external id; the engine never invents one.
func (o *Orchestrator) pushNewLocal(ctx context.Context, run *runState, ev *model.LocalEvent) error {
	draft := o.translateOut(ev)
	created, err := o.provider.InsertEvent(ctx, draft)
	if err != nil {
		run.recordErr(fmt.Errorf("creating remote event for %q: %w", ev.Title, err))
		return nil
	}

	m := &store.Mapping{
		UserID:              run.userID,
		LocalEventID:        ev.ID,
		ExternalEventID:     created.ID,
		LocalFingerprint:    model.FingerprintLocal(ev, o.loc),
		ExternalFingerprint: model.FingerprintExternal(created),
		Status:              model.SyncStatusSynced,
	}
	if err := o.state.UpsertMapping(ctx, m); err != nil {
		return err
	}
	run.created++
	return nil
}

// recordConflict writes a pending conflict with snapshots of whichever sides
// still exist, and flags the pair so the rest of the run leaves it alone. A
// pair with an unresolved conflict from an earlier run is flagged but not
// re-reported.
func (o *Orchestrator) recordConflict(ctx context.Context, run *runState, m *store.Mapping, ctype model.ConflictType, localEv *model.LocalEvent, ext *model.ExternalEvent) error {
	pending, err := o.state.HasPendingConflict(ctx, run.userID, m.ExternalEventID)
	if err != nil {
		return err
	}
	run.conflicted[m.ID] = true
	if pending {
		return nil
	}

	c := &store.Conflict{
		UserID:          run.userID,
		LocalEventID:    m.LocalEventID,
		ExternalEventID: m.ExternalEventID,
		Type:            ctype,
	}
	if localEv != nil {
		c.LocalData = marshalSnapshot(localEv)
		c.LocalModifiedAt = localEv.UpdatedAt
	}
	if ext != nil {
		c.ExternalData = marshalSnapshot(ext)
		c.ExternalModifiedAt = ext.Updated
	}

	if err := o.state.CreateConflict(ctx, c); err != nil {
		return err
	}
	run.conflicts++
	o.log.Info("conflict detected",
		"user", run.userID,
		"type", ctype,
		"local_event", m.LocalEventID,
		"external_event", m.ExternalEventID,
	)
	return nil
}

// resolveLastWriterWins applies the optional auto-resolve policy to a pair
// that changed on both sides: the side with the newer modification timestamp
// overwrites the other. Equal timestamps favour the local side. Deletions
// never take this path: with one side gone there is nothing to compare.
func (o *Orchestrator) resolveLastWriterWins(ctx context.Context, run *runState, m *store.Mapping, localEv *model.LocalEvent, ext *model.ExternalEvent) error {
	run.conflicts++
	run.conflicted[m.ID] = true

	if !localEv.UpdatedAt.Before(ext.Updated) {
		// Local wins: push it out.
		updatedExt, err := o.provider.UpdateEvent(ctx, m.ExternalEventID, o.translateOut(localEv))
		if err != nil {
			run.recordErr(fmt.Errorf("auto-resolving %s to local version: %w", m.ExternalEventID, err))
			return nil
		}
		m.LocalFingerprint = model.FingerprintLocal(localEv, o.loc)
		m.ExternalFingerprint = model.FingerprintExternal(updatedExt)
	} else {
		draft := translate.ToLocal(ext, run.userID, o.loc)
		updatedLocal, err := o.local.UpdateLocalEvent(ctx, m.LocalEventID, draft)
		if err != nil {
			return fmt.Errorf("auto-resolving local event %s to remote version: %w", m.LocalEventID, err)
		}
		m.LocalFingerprint = model.FingerprintLocal(updatedLocal, o.loc)
		m.ExternalFingerprint = model.FingerprintExternal(ext)
	}

	m.Status = model.SyncStatusSynced
	m.LastError = ""
	if err := o.state.UpsertMapping(ctx, m); err != nil {
		return err
	}
	run.updated++
	return nil
}

// translateOut converts a local event to a provider draft, logging a
// low-severity diagnostic when malformed date/time data forced the
// translation to degrade to all-day.
func (o *Orchestrator) translateOut(ev *model.LocalEvent) *model.ExternalEvent {
	draft := translate.ToExternal(ev, o.loc)
	if ev.StartTime != "" && draft.Start.DateTime.IsZero() {
		o.log.Debug("event degraded to all-day during translation",
			"event", ev.ID, "date", ev.Date, "start_time", ev.StartTime)
	}
	return draft
}

func marshalSnapshot(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
