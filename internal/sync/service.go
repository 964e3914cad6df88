package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/calrelay/calrelay/internal/model"
	"github.com/calrelay/calrelay/internal/store"
	"github.com/calrelay/calrelay/internal/translate"
)

// SyncSingleEvent pushes one local event to the provider on demand,
// overwriting whatever the remote side currently holds. It consults no
// conflict state; the caller asked for this specific event to go out.
func (o *Orchestrator) SyncSingleEvent(ctx context.Context, userID, localEventID string) (*SyncResult, error) {
	result := &SyncResult{}

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
		return result, model.ErrSyncDisabled
	}

	ev, err := o.local.GetLocalEvent(ctx, localEventID)
	if err != nil {
		return result, err
	}
	if ev == nil {
		return result, fmt.Errorf("local event %s: %w", localEventID, model.ErrNotFound)
	}
	result.Processed = 1

	draft := o.translateOut(ev)
	m, err := o.state.GetMappingByLocalID(ctx, userID, localEventID)
	if err != nil {
		return result, err
	}

	var ext *model.ExternalEvent
	if m == nil || m.ExternalEventID == "" {
		ext, err = o.provider.InsertEvent(ctx, draft)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			return result, err
		}
		result.Created = 1
	} else {
		ext, err = o.provider.UpdateEvent(ctx, m.ExternalEventID, draft)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			if markErr := o.state.MarkMappingError(ctx, m.ID, err.Error()); markErr != nil {
				o.log.Error("marking mapping after push failure", "mapping", m.ID, "error", markErr)
			}
			return result, err
		}
		result.Updated = 1
	}

	if m == nil {
		m = &store.Mapping{UserID: userID, LocalEventID: localEventID}
	}
	m.ExternalEventID = ext.ID
	m.LocalFingerprint = model.FingerprintLocal(ev, o.loc)
	m.ExternalFingerprint = model.FingerprintExternal(ext)
	m.Status = model.SyncStatusSynced
	m.LastError = ""
	if err := o.state.UpsertMapping(ctx, m); err != nil {
		return result, err
	}

	result.Success = true
	o.log.Info("single event pushed", "user", userID, "event", localEventID, "external_event", ext.ID)
	return result, nil
}

// ListPendingConflicts returns the user's open conflicts, oldest first.
func (o *Orchestrator) ListPendingConflicts(ctx context.Context, userID string) ([]*store.Conflict, error) {
	return o.state.ListPendingConflicts(ctx, userID)
}

// ResolveConflict closes a pending conflict with the given choice and
// applies it to both sides. The close is claimed first via a guarded update,
// so concurrent resolutions of the same conflict cannot both apply; the
// loser gets [model.ErrConflictResolved]. If applying fails after the claim,
// the mapping is marked errored and the error returned for the caller to
// retry through a fresh sync.
func (o *Orchestrator) ResolveConflict(ctx context.Context, userID, conflictID string, choice model.ResolutionChoice, resolverID string) error {
	if !choice.IsValid() {
		return fmt.Errorf("invalid resolution choice %q", choice)
	}

	c, err := o.state.GetConflict(ctx, conflictID)
	if err != nil {
		return err
	}
	if c == nil || c.UserID != userID {
		return fmt.Errorf("conflict %s: %w", conflictID, model.ErrNotFound)
	}

	if err := o.state.ResolveConflict(ctx, conflictID, choice, resolverID); err != nil {
		return err
	}

	if err := o.applyResolution(ctx, c, choice); err != nil {
		if m, mErr := o.state.GetMappingByExternalID(ctx, c.UserID, c.ExternalEventID); mErr == nil && m != nil {
			if markErr := o.state.MarkMappingError(ctx, m.ID, err.Error()); markErr != nil {
				o.log.Error("marking mapping after resolution failure", "mapping", m.ID, "error", markErr)
			}
		}
		return fmt.Errorf("applying resolution for conflict %s: %w", conflictID, err)
	}

	o.log.Info("conflict resolved",
		"user", userID, "conflict", conflictID, "choice", choice, "resolver", resolverID)
	return nil
}

// IgnoreConflict closes a pending conflict without touching either side.
// Both versions stay as they are until a later change reopens the pair.
func (o *Orchestrator) IgnoreConflict(ctx context.Context, userID, conflictID, resolverID string) error {
	c, err := o.state.GetConflict(ctx, conflictID)
	if err != nil {
		return err
	}
	if c == nil || c.UserID != userID {
		return fmt.Errorf("conflict %s: %w", conflictID, model.ErrNotFound)
	}
	return o.state.IgnoreConflict(ctx, conflictID, resolverID)
}

// applyResolution makes the losing side match the winning one. keep_local
// and keep_google each handle the case where their counterpart no longer
// exists, which is how deletion conflicts resolve. merge records the
// decision only; the caller reconciles the content by editing either side.
func (o *Orchestrator) applyResolution(ctx context.Context, c *store.Conflict, choice model.ResolutionChoice) error {
	if choice == model.ResolutionMerge {
		return nil
	}

	m, err := o.state.GetMappingByExternalID(ctx, c.UserID, c.ExternalEventID)
	if err != nil {
		return err
	}
	if m == nil && c.LocalEventID != "" {
		m, err = o.state.GetMappingByLocalID(ctx, c.UserID, c.LocalEventID)
		if err != nil {
			return err
		}
	}

	switch choice {
	case model.ResolutionKeepLocal:
		ev, err := o.local.GetLocalEvent(ctx, c.LocalEventID)
		if err != nil {
			return err
		}
		if ev == nil {
			// The local deletion wins: remove the remote copy too.
			if err := o.provider.DeleteEvent(ctx, c.ExternalEventID); err != nil {
				return err
			}
			if m != nil {
				return o.state.DeleteMapping(ctx, m.ID)
			}
			return nil
		}

		draft := o.translateOut(ev)
		var ext *model.ExternalEvent
		if c.ExternalData == "" {
			// The remote copy was deleted; keeping local means recreating it.
			ext, err = o.provider.InsertEvent(ctx, draft)
		} else {
			ext, err = o.provider.UpdateEvent(ctx, c.ExternalEventID, draft)
		}
		if err != nil {
			return err
		}
		return o.refreshMapping(ctx, m, c, ev, ext)

	case model.ResolutionKeepGoogle:
		if c.ExternalData == "" {
			// The remote deletion wins: remove the local copy too.
			if c.LocalEventID != "" {
				if err := o.local.DeleteLocalEvent(ctx, c.LocalEventID); err != nil {
					return err
				}
			}
			if m != nil {
				return o.state.DeleteMapping(ctx, m.ID)
			}
			return nil
		}

		var snapshot model.ExternalEvent
		if err := json.Unmarshal([]byte(c.ExternalData), &snapshot); err != nil {
			return fmt.Errorf("decoding remote snapshot: %w", err)
		}
		draft := translate.ToLocal(&snapshot, c.UserID, o.loc)

		var ev *model.LocalEvent
		if c.LocalEventID == "" {
			ev, err = o.local.InsertLocalEvent(ctx, draft)
		} else {
			ev, err = o.local.UpdateLocalEvent(ctx, c.LocalEventID, draft)
			if errors.Is(err, model.ErrNotFound) {
				ev, err = o.local.InsertLocalEvent(ctx, draft)
			}
		}
		if err != nil {
			return err
		}
		return o.refreshMapping(ctx, m, c, ev, &snapshot)
	}
	return nil
}

// refreshMapping re-synchronizes the mapping fingerprints after a
// resolution brought both sides back in line.
func (o *Orchestrator) refreshMapping(ctx context.Context, m *store.Mapping, c *store.Conflict, ev *model.LocalEvent, ext *model.ExternalEvent) error {
	if m == nil {
		m = &store.Mapping{UserID: c.UserID}
	}
	m.LocalEventID = ev.ID
	m.ExternalEventID = ext.ID
	m.LocalFingerprint = model.FingerprintLocal(ev, o.loc)
	m.ExternalFingerprint = model.FingerprintExternal(ext)
	m.Status = model.SyncStatusSynced
	m.LastError = ""
	return o.state.UpsertMapping(ctx, m)
}

// GetPreferences fetches (or lazily initializes) the user's sync settings.
func (o *Orchestrator) GetPreferences(ctx context.Context, userID string) (*store.Preferences, error) {
	return o.state.GetPreferences(ctx, userID)
}

// UpdatePreferences applies a partial settings update and returns the
// resulting full record.
func (o *Orchestrator) UpdatePreferences(ctx context.Context, userID string, patch store.PreferencesPatch) (*store.Preferences, error) {
	return o.state.UpdatePreferences(ctx, userID, patch)
}
