package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/calrelay/calrelay/internal/model"
	"github.com/calrelay/calrelay/internal/store"
)

const testUser = "user-1"

// harness wires an Orchestrator to a real sqlite store and a mock provider.
type harness struct {
	orch     *Orchestrator
	store    *store.Store
	provider *mockProvider
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	p := newMockProvider()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := NewOrchestrator(st, p, st, time.UTC, DefaultWindow, 2500, logger)
	return &harness{orch: orch, store: st, provider: p}
}

// soonDate is a date comfortably inside the default sync window.
func soonDate() string {
	return time.Now().UTC().AddDate(0, 0, 7).Format(model.DateLayout)
}

func (h *harness) seedLocal(t *testing.T, title string) *model.LocalEvent {
	t.Helper()
	ev, err := h.store.InsertLocalEvent(context.Background(), &model.LocalEvent{
		UserID:    testUser,
		Title:     title,
		Date:      soonDate(),
		StartTime: "14:00",
		EndTime:   "15:00",
	})
	if err != nil {
		t.Fatalf("seeding local event: %v", err)
	}
	return ev
}

func (h *harness) seedRemote(t *testing.T, summary string) string {
	t.Helper()
	start, _ := time.Parse(model.DateLayout, soonDate())
	return h.provider.add(&model.ExternalEvent{
		Summary: summary,
		Start:   model.EventTime{DateTime: start.Add(10 * time.Hour)},
		End:     model.EventTime{DateTime: start.Add(11 * time.Hour)},
	})
}

// seedSyncedPair runs a full sync over one local event and returns the pair.
func (h *harness) seedSyncedPair(t *testing.T, title string) (*model.LocalEvent, *store.Mapping) {
	t.Helper()
	ev := h.seedLocal(t, title)
	res, err := h.orch.PerformFullSync(context.Background(), testUser)
	if err != nil || !res.Success || res.Created != 1 {
		t.Fatalf("seeding synced pair: res=%+v err=%v", res, err)
	}
	m, err := h.store.GetMappingByLocalID(context.Background(), testUser, ev.ID)
	if err != nil || m == nil {
		t.Fatalf("mapping after seed: %v %v", m, err)
	}
	return ev, m
}

func (h *harness) pendingConflicts(t *testing.T) []*store.Conflict {
	t.Helper()
	conflicts, err := h.store.ListPendingConflicts(context.Background(), testUser)
	if err != nil {
		t.Fatalf("listing conflicts: %v", err)
	}
	return conflicts
}

func TestFullSyncPushesNewLocalEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.seedLocal(t, "Dentist appointment")

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil {
		t.Fatalf("PerformFullSync: %v", err)
	}
	if !res.Success || res.Created != 1 || res.Processed != 1 || res.Conflicts != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	if h.provider.count() != 1 {
		t.Fatalf("provider has %d events, want 1", h.provider.count())
	}
	m, err := h.store.GetMappingByLocalID(ctx, testUser, ev.ID)
	if err != nil || m == nil {
		t.Fatalf("mapping missing: %v %v", m, err)
	}
	if m.ExternalEventID == "" {
		t.Fatal("mapping has empty external event id")
	}
	if m.Status != model.SyncStatusSynced {
		t.Fatalf("mapping status = %s, want synced", m.Status)
	}
	if m.LocalFingerprint != m.ExternalFingerprint {
		t.Fatalf("fingerprints differ after faithful push:\n local %s\nremote %s",
			m.LocalFingerprint, m.ExternalFingerprint)
	}
	if got := h.provider.get(m.ExternalEventID); got == nil || got.Summary != "Dentist appointment" {
		t.Fatalf("remote event = %+v", got)
	}
}

func TestFullSyncIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, m1 := h.seedSyncedPair(t, "Standup")

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !res.Success || res.Created != 0 || res.Updated != 0 || res.Conflicts != 0 {
		t.Fatalf("second run mutated state: %+v", res)
	}
	if res.Processed != 1 {
		t.Fatalf("processed = %d, want 1", res.Processed)
	}

	m2, _ := h.store.GetMappingByExternalID(ctx, testUser, m1.ExternalEventID)
	if m2.LocalFingerprint != m1.LocalFingerprint || m2.ExternalFingerprint != m1.ExternalFingerprint {
		t.Fatal("fingerprints changed on a no-op run")
	}
}

func TestFullSyncMaterializesNewRemoteEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	extID := h.seedRemote(t, "All hands")

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil || !res.Success {
		t.Fatalf("PerformFullSync: res=%+v err=%v", res, err)
	}
	if res.Created != 1 || res.Processed != 1 {
		t.Fatalf("unexpected counters: %+v", res)
	}

	m, _ := h.store.GetMappingByExternalID(ctx, testUser, extID)
	if m == nil || m.LocalEventID == "" || m.Status != model.SyncStatusSynced {
		t.Fatalf("mapping = %+v", m)
	}
	ev, _ := h.store.GetLocalEvent(ctx, m.LocalEventID)
	if ev == nil || ev.Title != "All hands" {
		t.Fatalf("local event = %+v", ev)
	}
	if ev.Origin != model.OriginExternal {
		t.Fatalf("origin = %s, want external", ev.Origin)
	}
	if m.LocalFingerprint != m.ExternalFingerprint {
		t.Fatal("fingerprints differ after materialization")
	}
}

func TestFullSyncRemoteChangeOverwritesLocal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, m := h.seedSyncedPair(t, "Planning")

	h.provider.setSummary(m.ExternalEventID, "Planning (moved)")

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil || !res.Success {
		t.Fatalf("PerformFullSync: res=%+v err=%v", res, err)
	}
	if res.Updated != 1 || res.Conflicts != 0 {
		t.Fatalf("unexpected counters: %+v", res)
	}

	got, _ := h.store.GetLocalEvent(ctx, ev.ID)
	if got.Title != "Planning (moved)" {
		t.Fatalf("local title = %q, want remote version", got.Title)
	}
	m2, _ := h.store.GetMappingByExternalID(ctx, testUser, m.ExternalEventID)
	if m2.LocalFingerprint != m2.ExternalFingerprint {
		t.Fatal("fingerprints not equalized after overwrite")
	}
}

func TestFullSyncLocalChangePushesOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, m := h.seedSyncedPair(t, "Review")

	draft := *ev
	draft.Title = "Review (rescheduled)"
	if _, err := h.store.UpdateLocalEvent(ctx, ev.ID, &draft); err != nil {
		t.Fatalf("editing local event: %v", err)
	}

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil || !res.Success {
		t.Fatalf("PerformFullSync: res=%+v err=%v", res, err)
	}
	if res.Updated != 1 || res.Conflicts != 0 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if got := h.provider.get(m.ExternalEventID); got.Summary != "Review (rescheduled)" {
		t.Fatalf("remote summary = %q, want local version", got.Summary)
	}
}

func TestFullSyncBothChangedRecordsConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, m := h.seedSyncedPair(t, "1:1")

	draft := *ev
	draft.Title = "1:1 (local edit)"
	if _, err := h.store.UpdateLocalEvent(ctx, ev.ID, &draft); err != nil {
		t.Fatalf("editing local event: %v", err)
	}
	h.provider.setSummary(m.ExternalEventID, "1:1 (remote edit)")

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil || !res.Success {
		t.Fatalf("PerformFullSync: res=%+v err=%v", res, err)
	}
	// Exactly one conflict: the second pass must not re-report the pair.
	if res.Conflicts != 1 || res.Updated != 0 {
		t.Fatalf("unexpected counters: %+v", res)
	}

	// Neither side was overwritten.
	if got, _ := h.store.GetLocalEvent(ctx, ev.ID); got.Title != "1:1 (local edit)" {
		t.Fatalf("local side mutated: %q", got.Title)
	}
	if got := h.provider.get(m.ExternalEventID); got.Summary != "1:1 (remote edit)" {
		t.Fatalf("remote side mutated: %q", got.Summary)
	}

	conflicts := h.pendingConflicts(t)
	if len(conflicts) != 1 {
		t.Fatalf("pending conflicts = %d, want 1", len(conflicts))
	}
	c := conflicts[0]
	if c.Type != model.ConflictModification || c.LocalData == "" || c.ExternalData == "" {
		t.Fatalf("conflict = %+v", c)
	}

	// A later run over the same unresolved divergence stays quiet.
	res2, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil || !res2.Success {
		t.Fatalf("repeat run: res=%+v err=%v", res2, err)
	}
	if res2.Conflicts != 0 {
		t.Fatalf("duplicate conflict reported: %+v", res2)
	}
	if got := h.pendingConflicts(t); len(got) != 1 {
		t.Fatalf("pending conflicts after repeat = %d, want 1", len(got))
	}
}

func TestFullSyncLocalDeletionRaisesConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, m := h.seedSyncedPair(t, "Gym")

	if err := h.store.DeleteLocalEvent(ctx, ev.ID); err != nil {
		t.Fatalf("deleting local event: %v", err)
	}

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil || !res.Success {
		t.Fatalf("PerformFullSync: res=%+v err=%v", res, err)
	}
	if res.Conflicts != 1 || res.Deleted != 0 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	// The remote copy must survive; deletions never propagate silently.
	if h.provider.get(m.ExternalEventID) == nil {
		t.Fatal("remote event was deleted")
	}

	conflicts := h.pendingConflicts(t)
	if len(conflicts) != 1 || conflicts[0].Type != model.ConflictDeletion {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	if conflicts[0].LocalData != "" || conflicts[0].ExternalData == "" {
		t.Fatalf("deletion conflict snapshots = %+v", conflicts[0])
	}
}

func TestFullSyncRemoteDisappearanceRaisesConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, m := h.seedSyncedPair(t, "Lunch")

	h.provider.remove(m.ExternalEventID)
	draft := *ev
	draft.Title = "Lunch (edited)"
	if _, err := h.store.UpdateLocalEvent(ctx, ev.ID, &draft); err != nil {
		t.Fatalf("editing local event: %v", err)
	}

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil || !res.Success {
		t.Fatalf("PerformFullSync: res=%+v err=%v", res, err)
	}
	if res.Conflicts != 1 {
		t.Fatalf("unexpected counters: %+v", res)
	}

	conflicts := h.pendingConflicts(t)
	if len(conflicts) != 1 || conflicts[0].Type != model.ConflictDeletion {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	if conflicts[0].LocalData == "" || conflicts[0].ExternalData != "" {
		t.Fatalf("deletion conflict snapshots = %+v", conflicts[0])
	}
	// The local edit stays untouched.
	if got, _ := h.store.GetLocalEvent(ctx, ev.ID); got.Title != "Lunch (edited)" {
		t.Fatalf("local side mutated: %q", got.Title)
	}
}

func TestFullSyncRejectsConcurrentRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLocal(t, "Blocked")

	acquired, err := h.store.TryAcquireRunLock(ctx, testUser)
	if err != nil || !acquired {
		t.Fatalf("priming run lock: %v %v", acquired, err)
	}

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if !errors.Is(err, model.ErrSyncInProgress) {
		t.Fatalf("err = %v, want ErrSyncInProgress", err)
	}
	if !res.AlreadyRunning || res.Success {
		t.Fatalf("result = %+v", res)
	}
	if h.provider.listCalls != 0 {
		t.Fatal("provider was consulted while locked")
	}
	logs, _ := h.store.ListSyncLogs(ctx, testUser, 10)
	if len(logs) != 0 {
		t.Fatalf("sync log written during rejected run: %d entries", len(logs))
	}
}

func TestFullSyncDisabledIsCleanNoOp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLocal(t, "Nothing to do")

	disabled := false
	if _, err := h.store.UpdatePreferences(ctx, testUser, store.PreferencesPatch{Enabled: &disabled}); err != nil {
		t.Fatalf("disabling sync: %v", err)
	}

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil {
		t.Fatalf("PerformFullSync: %v", err)
	}
	if !res.Success || res.Processed != 0 {
		t.Fatalf("result = %+v", res)
	}
	if h.provider.listCalls != 0 || h.provider.count() != 0 {
		t.Fatal("provider touched while disabled")
	}
	logs, _ := h.store.ListSyncLogs(ctx, testUser, 10)
	if len(logs) != 0 {
		t.Fatal("sync log written for disabled user")
	}
}

func TestFullSyncAbortsOnAuthFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLocal(t, "Unreachable")
	h.provider.authErr = model.ErrReauthRequired

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if !errors.Is(err, model.ErrReauthRequired) {
		t.Fatalf("err = %v, want ErrReauthRequired", err)
	}
	if res.Success {
		t.Fatalf("result = %+v", res)
	}
	if h.provider.listCalls != 0 {
		t.Fatal("events fetched despite failed auth check")
	}

	// The run lock must not leak.
	acquired, err := h.store.TryAcquireRunLock(ctx, testUser)
	if err != nil || !acquired {
		t.Fatalf("lock held after aborted run: %v %v", acquired, err)
	}
}

func TestFullSyncProviderFailureIsPerPair(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLocal(t, "First")
	h.seedLocal(t, "Second")
	h.provider.insertErr = errors.New("backend unavailable")

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil {
		t.Fatalf("per-pair failures must not abort the run: %v", err)
	}
	if res.Success || len(res.Errors) != 2 || res.Created != 0 {
		t.Fatalf("result = %+v", res)
	}
	logs, _ := h.store.ListSyncLogs(ctx, testUser, 10)
	if len(logs) != 1 || logs[0].Status != model.RunFailed {
		t.Fatalf("sync log = %+v", logs)
	}

	// Next run picks both pairs up again.
	h.provider.insertErr = nil
	res2, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil || !res2.Success || res2.Created != 2 {
		t.Fatalf("recovery run: res=%+v err=%v", res2, err)
	}
}

func TestFullSyncAutoResolveLastWriterWins(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, m := h.seedSyncedPair(t, "Demo")

	on := true
	if _, err := h.store.UpdatePreferences(ctx, testUser, store.PreferencesPatch{AutoResolve: &on}); err != nil {
		t.Fatalf("enabling auto-resolve: %v", err)
	}

	h.provider.setSummary(m.ExternalEventID, "Demo (remote edit)")
	h.provider.setUpdated(m.ExternalEventID, time.Now().UTC().Add(-time.Hour))
	draft := *ev
	draft.Title = "Demo (local edit)"
	if _, err := h.store.UpdateLocalEvent(ctx, ev.ID, &draft); err != nil {
		t.Fatalf("editing local event: %v", err)
	}

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil || !res.Success {
		t.Fatalf("PerformFullSync: res=%+v err=%v", res, err)
	}
	if res.Conflicts != 1 || res.Updated != 1 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if len(h.pendingConflicts(t)) != 0 {
		t.Fatal("auto-resolved conflict left pending")
	}
	// The local edit is newer, so it wins.
	if got := h.provider.get(m.ExternalEventID); got.Summary != "Demo (local edit)" {
		t.Fatalf("remote summary = %q, want local version", got.Summary)
	}
	m2, _ := h.store.GetMappingByExternalID(ctx, testUser, m.ExternalEventID)
	if m2.LocalFingerprint != m2.ExternalFingerprint {
		t.Fatal("fingerprints not equalized after auto-resolve")
	}
}

func TestFullSyncHonorsOneWayDirection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	local := h.seedLocal(t, "Outbound only")
	h.seedRemote(t, "Inbound ignored")

	dir := model.DirectionLocalToRemote
	if _, err := h.store.UpdatePreferences(ctx, testUser, store.PreferencesPatch{Direction: &dir}); err != nil {
		t.Fatalf("setting direction: %v", err)
	}

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil || !res.Success {
		t.Fatalf("PerformFullSync: res=%+v err=%v", res, err)
	}
	if res.Created != 1 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if h.provider.count() != 2 {
		t.Fatalf("provider has %d events, want 2", h.provider.count())
	}
	events, _ := h.store.ListLocalEvents(ctx, testUser, "0000-01-01", "9999-12-31")
	if len(events) != 1 || events[0].ID != local.ID {
		t.Fatalf("remote event materialized despite one-way direction: %d local events", len(events))
	}
}

func TestSyncSingleEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev := h.seedLocal(t, "Push me")

	res, err := h.orch.SyncSingleEvent(ctx, testUser, ev.ID)
	if err != nil || !res.Success || res.Created != 1 {
		t.Fatalf("first push: res=%+v err=%v", res, err)
	}
	m, _ := h.store.GetMappingByLocalID(ctx, testUser, ev.ID)
	if m == nil || m.ExternalEventID == "" {
		t.Fatalf("mapping = %+v", m)
	}

	draft := *ev
	draft.Title = "Push me again"
	if _, err := h.store.UpdateLocalEvent(ctx, ev.ID, &draft); err != nil {
		t.Fatalf("editing local event: %v", err)
	}
	res2, err := h.orch.SyncSingleEvent(ctx, testUser, ev.ID)
	if err != nil || !res2.Success || res2.Updated != 1 {
		t.Fatalf("second push: res=%+v err=%v", res2, err)
	}
	if got := h.provider.get(m.ExternalEventID); got.Summary != "Push me again" {
		t.Fatalf("remote summary = %q", got.Summary)
	}

	if _, err := h.orch.SyncSingleEvent(ctx, testUser, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("unknown event err = %v, want ErrNotFound", err)
	}
}

func TestResolveConflictKeepLocal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, m, conflictID := h.seedModificationConflict(t, "Town hall")

	if err := h.orch.ResolveConflict(ctx, testUser, conflictID, model.ResolutionKeepLocal, "alex"); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	if got := h.provider.get(m.ExternalEventID); got.Summary != "Town hall (local edit)" {
		t.Fatalf("remote summary = %q, want local version", got.Summary)
	}
	if got, _ := h.store.GetLocalEvent(ctx, ev.ID); got.Title != "Town hall (local edit)" {
		t.Fatalf("local title = %q", got.Title)
	}
	m2, _ := h.store.GetMappingByExternalID(ctx, testUser, m.ExternalEventID)
	if m2.Status != model.SyncStatusSynced || m2.LocalFingerprint != m2.ExternalFingerprint {
		t.Fatalf("mapping = %+v", m2)
	}

	// Resolution is single-shot.
	err := h.orch.ResolveConflict(ctx, testUser, conflictID, model.ResolutionKeepGoogle, "sam")
	if !errors.Is(err, model.ErrConflictResolved) {
		t.Fatalf("second resolve err = %v, want ErrConflictResolved", err)
	}
	if got := h.provider.get(m.ExternalEventID); got.Summary != "Town hall (local edit)" {
		t.Fatal("second resolve mutated the pair")
	}
}

func TestResolveConflictKeepGoogle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, m, conflictID := h.seedModificationConflict(t, "Retro")

	if err := h.orch.ResolveConflict(ctx, testUser, conflictID, model.ResolutionKeepGoogle, "alex"); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	if got, _ := h.store.GetLocalEvent(ctx, ev.ID); got.Title != "Retro (remote edit)" {
		t.Fatalf("local title = %q, want remote version", got.Title)
	}
	m2, _ := h.store.GetMappingByExternalID(ctx, testUser, m.ExternalEventID)
	if m2.Status != model.SyncStatusSynced || m2.LocalFingerprint != m2.ExternalFingerprint {
		t.Fatalf("mapping = %+v", m2)
	}
}

func TestResolveDeletionConflictKeepLocal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, m := h.seedSyncedPair(t, "Cancelled plans")

	if err := h.store.DeleteLocalEvent(ctx, ev.ID); err != nil {
		t.Fatalf("deleting local event: %v", err)
	}
	if _, err := h.orch.PerformFullSync(ctx, testUser); err != nil {
		t.Fatalf("detection run: %v", err)
	}
	conflicts := h.pendingConflicts(t)
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(conflicts))
	}

	// Keeping the (deleted) local side deletes the remote copy too.
	if err := h.orch.ResolveConflict(ctx, testUser, conflicts[0].ID, model.ResolutionKeepLocal, "alex"); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	if h.provider.get(m.ExternalEventID) != nil {
		t.Fatal("remote event survived a keep_local deletion resolution")
	}
	if m2, _ := h.store.GetMappingByExternalID(ctx, testUser, m.ExternalEventID); m2 != nil {
		t.Fatalf("mapping survived: %+v", m2)
	}
}

func TestIgnoreConflictLeavesBothSides(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ev, m, conflictID := h.seedModificationConflict(t, "Standoff")

	if err := h.orch.IgnoreConflict(ctx, testUser, conflictID, "alex"); err != nil {
		t.Fatalf("IgnoreConflict: %v", err)
	}
	if len(h.pendingConflicts(t)) != 0 {
		t.Fatal("conflict still pending after ignore")
	}
	if got, _ := h.store.GetLocalEvent(ctx, ev.ID); got.Title != "Standoff (local edit)" {
		t.Fatalf("local side mutated: %q", got.Title)
	}
	if got := h.provider.get(m.ExternalEventID); got.Summary != "Standoff (remote edit)" {
		t.Fatalf("remote side mutated: %q", got.Summary)
	}
}

// seedModificationConflict builds a synced pair, edits both sides, and runs
// a sync to produce exactly one pending modification conflict.
func (h *harness) seedModificationConflict(t *testing.T, title string) (*model.LocalEvent, *store.Mapping, string) {
	t.Helper()
	ctx := context.Background()
	ev, m := h.seedSyncedPair(t, title)

	draft := *ev
	draft.Title = title + " (local edit)"
	if _, err := h.store.UpdateLocalEvent(ctx, ev.ID, &draft); err != nil {
		t.Fatalf("editing local event: %v", err)
	}
	h.provider.setSummary(m.ExternalEventID, title+" (remote edit)")

	res, err := h.orch.PerformFullSync(ctx, testUser)
	if err != nil || res.Conflicts != 1 {
		t.Fatalf("detection run: res=%+v err=%v", res, err)
	}
	conflicts := h.pendingConflicts(t)
	if len(conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(conflicts))
	}
	return ev, m, conflicts[0].ID
}
