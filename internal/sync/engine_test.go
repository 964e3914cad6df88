package sync

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestEngine(h *harness) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(h.orch, []string{testUser}, time.Minute, logger)
}

func TestEngineRunOnce(t *testing.T) {
	h := newHarness(t)
	h.seedLocal(t, "One-off")

	e := newTestEngine(h)
	res, err := e.RunOnce(context.Background(), testUser)
	if err != nil || !res.Success || res.Created != 1 {
		t.Fatalf("RunOnce: res=%+v err=%v", res, err)
	}
}

func TestEngineRunDueRespectsInterval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLocal(t, "Scheduled")
	e := newTestEngine(h)

	e.runDue(ctx)
	e.runDue(ctx) // within the user's interval, must not run again

	logs, err := h.store.ListSyncLogs(ctx, testUser, 10)
	if err != nil {
		t.Fatalf("listing sync logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("sync runs = %d, want 1", len(logs))
	}

	// Pretend the interval elapsed.
	e.lastAttempt[testUser] = time.Now().Add(-time.Hour)
	e.runDue(ctx)
	logs, _ = h.store.ListSyncLogs(ctx, testUser, 10)
	if len(logs) != 2 {
		t.Fatalf("sync runs = %d, want 2", len(logs))
	}
}
