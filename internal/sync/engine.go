package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/calrelay/calrelay/internal/model"
)

const (
	otelScope       = "calrelay/sync"
	spanFullSync    = "sync.full_run"
	metricProcessed = "calrelay.sync.events.processed"
	metricCreated   = "calrelay.sync.events.created"
	metricUpdated   = "calrelay.sync.events.updated"
	metricDeleted   = "calrelay.sync.events.deleted"
	metricConflicts = "calrelay.sync.conflicts"
	metricErrors    = "calrelay.sync.errors"
)

// Engine runs the polling loop around the [Orchestrator] for all configured
// users. Each user syncs on their own preferred interval; the engine ticks
// at a fixed cadence and runs whoever is due. Create one with [NewEngine]
// and start it with [Engine.Run].
type Engine struct {
	orch    *Orchestrator
	userIDs []string
	tick    time.Duration
	log     *slog.Logger

	// lastAttempt is engine-local so an aborted run (bad credentials, lock
	// contention) still waits out the user's interval instead of hammering
	// the provider every tick.
	lastAttempt map[string]time.Time

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer       trace.Tracer
	cntProcessed metric.Int64Counter
	cntCreated   metric.Int64Counter
	cntUpdated   metric.Int64Counter
	cntDeleted   metric.Int64Counter
	cntConflicts metric.Int64Counter
	cntErrors    metric.Int64Counter
}

// NewEngine creates an Engine polling at the given tick for the given users.
func NewEngine(orch *Orchestrator, userIDs []string, tick time.Duration, logger *slog.Logger) *Engine {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Engine{
		orch:        orch,
		userIDs:     userIDs,
		tick:        tick,
		log:         logger,
		lastAttempt: make(map[string]time.Time, len(userIDs)),

		tracer:       tracer,
		cntProcessed: mustCounter(metricProcessed, "Number of events examined during sync runs"),
		cntCreated:   mustCounter(metricCreated, "Number of events created during sync runs"),
		cntUpdated:   mustCounter(metricUpdated, "Number of events updated during sync runs"),
		cntDeleted:   mustCounter(metricDeleted, "Number of events deleted during sync runs"),
		cntConflicts: mustCounter(metricConflicts, "Number of conflicts detected during sync runs"),
		cntErrors:    mustCounter(metricErrors, "Number of errors encountered during sync runs"),
	}
}

// syncUser runs one full sync for a user, recording a trace span and metrics.
func (e *Engine) syncUser(ctx context.Context, userID string) (*SyncResult, error) {
	ctx, span := e.tracer.Start(ctx, spanFullSync)
	defer span.End()
	span.SetAttributes(attribute.String("sync.user", userID))

	result, err := e.orch.PerformFullSync(ctx, userID)

	if result.Processed > 0 {
		e.cntProcessed.Add(ctx, int64(result.Processed))
	}
	if result.Created > 0 {
		e.cntCreated.Add(ctx, int64(result.Created))
	}
	if result.Updated > 0 {
		e.cntUpdated.Add(ctx, int64(result.Updated))
	}
	if result.Deleted > 0 {
		e.cntDeleted.Add(ctx, int64(result.Deleted))
	}
	if result.Conflicts > 0 {
		e.cntConflicts.Add(ctx, int64(result.Conflicts))
	}
	if len(result.Errors) > 0 {
		e.cntErrors.Add(ctx, int64(len(result.Errors)))
	}

	span.SetAttributes(
		attribute.Bool("sync.success", result.Success),
		attribute.Int("sync.processed", result.Processed),
		attribute.Int("sync.created", result.Created),
		attribute.Int("sync.updated", result.Updated),
		attribute.Int("sync.conflicts", result.Conflicts),
		attribute.Int("sync.errors", len(result.Errors)),
	)
	if err != nil {
		span.RecordError(err)
	}
	return result, err
}

// RunOnce syncs a single user immediately, regardless of schedule.
func (e *Engine) RunOnce(ctx context.Context, userID string) (*SyncResult, error) {
	return e.syncUser(ctx, userID)
}

// runDue syncs every user whose preferred interval has elapsed since their
// last attempt.
func (e *Engine) runDue(ctx context.Context) {
	now := time.Now()
	for _, userID := range e.userIDs {
		prefs, err := e.orch.GetPreferences(ctx, userID)
		if err != nil {
			e.log.Error("loading preferences", "user", userID, "error", err)
			continue
		}
		if !prefs.Enabled {
			continue
		}
		if last, ok := e.lastAttempt[userID]; ok && now.Sub(last) < prefs.PollInterval {
			continue
		}

		e.lastAttempt[userID] = now
		if _, err := e.syncUser(ctx, userID); err != nil {
			switch {
			case errors.Is(err, model.ErrSyncInProgress):
				e.log.Warn("sync already running, skipping", "user", userID)
			case errors.Is(err, model.ErrReauthRequired):
				e.log.Error("authorization expired, reauthorize to resume syncing", "user", userID)
			default:
				e.log.Error("sync run failed", "user", userID, "error", err)
			}
		}
	}
}

// Run starts the polling loop. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	// Run an immediate first pass.
	e.runDue(ctx)

	for {
		select {
		case <-ctx.Done():
			e.log.Info("sync engine shutting down")
			return ctx.Err()
		case <-ticker.C:
			e.runDue(ctx)
		}
	}
}
