package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/njoerd114/notionrelay/internal/model"
)

const (
	otelScope       = "notionrelay/sync"
	spanBackfill    = "sync.backfill"
	spanReconcile   = "sync.reconcile"
	spanDiscover    = "sync.discover"
	metricRuns      = "notionrelay.backfill.runs"
	metricDocuments = "notionrelay.backfill.documents"
	metricErrors    = "notionrelay.backfill.errors"
	metricEvents    = "notionrelay.webhook.events"
	metricEventErrs = "notionrelay.webhook.errors"
	metricDiscover  = "notionrelay.discovery.collections"

	// DefaultDiscoveryInterval is how often Run looks for new databases.
	DefaultDiscoveryInterval = 15 * time.Minute
)

// ErrNoCredential means no Notion workspace has been authorized yet.
var ErrNoCredential = errors.New("no authorized notion workspace")

// Engine exposes the sync operations to the HTTP server and CLI, runs
// periodic discovery, and supervises background tasks. Create one with
// [NewEngine].
type Engine struct {
	store      Store
	backfiller *Backfiller
	reconciler *Reconciler
	discoverer *Discoverer
	interval   time.Duration
	log        *slog.Logger

	tasks gosync.WaitGroup

	// OTel instruments, always non-nil (no-op when telemetry is disabled).
	tracer       trace.Tracer
	cntRuns      metric.Int64Counter
	cntDocuments metric.Int64Counter
	cntErrors    metric.Int64Counter
	cntEvents    metric.Int64Counter
	cntEventErrs metric.Int64Counter
	cntDiscover  metric.Int64Counter
}

// NewEngine wires the three engines together. Backfills started by
// discoverer are rerouted through [Engine.Backfill] so they are traced and
// counted. interval <= 0 selects [DefaultDiscoveryInterval].
func NewEngine(store Store, backfiller *Backfiller, reconciler *Reconciler, discoverer *Discoverer, interval time.Duration, logger *slog.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultDiscoveryInterval
	}
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	e := &Engine{
		store:      store,
		backfiller: backfiller,
		reconciler: reconciler,
		discoverer: discoverer,
		interval:   interval,
		log:        logger,

		tracer:       otel.Tracer(otelScope),
		cntRuns:      mustCounter(metricRuns, "Number of backfill runs started"),
		cntDocuments: mustCounter(metricDocuments, "Number of documents that finished processing during backfills"),
		cntErrors:    mustCounter(metricErrors, "Number of failed backfills and per-document errors"),
		cntEvents:    mustCounter(metricEvents, "Number of webhook events handled"),
		cntEventErrs: mustCounter(metricEventErrs, "Number of webhook events that failed"),
		cntDiscover:  mustCounter(metricDiscover, "Number of databases onboarded by discovery"),
	}
	if discoverer != nil {
		discoverer.backfill = e.Backfill
	}
	return e
}

// RunBackfill backfills collectionID for the active credential.
func (e *Engine) RunBackfill(ctx context.Context, collectionID string) (model.SyncResult, error) {
	cred, err := e.store.GetActiveCredential(ctx)
	if err != nil {
		return model.SyncResult{}, err
	}
	if cred == nil {
		return model.SyncResult{}, ErrNoCredential
	}
	return e.Backfill(ctx, cred, collectionID)
}

// Backfill backfills collectionID for cred, recording a span and metrics.
func (e *Engine) Backfill(ctx context.Context, cred *model.Credential, collectionID string) (model.SyncResult, error) {
	ctx, span := e.tracer.Start(ctx, spanBackfill, trace.WithAttributes(
		attribute.String("notion.database_id", collectionID),
		attribute.Int64("notion.owner_id", cred.ID),
	))
	defer span.End()

	e.cntRuns.Add(ctx, 1)
	res, err := e.backfiller.Run(ctx, cred, collectionID)
	if err != nil {
		e.cntErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	e.cntDocuments.Add(ctx, int64(res.PagesSynced))
	if n := len(res.Errors); n > 0 {
		e.cntErrors.Add(ctx, int64(n))
	}
	span.SetAttributes(
		attribute.Int("sync.pages_synced", res.PagesSynced),
		attribute.Int("sync.errors", len(res.Errors)),
	)
	return res, nil
}

// DiscoverAndSyncNew backfills databases newly visible to cred.
func (e *Engine) DiscoverAndSyncNew(ctx context.Context, cred *model.Credential) ([]model.SyncedCollection, error) {
	ctx, span := e.tracer.Start(ctx, spanDiscover, trace.WithAttributes(
		attribute.Int64("notion.owner_id", cred.ID),
	))
	defer span.End()

	synced, err := e.discoverer.DiscoverNew(ctx, cred)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	e.cntDiscover.Add(ctx, int64(len(synced)))
	span.SetAttributes(attribute.Int("sync.collections", len(synced)))
	return synced, nil
}

// HandleWebhookEvent applies ev using the credential of the workspace it
// came from, falling back to the active credential when the workspace is
// unknown or unspecified.
func (e *Engine) HandleWebhookEvent(ctx context.Context, ev model.Event) error {
	ctx, span := e.tracer.Start(ctx, spanReconcile, trace.WithAttributes(
		attribute.String("notion.event", string(ev.Kind)),
		attribute.String("notion.page_id", ev.RecordID),
	))
	defer span.End()

	e.cntEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", string(ev.Kind))))

	if !handles(ev.Kind) {
		e.log.Info("ignoring unhandled event type", "event", string(ev.Kind), "record_id", ev.RecordID)
		span.SetAttributes(attribute.String("sync.outcome", string(OutcomeSkipped)))
		return nil
	}

	cred, err := e.credentialFor(ctx, ev.WorkspaceID)
	if err == nil {
		var outcome Outcome
		outcome, err = e.reconciler.Handle(ctx, cred, ev)
		span.SetAttributes(attribute.String("sync.outcome", string(outcome)))
	}
	if err != nil {
		e.cntEventErrs.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("handle %s for %s: %w", ev.Kind, ev.RecordID, err)
	}
	return nil
}

func (e *Engine) credentialFor(ctx context.Context, workspaceID string) (*model.Credential, error) {
	if workspaceID != "" {
		cred, err := e.store.GetCredentialByWorkspace(ctx, workspaceID)
		if err != nil {
			return nil, err
		}
		if cred != nil {
			return cred, nil
		}
		e.log.Warn("webhook from unknown workspace, using active credential", "workspace_id", workspaceID)
	}
	cred, err := e.store.GetActiveCredential(ctx)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrNoCredential
	}
	return cred, nil
}

// Go runs fn in a supervised background task. The task is detached from
// ctx's cancellation but keeps its values; its error or panic is logged and
// never reaches the caller. [Engine.Wait] blocks until all tasks finish.
func (e *Engine) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	runID := uuid.NewString()
	ctx = context.WithoutCancel(ctx)
	log := e.log.With("task", name, "run_id", runID)

	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("background task panicked", "panic", r, "stack", string(debug.Stack()))
			}
		}()

		start := time.Now()
		if err := fn(ctx); err != nil {
			log.Error("background task failed", "error", err, "duration", time.Since(start))
			return
		}
		log.Debug("background task finished", "duration", time.Since(start))
	}()
}

// Wait blocks until every task started with Go has returned.
func (e *Engine) Wait() {
	e.tasks.Wait()
}

// DiscoverAll runs one discovery pass over every authorized workspace.
// Failures are logged per workspace.
func (e *Engine) DiscoverAll(ctx context.Context) {
	creds, err := e.store.ListCredentials(ctx)
	if err != nil {
		e.log.Error("periodic discovery: listing credentials", "error", err)
		return
	}
	if len(creds) == 0 {
		e.log.Info("periodic discovery: no authorized workspace yet, skipping")
		return
	}
	for _, cred := range creds {
		synced, err := e.DiscoverAndSyncNew(ctx, cred)
		if err != nil {
			e.log.Error("periodic discovery failed", "owner", cred.OwnerLabel(), "error", err)
			continue
		}
		if len(synced) > 0 {
			e.log.Info("periodic discovery synced new databases", "owner", cred.OwnerLabel(), "count", len(synced))
		}
	}
}

// Run performs discovery every interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("periodic database discovery started", "interval", e.interval)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.log.Info("sync engine shutting down")
			return ctx.Err()
		case <-ticker.C:
			e.DiscoverAll(ctx)
		}
	}
}
