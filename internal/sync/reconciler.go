package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/notionrelay/internal/fieldmap"
	"github.com/njoerd114/notionrelay/internal/model"
	"github.com/njoerd114/notionrelay/internal/supermemory"
)

// Outcome is what Handle did with an event.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeDeleted Outcome = "deleted"
	// OutcomeSkipped covers vanished records, already-absent documents and
	// unrecognised event kinds.
	OutcomeSkipped Outcome = "skipped"
)

// Reconciler applies single webhook events to the sink. Updates always
// refetch the full record, so duplicate or reordered events converge on the
// same document. Create one with [NewReconciler].
type Reconciler struct {
	sources      SourceFactory
	sink         Sink
	store        Store
	mapper       *fieldmap.Mapper
	containerTag string
	log          *slog.Logger
	now          func() time.Time
}

// NewReconciler creates a Reconciler. An empty containerTag selects
// [DefaultContainerTag].
func NewReconciler(sources SourceFactory, sink Sink, store Store, mapper *fieldmap.Mapper, containerTag string, logger *slog.Logger) *Reconciler {
	if containerTag == "" {
		containerTag = DefaultContainerTag
	}
	return &Reconciler{
		sources:      sources,
		sink:         sink,
		store:        store,
		mapper:       mapper,
		containerTag: containerTag,
		log:          logger,
		now:          time.Now,
	}
}

// handles reports whether kind is an event the reconciler acts on.
func handles(kind model.EventKind) bool {
	switch kind {
	case model.EventCreated, model.EventPropertiesUpdated, model.EventContentUpdated, model.EventDeleted:
		return true
	}
	return false
}

// Handle applies ev on behalf of cred. Missing records and documents are
// not errors; I/O failures are returned without retry.
func (r *Reconciler) Handle(ctx context.Context, cred *model.Credential, ev model.Event) (Outcome, error) {
	log := r.log.With("event", string(ev.Kind), "record_id", ev.RecordID)

	switch ev.Kind {
	case model.EventCreated:
		return r.handleCreated(ctx, log, cred, ev)
	case model.EventPropertiesUpdated, model.EventContentUpdated:
		return r.handleUpdated(ctx, log, cred, ev)
	case model.EventDeleted:
		return r.handleDeleted(ctx, log, ev)
	default:
		log.Info("ignoring unhandled event type")
		return OutcomeSkipped, nil
	}
}

func (r *Reconciler) handleCreated(ctx context.Context, log *slog.Logger, cred *model.Credential, ev model.Event) (Outcome, error) {
	doc, found, err := r.fetch(ctx, cred, ev)
	if err != nil || !found {
		return OutcomeSkipped, err
	}
	if err := r.create(ctx, log, doc); err != nil {
		return OutcomeSkipped, err
	}
	return OutcomeCreated, nil
}

func (r *Reconciler) handleUpdated(ctx context.Context, log *slog.Logger, cred *model.Credential, ev model.Event) (Outcome, error) {
	doc, found, err := r.fetch(ctx, cred, ev)
	if err != nil || !found {
		return OutcomeSkipped, err
	}

	existing, err := r.sink.FindByExternalID(ctx, ev.RecordID)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("look up document for %s: %w", ev.RecordID, err)
	}
	if existing == nil {
		log.Info("no document for updated record, creating it")
		if err := r.create(ctx, log, doc); err != nil {
			return OutcomeSkipped, err
		}
		return OutcomeCreated, nil
	}

	upd := supermemory.DocumentUpdate{Content: doc.Content, Metadata: doc.Metadata}
	if err := r.sink.UpdateDocument(ctx, existing.ID, upd); err != nil {
		return OutcomeSkipped, err
	}
	log.Info("document updated", "document_id", existing.ID)
	return OutcomeUpdated, nil
}

func (r *Reconciler) handleDeleted(ctx context.Context, log *slog.Logger, ev model.Event) (Outcome, error) {
	existing, err := r.sink.FindByExternalID(ctx, ev.RecordID)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("look up document for %s: %w", ev.RecordID, err)
	}
	if existing == nil {
		log.Info("no document for deleted record, nothing to do")
		return OutcomeSkipped, nil
	}
	if err := r.sink.DeleteDocument(ctx, existing.ID); err != nil {
		return OutcomeSkipped, err
	}
	log.Info("document deleted", "document_id", existing.ID)
	return OutcomeDeleted, nil
}

// fetch loads the current record and builds its document. found is false
// when the record no longer exists.
func (r *Reconciler) fetch(ctx context.Context, cred *model.Credential, ev model.Event) (supermemory.NewDocument, bool, error) {
	rec, err := r.sources(cred.AccessToken).GetPage(ctx, ev.RecordID)
	if err != nil {
		return supermemory.NewDocument{}, false, err
	}
	if rec == nil {
		r.log.Info("record not found, skipping", "event", string(ev.Kind), "record_id", ev.RecordID)
		return supermemory.NewDocument{}, false, nil
	}

	o := origin{
		collectionID: rec.CollectionID,
		source:       SourceWebhook,
		syncedAt:     r.now(),
	}
	if o.collectionID == "" {
		o.collectionID = ev.CollectionID
	}
	if o.collectionID != "" {
		coll, err := r.store.GetCollection(ctx, cred.ID, o.collectionID)
		if err != nil {
			r.log.Warn("failed to load collection name", "collection_id", o.collectionID, "error", err)
		} else if coll != nil {
			o.collectionName = coll.Name
		}
	}
	return buildDocument(r.mapper, rec, o, r.containerTag), true, nil
}

func (r *Reconciler) create(ctx context.Context, log *slog.Logger, doc supermemory.NewDocument) error {
	created, err := r.sink.CreateDocument(ctx, doc)
	if err != nil {
		return err
	}
	if _, err := r.sink.WaitForProcessing(ctx, created.ID); err != nil {
		return err
	}
	log.Info("document created", "document_id", created.ID)
	return nil
}
