package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/njoerd114/notionrelay/internal/fieldmap"
	"github.com/njoerd114/notionrelay/internal/model"
	"github.com/njoerd114/notionrelay/internal/supermemory"
)

var (
	// ErrEmptyBatch means the sink accepted a batch but created nothing.
	ErrEmptyBatch = errors.New("batch create returned no documents")

	// ErrBackfillInProgress means another backfill holds the database.
	ErrBackfillInProgress = errors.New("backfill already in progress")

	// ErrDatabaseNotFound means the database does not exist or is not
	// shared with the integration.
	ErrDatabaseNotFound = errors.New("database not found or not shared with the integration")
)

// Backfiller exports every record of a database into the sink. Create one
// with [NewBackfiller].
type Backfiller struct {
	sources      SourceFactory
	sink         Sink
	store        Store
	mapper       *fieldmap.Mapper
	containerTag string
	log          *slog.Logger
	now          func() time.Time
}

// NewBackfiller creates a Backfiller. An empty containerTag selects
// [DefaultContainerTag].
func NewBackfiller(sources SourceFactory, sink Sink, store Store, mapper *fieldmap.Mapper, containerTag string, logger *slog.Logger) *Backfiller {
	if containerTag == "" {
		containerTag = DefaultContainerTag
	}
	return &Backfiller{
		sources:      sources,
		sink:         sink,
		store:        store,
		mapper:       mapper,
		containerTag: containerTag,
		log:          logger,
		now:          time.Now,
	}
}

// Run backfills collectionID for cred. Per-document processing failures are
// returned in the result; anything else marks the database as error and is
// returned. A database that is already syncing yields ErrBackfillInProgress
// and its status is left alone. A database the source cannot see yields
// ErrDatabaseNotFound and is not tracked.
func (b *Backfiller) Run(ctx context.Context, cred *model.Credential, collectionID string) (model.SyncResult, error) {
	src := b.sources(cred.AccessToken)

	// Nothing is written for a database until the source confirms it.
	db, err := src.GetDatabase(ctx, collectionID)
	if err != nil {
		return model.SyncResult{}, fmt.Errorf("backfill %s: %w", collectionID, err)
	}
	if db == nil {
		return model.SyncResult{}, fmt.Errorf("backfill %s: %w", collectionID, ErrDatabaseNotFound)
	}

	ok, err := b.store.BeginSync(ctx, cred.ID, collectionID)
	if err != nil {
		return model.SyncResult{}, fmt.Errorf("backfill %s: %w", collectionID, err)
	}
	if !ok {
		return model.SyncResult{}, fmt.Errorf("backfill %s: %w", collectionID, ErrBackfillInProgress)
	}

	result, err := b.run(ctx, src, cred, collectionID, db.Name)
	if err != nil {
		// The status write must land even if ctx is already done.
		if serr := b.store.SetCollectionStatus(context.WithoutCancel(ctx), cred.ID, collectionID, model.StatusError, nil); serr != nil {
			b.log.Error("failed to record backfill error status", "collection_id", collectionID, "error", serr)
		}
		return model.SyncResult{}, fmt.Errorf("backfill %s: %w", collectionID, err)
	}
	return result, nil
}

func (b *Backfiller) run(ctx context.Context, src Source, cred *model.Credential, collectionID, name string) (model.SyncResult, error) {
	if err := b.store.UpsertCollection(ctx, cred.ID, collectionID, name); err != nil {
		return model.SyncResult{}, err
	}

	records, err := fetchAll(ctx, src, collectionID)
	if err != nil {
		return model.SyncResult{}, err
	}
	b.log.Info("fetched database", "collection_id", collectionID, "name", name, "records", len(records))

	result := model.SyncResult{Errors: []model.ItemError{}}
	if len(records) == 0 {
		if err := b.store.SetCollectionStatus(ctx, cred.ID, collectionID, model.StatusIdle, &result.PagesSynced); err != nil {
			return model.SyncResult{}, err
		}
		return result, nil
	}

	o := origin{
		collectionID:   collectionID,
		collectionName: name,
		source:         SourceBackfill,
		syncedAt:       b.now(),
	}
	docs := make([]supermemory.NewDocument, 0, len(records))
	for _, rec := range records {
		docs = append(docs, buildDocument(b.mapper, rec, o, b.containerTag))
	}

	created, err := b.sink.BatchCreate(ctx, docs)
	if err != nil {
		return model.SyncResult{}, err
	}
	if len(created) == 0 {
		return model.SyncResult{}, ErrEmptyBatch
	}
	b.log.Info("batch created, waiting for processing", "collection_id", collectionID, "documents", len(created))

	for _, d := range created {
		if _, err := b.sink.WaitForProcessing(ctx, d.ID); err != nil {
			b.log.Warn("document did not finish processing", "collection_id", collectionID, "document_id", d.ID, "error", err)
			result.Errors = append(result.Errors, model.ItemError{ID: d.ID, Error: err.Error()})
			continue
		}
		result.PagesSynced++
	}

	if err := b.store.SetCollectionStatus(ctx, cred.ID, collectionID, model.StatusIdle, &result.PagesSynced); err != nil {
		return model.SyncResult{}, err
	}
	b.log.Info("backfill complete",
		"collection_id", collectionID,
		"pages_synced", result.PagesSynced,
		"errors", len(result.Errors),
	)
	return result, nil
}

// fetchAll pages through a database until Notion stops returning a cursor.
func fetchAll(ctx context.Context, src Source, collectionID string) ([]*model.Record, error) {
	var records []*model.Record
	cursor := ""
	for {
		page, err := src.QueryDatabase(ctx, collectionID, cursor)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
		if page.NextCursor == "" {
			return records, nil
		}
		cursor = page.NextCursor
	}
}
