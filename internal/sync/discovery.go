package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/njoerd114/notionrelay/internal/model"
	"github.com/njoerd114/notionrelay/internal/notion"
)

// BackfillFunc backfills one database for a credential. [Backfiller.Run]
// and [Engine.Backfill] both satisfy it.
type BackfillFunc func(ctx context.Context, cred *model.Credential, collectionID string) (model.SyncResult, error)

// Discoverer onboards databases that were shared with the integration
// since the last pass.
type Discoverer struct {
	sources  SourceFactory
	store    Store
	backfill BackfillFunc
	log      *slog.Logger
}

// NewDiscoverer creates a Discoverer that hands new databases to backfill.
func NewDiscoverer(sources SourceFactory, store Store, backfill BackfillFunc, logger *slog.Logger) *Discoverer {
	return &Discoverer{sources: sources, store: store, backfill: backfill, log: logger}
}

// DiscoverNew backfills every visible database not yet tracked for cred,
// one at a time. A failing database is logged and skipped. The returned
// slice lists the databases that were synced.
func (d *Discoverer) DiscoverNew(ctx context.Context, cred *model.Credential) ([]model.SyncedCollection, error) {
	visible, err := d.searchAll(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("list databases for %s: %w", cred.OwnerLabel(), err)
	}

	tracked, err := d.store.ListCollections(ctx, cred.ID)
	if err != nil {
		return nil, fmt.Errorf("list tracked databases for %s: %w", cred.OwnerLabel(), err)
	}
	known := make(map[string]struct{}, len(tracked))
	for _, c := range tracked {
		known[c.ID] = struct{}{}
	}

	var fresh []notion.Database
	for _, db := range visible {
		if _, ok := known[db.ID]; !ok {
			fresh = append(fresh, db)
		}
	}
	d.log.Info("discovery scanned workspace",
		"owner", cred.OwnerLabel(),
		"visible", len(visible),
		"new", len(fresh),
	)

	synced := []model.SyncedCollection{}
	for _, db := range fresh {
		res, err := d.backfill(ctx, cred, db.ID)
		if err != nil {
			d.log.Error("failed to sync new database", "collection_id", db.ID, "name", db.Name, "error", err)
			continue
		}
		synced = append(synced, model.SyncedCollection{ID: db.ID, Name: db.Name, PagesSynced: res.PagesSynced})
	}
	return synced, nil
}

func (d *Discoverer) searchAll(ctx context.Context, cred *model.Credential) ([]notion.Database, error) {
	src := d.sources(cred.AccessToken)
	var out []notion.Database
	cursor := ""
	for {
		page, err := src.SearchDatabases(ctx, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Databases...)
		if page.NextCursor == "" {
			return out, nil
		}
		cursor = page.NextCursor
	}
}
