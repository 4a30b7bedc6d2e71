// Package sync mirrors Notion databases into Supermemory. It contains three
// engines and the [Engine] that schedules them:
//
//   - [Backfiller] exports a whole database in one batch and waits for the
//     sink to finish processing it.
//   - [Reconciler] applies one webhook event to a single document.
//   - [Discoverer] finds newly shared databases and backfills them.
//
// Every operation receives the credential it acts for; nothing reads an
// ambient "current user".
package sync

import (
	"context"

	"github.com/njoerd114/notionrelay/internal/model"
	"github.com/njoerd114/notionrelay/internal/notion"
	"github.com/njoerd114/notionrelay/internal/supermemory"
)

// Source is read access to one Notion workspace.
// Implemented by [notion.Client].
type Source interface {
	GetDatabase(ctx context.Context, id string) (*notion.Database, error)
	QueryDatabase(ctx context.Context, id, cursor string) (*notion.RecordPage, error)
	GetPage(ctx context.Context, id string) (*model.Record, error)
	SearchDatabases(ctx context.Context, cursor string) (*notion.DatabasePage, error)
}

// SourceFactory returns a Source authenticated with an access token.
type SourceFactory func(accessToken string) Source

// Sink is the document store records are mirrored into.
// Implemented by [supermemory.Client].
type Sink interface {
	CreateDocument(ctx context.Context, doc supermemory.NewDocument) (*model.Document, error)
	BatchCreate(ctx context.Context, docs []supermemory.NewDocument) ([]model.Document, error)
	UpdateDocument(ctx context.Context, id string, upd supermemory.DocumentUpdate) error
	DeleteDocument(ctx context.Context, id string) error
	FindByExternalID(ctx context.Context, recordID string) (*model.Document, error)
	WaitForProcessing(ctx context.Context, id string) (*model.Document, error)
}

// Store tracks credentials and per-database sync status.
// Implemented by [state.Store].
type Store interface {
	GetActiveCredential(ctx context.Context) (*model.Credential, error)
	GetCredentialByWorkspace(ctx context.Context, workspaceID string) (*model.Credential, error)
	ListCredentials(ctx context.Context) ([]*model.Credential, error)
	ListCollections(ctx context.Context, ownerID int64) ([]*model.Collection, error)
	GetCollection(ctx context.Context, ownerID int64, collectionID string) (*model.Collection, error)
	UpsertCollection(ctx context.Context, ownerID int64, collectionID, name string) error
	SetCollectionStatus(ctx context.Context, ownerID int64, collectionID string, status model.CollectionStatus, pagesSynced *int) error
	BeginSync(ctx context.Context, ownerID int64, collectionID string) (bool, error)
}
