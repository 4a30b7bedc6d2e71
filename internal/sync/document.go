package sync

import (
	"time"

	"github.com/njoerd114/notionrelay/internal/fieldmap"
	"github.com/njoerd114/notionrelay/internal/model"
	"github.com/njoerd114/notionrelay/internal/supermemory"
)

// Provenance tags written to the "source" metadata key.
const (
	SourceBackfill = "notion-sync"
	SourceWebhook  = "notion-webhook"
)

// DefaultContainerTag groups every mirrored document in Supermemory.
const DefaultContainerTag = "notion-sync"

// Metadata keys the engines add on top of the mapped properties. They win
// over a property of the same name.
const (
	metaPageID       = supermemory.ExternalIDKey
	metaURL          = "notionUrl"
	metaDatabaseID   = "notionDatabaseId"
	metaDatabaseName = "notionDatabaseName"
	metaSource       = "source"
	metaSyncedAt     = "syncedAt"
)

// origin describes where a document came from.
type origin struct {
	collectionID   string
	collectionName string
	source         string
	syncedAt       time.Time
}

// buildDocument turns a record into a sink payload. The record id is both
// the custom id and the notionPageId metadata value.
func buildDocument(m *fieldmap.Mapper, rec *model.Record, o origin, containerTag string) supermemory.NewDocument {
	content, meta := m.Build(rec.Fields)

	meta[metaPageID] = rec.ID
	meta[metaURL] = rec.URL
	if o.collectionID != "" {
		meta[metaDatabaseID] = o.collectionID
	}
	if o.collectionName != "" {
		meta[metaDatabaseName] = o.collectionName
	}
	meta[metaSource] = o.source
	meta[metaSyncedAt] = o.syncedAt.UTC().Format(time.RFC3339)

	return supermemory.NewDocument{
		Content:      content,
		Metadata:     meta,
		CustomID:     rec.ID,
		ContainerTag: containerTag,
	}
}
