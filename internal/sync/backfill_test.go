package sync

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/njoerd114/notionrelay/internal/fieldmap"
	"github.com/njoerd114/notionrelay/internal/model"
)

var (
	testLogger = slog.Default()
	testCred   = &model.Credential{ID: 1, AccessToken: "tok-1", WorkspaceID: "ws-1", WorkspaceName: "Acme"}
)

func titled(id, title string, extra map[string]model.Field) *model.Record {
	fields := map[string]model.Field{"Name": model.TitleField{Runs: []string{title}}}
	for k, v := range extra {
		fields[k] = v
	}
	return &model.Record{ID: id, URL: "https://notion.so/" + id, Fields: fields}
}

func newTestBackfiller(src *mockSource, sink *mockSink, store *mockStore) *Backfiller {
	b := NewBackfiller(src.factory(), sink, store, fieldmap.NewMapper(testLogger), "", testLogger)
	b.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return b
}

// ---------------------------------------------------------------------------
// Three records, no other fields: every document is created and processed.
// ---------------------------------------------------------------------------

func TestBackfill_ThreeRecords(t *testing.T) {
	src := newMockSource()
	src.addDatabase("db-1", "Tasks", titled("p-a", "A", nil), titled("p-b", "B", nil), titled("p-c", "C", nil))
	sink := newMockSink()
	store := newMockStore(testCred)

	res, err := newTestBackfiller(src, sink, store).Run(context.Background(), testCred, "db-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PagesSynced != 3 {
		t.Errorf("PagesSynced = %d, want 3", res.PagesSynced)
	}
	if res.Errors == nil || len(res.Errors) != 0 {
		t.Errorf("Errors = %#v, want empty non-nil slice", res.Errors)
	}

	// Pagination: page size 2 means two queries.
	if src.queries != 2 {
		t.Errorf("QueryDatabase called %d times, want 2", src.queries)
	}
	if len(sink.batches) != 1 || len(sink.batches[0]) != 3 {
		t.Fatalf("expected one batch of 3, got %d batches", len(sink.batches))
	}

	contents := map[string]bool{}
	for _, d := range sink.documents() {
		contents[d.Content] = true
		if d.Metadata["notionPageId"] != d.CustomID {
			t.Errorf("notionPageId = %v, want custom id %q", d.Metadata["notionPageId"], d.CustomID)
		}
		if d.Metadata["source"] != "notion-sync" {
			t.Errorf("source = %v, want notion-sync", d.Metadata["source"])
		}
		if d.Metadata["notionDatabaseId"] != "db-1" || d.Metadata["notionDatabaseName"] != "Tasks" {
			t.Errorf("database metadata = %v / %v", d.Metadata["notionDatabaseId"], d.Metadata["notionDatabaseName"])
		}
		if d.Metadata["syncedAt"] != "2024-05-01T12:00:00Z" {
			t.Errorf("syncedAt = %v", d.Metadata["syncedAt"])
		}
		if _, ok := d.Metadata["Name"]; ok {
			t.Error("title property leaked into metadata")
		}
		if d.ContainerTag != DefaultContainerTag {
			t.Errorf("ContainerTag = %q, want %q", d.ContainerTag, DefaultContainerTag)
		}
	}
	for _, want := range []string{"A", "B", "C"} {
		if !contents[want] {
			t.Errorf("missing document with content %q", want)
		}
	}

	c := store.collection(1, "db-1")
	if c.Status != model.StatusIdle || c.PagesSynced != 3 || c.Name != "Tasks" {
		t.Errorf("collection = %+v, want idle/3/Tasks", c)
	}
	if src.tokens[0] != "tok-1" {
		t.Errorf("source bound to token %q, want tok-1", src.tokens[0])
	}
}

func TestBackfill_EmptyCollectionSkipsSink(t *testing.T) {
	src := newMockSource()
	src.addDatabase("db-1", "Empty")
	sink := newMockSink()
	store := newMockStore(testCred)

	res, err := newTestBackfiller(src, sink, store).Run(context.Background(), testCred, "db-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PagesSynced != 0 || len(res.Errors) != 0 {
		t.Errorf("result = %+v, want {0, []}", res)
	}
	if calls := sink.callLog(); len(calls) != 0 {
		t.Errorf("sink calls = %v, want none", calls)
	}
	if c := store.collection(1, "db-1"); c.Status != model.StatusIdle {
		t.Errorf("status = %s, want idle", c.Status)
	}
}

func TestBackfill_EmptyBatchIsFatal(t *testing.T) {
	src := newMockSource()
	src.addDatabase("db-1", "Tasks", titled("p-a", "A", nil))
	sink := newMockSink()
	sink.emptyBatch = true
	store := newMockStore(testCred)

	res, err := newTestBackfiller(src, sink, store).Run(context.Background(), testCred, "db-1")
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("err = %v, want ErrEmptyBatch", err)
	}
	if res.PagesSynced != 0 {
		t.Errorf("PagesSynced = %d, want 0", res.PagesSynced)
	}
	if c := store.collection(1, "db-1"); c.Status != model.StatusError {
		t.Errorf("status = %s, want error", c.Status)
	}
}

func TestBackfill_ProcessingFailuresCollected(t *testing.T) {
	src := newMockSource()
	src.addDatabase("db-1", "Tasks", titled("p-a", "A", nil), titled("p-b", "B", nil))
	sink := newMockSink()
	sink.failIDs["doc-2"] = true
	store := newMockStore(testCred)

	res, err := newTestBackfiller(src, sink, store).Run(context.Background(), testCred, "db-1")
	if err != nil {
		t.Fatalf("partial failure must not abort: %v", err)
	}
	if res.PagesSynced != 1 {
		t.Errorf("PagesSynced = %d, want 1", res.PagesSynced)
	}
	if len(res.Errors) != 1 || res.Errors[0].ID != "doc-2" || res.Errors[0].Error == "" {
		t.Errorf("Errors = %+v, want one entry for doc-2", res.Errors)
	}
	if c := store.collection(1, "db-1"); c.Status != model.StatusIdle || c.PagesSynced != 1 {
		t.Errorf("collection = %+v, want idle with 1 page", c)
	}
}

func TestBackfill_SourceFailureSetsError(t *testing.T) {
	src := newMockSource()
	src.addDatabase("db-1", "Tasks", titled("p-a", "A", nil))
	src.queryErr = errors.New("notion returned 502")
	sink := newMockSink()
	store := newMockStore(testCred)

	_, err := newTestBackfiller(src, sink, store).Run(context.Background(), testCred, "db-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if c := store.collection(1, "db-1"); c.Status != model.StatusError {
		t.Errorf("status = %s, want error", c.Status)
	}
	if calls := sink.callLog(); len(calls) != 0 {
		t.Errorf("sink calls = %v, want none", calls)
	}
}

func TestBackfill_MissingDatabase(t *testing.T) {
	store := newMockStore(testCred)
	_, err := newTestBackfiller(newMockSource(), newMockSink(), store).Run(context.Background(), testCred, "db-x")
	if !errors.Is(err, ErrDatabaseNotFound) {
		t.Fatalf("err = %v, want ErrDatabaseNotFound", err)
	}
	if c := store.collection(1, "db-x"); c != nil {
		t.Errorf("collection = %+v, an unseen database must not be tracked", c)
	}
}

func TestBackfill_RefusesConcurrentRun(t *testing.T) {
	src := newMockSource()
	src.addDatabase("db-1", "Tasks", titled("p-a", "A", nil))
	sink := newMockSink()
	store := newMockStore(testCred)
	if _, err := store.BeginSync(context.Background(), 1, "db-1"); err != nil {
		t.Fatal(err)
	}

	_, err := newTestBackfiller(src, sink, store).Run(context.Background(), testCred, "db-1")
	if !errors.Is(err, ErrBackfillInProgress) {
		t.Fatalf("err = %v, want ErrBackfillInProgress", err)
	}
	if c := store.collection(1, "db-1"); c.Status != model.StatusSyncing {
		t.Errorf("status = %s, the running backfill's status must be untouched", c.Status)
	}
	if len(sink.callLog()) != 0 {
		t.Error("sink must not be called")
	}
}

func TestBackfill_MapsProperties(t *testing.T) {
	yes := true
	src := newMockSource()
	src.addDatabase("db-1", "Tasks", titled("p-a", "Ship it", map[string]model.Field{
		"Tags":   model.MultiSelectField{Names: []string{"go", "sync"}},
		"Done":   model.CheckboxField{Value: &yes},
		"Button": model.UnknownField{RawType: "button"},
	}))
	sink := newMockSink()

	if _, err := newTestBackfiller(src, sink, newMockStore(testCred)).Run(context.Background(), testCred, "db-1"); err != nil {
		t.Fatal(err)
	}
	docs := sink.documents()
	if len(docs) != 1 {
		t.Fatalf("documents = %d, want 1", len(docs))
	}
	meta := docs[0].Metadata
	if meta["Tags"] != "go, sync" || meta["Done"] != true {
		t.Errorf("metadata = %v", meta)
	}
	if _, ok := meta["Button"]; ok {
		t.Error("unknown property should be omitted")
	}
}
