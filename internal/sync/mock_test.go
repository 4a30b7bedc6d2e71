package sync

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/njoerd114/notionrelay/internal/model"
	"github.com/njoerd114/notionrelay/internal/notion"
	"github.com/njoerd114/notionrelay/internal/supermemory"
)

// --- Mock Notion Source -------------------------------------------------------

type mockSource struct {
	mu        sync.Mutex
	databases map[string]notion.Database
	records   map[string][]*model.Record // database id → records
	pages     map[string]*model.Record   // page id → record
	pageSize  int
	queryErr  error
	failDBs   map[string]bool // databases whose queries fail
	tokens    []string
	queries   int
}

func newMockSource() *mockSource {
	return &mockSource{
		databases: make(map[string]notion.Database),
		records:   make(map[string][]*model.Record),
		pages:     make(map[string]*model.Record),
		failDBs:   make(map[string]bool),
		pageSize:  2,
	}
}

func (m *mockSource) factory() SourceFactory {
	return func(token string) Source {
		m.mu.Lock()
		m.tokens = append(m.tokens, token)
		m.mu.Unlock()
		return m
	}
}

func (m *mockSource) addDatabase(id, name string, recs ...*model.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.databases[id] = notion.Database{ID: id, Name: name}
	for _, r := range recs {
		r.CollectionID = id
		m.records[id] = append(m.records[id], r)
		m.pages[r.ID] = r
	}
}

func (m *mockSource) GetDatabase(_ context.Context, id string) (*notion.Database, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	db, ok := m.databases[id]
	if !ok {
		return nil, nil
	}
	return &db, nil
}

// QueryDatabase serves records pageSize at a time; the cursor is the offset.
func (m *mockSource) QueryDatabase(_ context.Context, id, cursor string) (*notion.RecordPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if m.failDBs[id] {
		return nil, fmt.Errorf("query %s: upstream error", id)
	}

	start := 0
	if cursor != "" {
		_, _ = fmt.Sscanf(cursor, "%d", &start)
	}
	all := m.records[id]
	end := min(start+m.pageSize, len(all))
	page := &notion.RecordPage{Records: append([]*model.Record(nil), all[start:end]...)}
	if end < len(all) {
		page.NextCursor = fmt.Sprintf("%d", end)
	}
	return page, nil
}

func (m *mockSource) GetPage(_ context.Context, id string) (*model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pages[id], nil
}

func (m *mockSource) SearchDatabases(_ context.Context, cursor string) (*notion.DatabasePage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.databases))
	for id := range m.databases {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// One database per page to exercise pagination.
	start := 0
	if cursor != "" {
		_, _ = fmt.Sscanf(cursor, "%d", &start)
	}
	page := &notion.DatabasePage{}
	if start < len(ids) {
		page.Databases = []notion.Database{m.databases[ids[start]]}
		if start+1 < len(ids) {
			page.NextCursor = fmt.Sprintf("%d", start+1)
		}
	}
	return page, nil
}

func (m *mockSource) deletePage(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pages, id)
}

// --- Mock Supermemory Sink ----------------------------------------------------

type mockSink struct {
	mu      sync.Mutex
	docs    map[string]*model.Document // document id → doc
	nextID  int
	calls   []string
	batches [][]supermemory.NewDocument

	emptyBatch bool
	failIDs    map[string]bool // document ids that end up failed
	findErr    error
}

func newMockSink() *mockSink {
	return &mockSink{docs: make(map[string]*model.Document), failIDs: make(map[string]bool)}
}

func (m *mockSink) add(doc supermemory.NewDocument) *model.Document {
	m.nextID++
	d := &model.Document{
		ID:           fmt.Sprintf("doc-%d", m.nextID),
		CustomID:     doc.CustomID,
		Content:      doc.Content,
		Metadata:     doc.Metadata,
		ContainerTag: doc.ContainerTag,
		Status:       "queued",
	}
	m.docs[d.ID] = d
	return d
}

func (m *mockSink) CreateDocument(_ context.Context, doc supermemory.NewDocument) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "create")
	cp := *m.add(doc)
	return &cp, nil
}

func (m *mockSink) BatchCreate(_ context.Context, docs []supermemory.NewDocument) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "batch")
	m.batches = append(m.batches, docs)
	if m.emptyBatch {
		return nil, nil
	}
	out := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, *m.add(d))
	}
	return out, nil
}

func (m *mockSink) UpdateDocument(_ context.Context, id string, upd supermemory.DocumentUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "update")
	d, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("document %q not found", id)
	}
	d.Content = upd.Content
	d.Metadata = upd.Metadata
	return nil
}

func (m *mockSink) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "delete")
	if _, ok := m.docs[id]; !ok {
		return fmt.Errorf("document %q not found", id)
	}
	delete(m.docs, id)
	return nil
}

func (m *mockSink) FindByExternalID(_ context.Context, recordID string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, d := range m.docs {
		if d.Metadata[supermemory.ExternalIDKey] == recordID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockSink) WaitForProcessing(_ context.Context, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %q not found", id)
	}
	if m.failIDs[id] {
		d.Status = model.DocumentFailed
		return d, fmt.Errorf("document %s: %w", id, supermemory.ErrProcessingFailed)
	}
	d.Status = model.DocumentDone
	cp := *d
	return &cp, nil
}

func (m *mockSink) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockSink) documents() []*model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Document, 0, len(m.docs))
	for _, d := range m.docs {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// --- Mock State Store ---------------------------------------------------------

type collKey struct {
	owner int64
	id    string
}

type mockStore struct {
	mu       sync.Mutex
	creds    []*model.Credential
	colls    map[collKey]*model.Collection
	statuses []model.CollectionStatus // every status write, in order
}

func newMockStore(creds ...*model.Credential) *mockStore {
	return &mockStore{creds: creds, colls: make(map[collKey]*model.Collection)}
}

func (m *mockStore) GetActiveCredential(context.Context) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.creds) == 0 {
		return nil, nil
	}
	return m.creds[0], nil
}

func (m *mockStore) GetCredentialByWorkspace(_ context.Context, ws string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		if c.WorkspaceID == ws {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockStore) ListCredentials(context.Context) ([]*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Credential(nil), m.creds...), nil
}

func (m *mockStore) ListCollections(_ context.Context, owner int64) ([]*model.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Collection
	for k, c := range m.colls {
		if k.owner == owner {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) GetCollection(_ context.Context, owner int64, id string) (*model.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colls[collKey{owner, id}]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *mockStore) ensure(owner int64, id string) *model.Collection {
	k := collKey{owner, id}
	c, ok := m.colls[k]
	if !ok {
		c = &model.Collection{OwnerID: owner, ID: id, Enabled: true, Status: model.StatusIdle}
		m.colls[k] = c
	}
	return c
}

func (m *mockStore) UpsertCollection(_ context.Context, owner int64, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensure(owner, id).Name = name
	return nil
}

func (m *mockStore) SetCollectionStatus(_ context.Context, owner int64, id string, status model.CollectionStatus, pages *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.ensure(owner, id)
	c.Status = status
	if pages != nil {
		c.PagesSynced = *pages
	}
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockStore) BeginSync(_ context.Context, owner int64, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.ensure(owner, id)
	if c.Status == model.StatusSyncing {
		return false, nil
	}
	c.Status = model.StatusSyncing
	m.statuses = append(m.statuses, model.StatusSyncing)
	return true, nil
}

func (m *mockStore) collection(owner int64, id string) *model.Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.colls[collKey{owner, id}]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}
