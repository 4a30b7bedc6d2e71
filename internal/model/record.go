package model

// Record is one Notion page inside a database.
type Record struct {
	// ID is the Notion page id. It is also the sink document's custom id.
	ID string

	URL string

	// CollectionID is the parent database id, empty for pages that do not
	// live in a database.
	CollectionID string

	Fields map[string]Field
}

// DocumentStatus is the sink's processing state for a document.
type DocumentStatus string

const (
	DocumentDone   DocumentStatus = "done"
	DocumentFailed DocumentStatus = "failed"
)

// Terminal reports whether processing has finished, successfully or not.
// Every other status (queued, extracting, chunking, ...) is pending.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentDone || s == DocumentFailed
}

// Document is the transient view of a Supermemory document.
type Document struct {
	ID           string
	CustomID     string
	Content      string
	Metadata     map[string]any
	ContainerTag string
	Status       DocumentStatus

	// Error is the sink's failure reason when Status is failed.
	Error string
}

// EventKind is the kind of change a webhook reported for a record.
type EventKind string

const (
	EventCreated           EventKind = "created"
	EventPropertiesUpdated EventKind = "properties_updated"
	EventContentUpdated    EventKind = "content_updated"
	EventDeleted           EventKind = "deleted"
)

// Event is a single change notification for one record.
type Event struct {
	// ID is the delivery id assigned by the event source, if any.
	ID string

	Kind         EventKind
	RecordID     string
	CollectionID string
	WorkspaceID  string
}
