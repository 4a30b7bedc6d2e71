// Package model defines shared types used across the sync engines, the
// Notion and Supermemory clients, and the state store.
package model

import "time"

// CollectionStatus is the sync health of a tracked Notion database.
type CollectionStatus string

const (
	// StatusIdle means no backfill is running and the last one succeeded.
	StatusIdle CollectionStatus = "idle"
	// StatusSyncing means exactly one backfill is in flight.
	StatusSyncing CollectionStatus = "syncing"
	// StatusError means the last backfill aborted.
	StatusError CollectionStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s CollectionStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusSyncing, StatusError:
		return true
	}
	return false
}

// Collection is a Notion database tracked for a credential.
type Collection struct {
	// OwnerID references the Credential that discovered or registered it.
	OwnerID int64

	// ID is the Notion database id (opaque, source-assigned).
	ID string

	// Name is the database title at the time of the last backfill.
	Name string

	// Enabled gates webhook-driven reconciliation for this database.
	Enabled bool

	Status       CollectionStatus
	LastSyncedAt time.Time

	// PagesSynced is the number of documents that reached "done" in the
	// last completed backfill.
	PagesSynced int
}

// Credential is an authorized Notion workspace connection.
type Credential struct {
	ID            int64
	AccessToken   string
	WorkspaceID   string
	WorkspaceName string
	CreatedAt     time.Time
}

// OwnerLabel returns a human-readable label for logs and status output.
func (c *Credential) OwnerLabel() string {
	if c.WorkspaceName != "" {
		return c.WorkspaceName
	}
	return c.WorkspaceID
}

// SyncResult is the outcome of one backfill run.
type SyncResult struct {
	PagesSynced int         `json:"pages_synced"`
	Errors      []ItemError `json:"errors"`
}

// ItemError records a per-document failure that did not abort the run.
type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// SyncedCollection is one database onboarded by a discovery pass.
type SyncedCollection struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PagesSynced int    `json:"pages_synced"`
}
