package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/njoerd114/notionrelay/internal/model"
	syncp "github.com/njoerd114/notionrelay/internal/sync"
)

type syncRequest struct {
	DatabaseID string `json:"database_id"`
}

type syncResponse struct {
	Success     bool              `json:"success"`
	DatabaseID  string            `json:"database_id"`
	PagesSynced int               `json:"pages_synced"`
	Errors      []model.ItemError `json:"errors,omitempty"`
}

// handleSync runs a full backfill synchronously and reports its result.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := decodeBody(w, r, &req); err != nil || req.DatabaseID == "" {
		writeError(w, http.StatusBadRequest, "database_id is required")
		return
	}

	// A backfill runs to completion once started; a client that gives up
	// does not cancel it.
	res, err := s.engine.RunBackfill(context.WithoutCancel(r.Context()), req.DatabaseID)
	switch {
	case err == nil:
	case errors.Is(err, syncp.ErrNoCredential):
		writeError(w, http.StatusUnauthorized, "No authorized user. Complete OAuth first.")
		return
	case errors.Is(err, syncp.ErrDatabaseNotFound):
		writeError(w, http.StatusNotFound, "database not found or not shared with the integration")
		return
	case errors.Is(err, syncp.ErrBackfillInProgress):
		writeError(w, http.StatusConflict, "a backfill for this database is already running")
		return
	default:
		s.log.Error("sync request failed", "database_id", req.DatabaseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Sync failed", Detail: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, syncResponse{
		Success:     true,
		DatabaseID:  req.DatabaseID,
		PagesSynced: res.PagesSynced,
		Errors:      res.Errors,
	})
}

type databaseView struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	SyncEnabled  bool       `json:"sync_enabled"`
	Status       string     `json:"status"`
	PagesSynced  int        `json:"pages_synced"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	cred, ok := s.activeCredential(w, r)
	if !ok {
		return
	}

	colls, err := s.store.ListCollections(r.Context(), cred.ID)
	if err != nil {
		s.log.Error("listing databases", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list databases")
		return
	}

	out := make([]databaseView, 0, len(colls))
	for _, c := range colls {
		v := databaseView{
			ID:          c.ID,
			Name:        c.Name,
			SyncEnabled: c.Enabled,
			Status:      string(c.Status),
			PagesSynced: c.PagesSynced,
		}
		if !c.LastSyncedAt.IsZero() {
			t := c.LastSyncedAt
			v.LastSyncedAt = &t
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]any{"databases": out})
}

type toggleRequest struct {
	SyncEnabled *bool `json:"sync_enabled"`
}

func (s *Server) handleToggleDatabase(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req toggleRequest
	if err := decodeBody(w, r, &req); err != nil || req.SyncEnabled == nil {
		writeError(w, http.StatusBadRequest, "sync_enabled must be a boolean")
		return
	}

	cred, ok := s.activeCredential(w, r)
	if !ok {
		return
	}

	found, err := s.store.SetCollectionEnabled(r.Context(), cred.ID, id, *req.SyncEnabled)
	if err != nil {
		s.log.Error("toggling database", "database_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update database")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "database is not tracked")
		return
	}

	s.log.Info("database sync toggled", "database_id", id, "sync_enabled", *req.SyncEnabled)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"database_id":  id,
		"sync_enabled": *req.SyncEnabled,
	})
}

// activeCredential writes a 401 or 500 and returns false when no usable
// credential exists.
func (s *Server) activeCredential(w http.ResponseWriter, r *http.Request) (*model.Credential, bool) {
	cred, err := s.store.GetActiveCredential(r.Context())
	if err != nil {
		s.log.Error("loading credential", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load credential")
		return nil, false
	}
	if cred == nil {
		writeError(w, http.StatusUnauthorized, "No authorized user")
		return nil, false
	}
	return cred, true
}
