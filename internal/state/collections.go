package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/njoerd114/notionrelay/internal/model"
)

const collectionColumns = `owner_id, collection_id, name, enabled, status, last_synced_at, pages_synced`

// ListCollections returns every database tracked for owner, ordered by name.
func (s *Store) ListCollections(ctx context.Context, ownerID int64) ([]*model.Collection, error) {
	q := `SELECT ` + collectionColumns + ` FROM collections WHERE owner_id = ? ORDER BY name, collection_id`
	rows, err := s.db.QueryContext(ctx, s.q(q), ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing collections for owner %d: %w", ownerID, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []*model.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// GetCollection returns one tracked database, or (nil, nil) if untracked.
func (s *Store) GetCollection(ctx context.Context, ownerID int64, collectionID string) (*model.Collection, error) {
	q := `SELECT ` + collectionColumns + ` FROM collections WHERE owner_id = ? AND collection_id = ?`
	return scanCollection(s.db.QueryRowContext(ctx, s.q(q), ownerID, collectionID))
}

// FindCollection looks a database up regardless of owner. Webhook routing
// uses it before it knows which workspace an event belongs to.
func (s *Store) FindCollection(ctx context.Context, collectionID string) (*model.Collection, error) {
	q := `SELECT ` + collectionColumns + ` FROM collections WHERE collection_id = ? ORDER BY owner_id LIMIT 1`
	return scanCollection(s.db.QueryRowContext(ctx, s.q(q), collectionID))
}

// UpsertCollection starts tracking a database or refreshes its name.
// Status, enabled flag and counters of an existing row are kept.
func (s *Store) UpsertCollection(ctx context.Context, ownerID int64, collectionID, name string) error {
	const q = `
		INSERT INTO collections (owner_id, collection_id, name)
		VALUES (?, ?, ?)
		ON CONFLICT (owner_id, collection_id) DO UPDATE SET
		    name = excluded.name`
	if _, err := s.db.ExecContext(ctx, s.q(q), ownerID, collectionID, name); err != nil {
		return fmt.Errorf("upserting collection %s: %w", collectionID, err)
	}
	return nil
}

// SetCollectionEnabled toggles webhook-driven sync for a database. It
// returns false when the database is not tracked.
func (s *Store) SetCollectionEnabled(ctx context.Context, ownerID int64, collectionID string, enabled bool) (bool, error) {
	const q = `UPDATE collections SET enabled = ? WHERE owner_id = ? AND collection_id = ?`
	res, err := s.db.ExecContext(ctx, s.q(q), enabled, ownerID, collectionID)
	if err != nil {
		return false, fmt.Errorf("setting enabled on collection %s: %w", collectionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("setting enabled on collection %s: %w", collectionID, err)
	}
	return n > 0, nil
}

// SetCollectionStatus records a database's sync status. When pagesSynced is
// non-nil the counter is replaced and last_synced_at is stamped as well.
// The row is created if it does not exist yet.
func (s *Store) SetCollectionStatus(ctx context.Context, ownerID int64, collectionID string, status model.CollectionStatus, pagesSynced *int) error {
	if !status.Valid() {
		return fmt.Errorf("invalid collection status %q", status)
	}

	var err error
	if pagesSynced == nil {
		const q = `
			INSERT INTO collections (owner_id, collection_id, status)
			VALUES (?, ?, ?)
			ON CONFLICT (owner_id, collection_id) DO UPDATE SET
			    status = excluded.status`
		_, err = s.db.ExecContext(ctx, s.q(q), ownerID, collectionID, string(status))
	} else {
		const q = `
			INSERT INTO collections (owner_id, collection_id, status, pages_synced, last_synced_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (owner_id, collection_id) DO UPDATE SET
			    status         = excluded.status,
			    pages_synced   = excluded.pages_synced,
			    last_synced_at = excluded.last_synced_at`
		_, err = s.db.ExecContext(ctx, s.q(q), ownerID, collectionID, string(status), *pagesSynced, formatTime(time.Now()))
	}
	if err != nil {
		return fmt.Errorf("setting status %s on collection %s: %w", status, collectionID, err)
	}
	return nil
}

// BeginSync marks a database as syncing unless a backfill already holds it.
// It reports whether the caller acquired the database. Creation and the
// status flip happen in one statement, so two racing callers cannot both
// succeed.
func (s *Store) BeginSync(ctx context.Context, ownerID int64, collectionID string) (bool, error) {
	const q = `
		INSERT INTO collections (owner_id, collection_id, status)
		VALUES (?, ?, 'syncing')
		ON CONFLICT (owner_id, collection_id) DO UPDATE SET
		    status = 'syncing'
		WHERE collections.status <> 'syncing'`
	res, err := s.db.ExecContext(ctx, s.q(q), ownerID, collectionID)
	if err != nil {
		return false, fmt.Errorf("beginning sync of collection %s: %w", collectionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("beginning sync of collection %s: %w", collectionID, err)
	}
	return n > 0, nil
}

// ResetInterrupted marks every database left in syncing by a previous
// process as error. Call it once at startup, before any backfill runs.
func (s *Store) ResetInterrupted(ctx context.Context) (int64, error) {
	const q = `UPDATE collections SET status = 'error' WHERE status = 'syncing'`
	res, err := s.db.ExecContext(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("resetting interrupted syncs: %w", err)
	}
	return res.RowsAffected()
}

func scanCollection(s scanner) (*model.Collection, error) {
	var c model.Collection
	var status, synced string
	err := s.Scan(&c.OwnerID, &c.ID, &c.Name, &c.Enabled, &status, &synced, &c.PagesSynced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning collection row: %w", err)
	}
	c.Status = model.CollectionStatus(status)
	c.LastSyncedAt, _ = parseTime(synced)
	return &c, nil
}
