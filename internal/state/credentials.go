package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/njoerd114/notionrelay/internal/model"
)

const credentialColumns = `id, access_token, workspace_id, workspace_name, created_at`

// SaveCredential stores an access token for a workspace, replacing the token
// and name if the workspace was authorized before. It returns the stored
// credential with its id set.
func (s *Store) SaveCredential(ctx context.Context, accessToken, workspaceID, workspaceName string) (*model.Credential, error) {
	const q = `
		INSERT INTO credentials (access_token, workspace_id, workspace_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (workspace_id) DO UPDATE SET
		    access_token   = excluded.access_token,
		    workspace_name = excluded.workspace_name
		RETURNING ` + credentialColumns

	now := time.Now()
	row := s.db.QueryRowContext(ctx, s.q(q), accessToken, workspaceID, workspaceName, formatTime(now))
	cred, err := scanCredential(row)
	if err != nil {
		return nil, fmt.Errorf("saving credential for workspace %q: %w", workspaceID, err)
	}
	return cred, nil
}

// GetActiveCredential returns the oldest authorized credential, or (nil, nil)
// when no workspace has been connected yet.
func (s *Store) GetActiveCredential(ctx context.Context) (*model.Credential, error) {
	q := `SELECT ` + credentialColumns + ` FROM credentials ORDER BY id LIMIT 1`
	cred, err := scanCredential(s.db.QueryRowContext(ctx, q))
	if err != nil {
		return nil, fmt.Errorf("loading active credential: %w", err)
	}
	return cred, nil
}

// GetCredentialByWorkspace returns the credential for a Notion workspace,
// or (nil, nil) if that workspace is not connected.
func (s *Store) GetCredentialByWorkspace(ctx context.Context, workspaceID string) (*model.Credential, error) {
	q := `SELECT ` + credentialColumns + ` FROM credentials WHERE workspace_id = ?`
	cred, err := scanCredential(s.db.QueryRowContext(ctx, s.q(q), workspaceID))
	if err != nil {
		return nil, fmt.Errorf("loading credential for workspace %q: %w", workspaceID, err)
	}
	return cred, nil
}

// ListCredentials returns every connected workspace, oldest first.
func (s *Store) ListCredentials(ctx context.Context) ([]*model.Credential, error) {
	q := `SELECT ` + credentialColumns + ` FROM credentials ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var creds []*model.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("listing credentials: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func scanCredential(s scanner) (*model.Credential, error) {
	var c model.Credential
	var created string
	err := s.Scan(&c.ID, &c.AccessToken, &c.WorkspaceID, &c.WorkspaceName, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // intentional: "not found" sentinel
	}
	if err != nil {
		return nil, fmt.Errorf("scanning credential row: %w", err)
	}
	c.CreatedAt, _ = parseTime(created)
	return &c, nil
}
