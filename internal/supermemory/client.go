// Package supermemory is a client for the Supermemory v3 documents API. It
// creates, updates, deletes and looks up documents, and waits for the
// service's asynchronous processing to finish.
package supermemory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/njoerd114/notionrelay/internal/model"
	"github.com/njoerd114/notionrelay/internal/retry"
)

const (
	// DefaultBaseURL is the hosted Supermemory API.
	DefaultBaseURL = "https://api.supermemory.ai"

	// PollInterval is the pause between processing status checks.
	PollInterval = time.Second

	// PollAttempts bounds how many status checks WaitForProcessing makes.
	PollAttempts = 30

	// ExternalIDKey is the metadata key holding the Notion page id, used by
	// FindByExternalID.
	ExternalIDKey = "notionPageId"

	requestTimeout = 60 * time.Second
)

var (
	// ErrProcessingTimeout means a document was still pending after
	// PollAttempts status checks.
	ErrProcessingTimeout = errors.New("timed out waiting for document processing")

	// ErrProcessingFailed means the service reported the document as failed.
	ErrProcessingFailed = errors.New("document processing failed")
)

// NewDocument is the payload for creating a document.
type NewDocument struct {
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CustomID     string         `json:"customId,omitempty"`
	ContainerTag string         `json:"containerTag,omitempty"`
}

// DocumentUpdate replaces a document's content and metadata.
type DocumentUpdate struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Client is a Supermemory API client. It is safe for concurrent use.
type Client struct {
	baseURL      string
	apiKey       string
	hc           *http.Client
	logger       *slog.Logger
	pollInterval time.Duration
}

// NewClient creates a Client authenticating with apiKey.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		hc:           &http.Client{Timeout: requestTimeout},
		logger:       logger,
		pollInterval: PollInterval,
	}
}

// Ping checks connectivity and the API key by listing one document.
func (c *Client) Ping(ctx context.Context) error {
	err := retry.Do(ctx, retry.DefaultAttempts, func() error {
		err := c.do(ctx, http.MethodPost, "/v3/documents/list", map[string]any{"limit": 1}, nil)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < 500 {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("ping supermemory: %w", err)
	}
	return nil
}

// CreateDocument adds a single document. The returned Document carries the
// service-assigned id and its initial status.
func (c *Client) CreateDocument(ctx context.Context, doc NewDocument) (*model.Document, error) {
	var resp apiDocument
	if err := c.do(ctx, http.MethodPost, "/v3/documents", doc, &resp); err != nil {
		return nil, fmt.Errorf("create document %s: %w", doc.CustomID, err)
	}
	out := resp.toModel()
	c.logger.Debug("document created", "document_id", out.ID, "custom_id", doc.CustomID, "status", out.Status)
	return &out, nil
}

// BatchCreate adds many documents in one call. The service answers either
// with {"results": [...]} or with a bare array; both are accepted.
func (c *Client) BatchCreate(ctx context.Context, docs []NewDocument) ([]model.Document, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/v3/documents/batch", map[string]any{"documents": docs}, &raw); err != nil {
		return nil, fmt.Errorf("batch create %d documents: %w", len(docs), err)
	}

	results, err := decodeBatch(raw)
	if err != nil {
		return nil, fmt.Errorf("batch create %d documents: %w", len(docs), err)
	}

	out := make([]model.Document, 0, len(results))
	for _, r := range results {
		if r.ID == "" {
			continue
		}
		out = append(out, r.toModel())
	}
	c.logger.Debug("batch created", "requested", len(docs), "created", len(out))
	return out, nil
}

// GetDocument returns a document with its processing status, or (nil, nil)
// when it does not exist.
func (c *Client) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var resp apiDocument
	err := c.do(ctx, http.MethodGet, "/v3/documents/"+url.PathEscape(id), nil, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	out := resp.toModel()
	return &out, nil
}

// UpdateDocument replaces the content and metadata of document id.
func (c *Client) UpdateDocument(ctx context.Context, id string, upd DocumentUpdate) error {
	if err := c.do(ctx, http.MethodPatch, "/v3/documents/"+url.PathEscape(id), upd, nil); err != nil {
		return fmt.Errorf("update document %s: %w", id, err)
	}
	return nil
}

// DeleteDocument removes document id.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/v3/documents/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// FindByExternalID returns the document whose notionPageId metadata equals
// recordID, or (nil, nil) when there is none. Lookup failures are returned
// so callers never mistake an outage for absence.
func (c *Client) FindByExternalID(ctx context.Context, recordID string) (*model.Document, error) {
	body := map[string]any{
		"filters": map[string]any{
			"AND": []map[string]string{{
				"key":        ExternalIDKey,
				"value":      recordID,
				"filterType": "metadata",
			}},
		},
		"limit": 1,
	}

	var resp struct {
		Memories []apiDocument `json:"memories"`
	}
	if err := c.do(ctx, http.MethodPost, "/v3/documents/list", body, &resp); err != nil {
		return nil, fmt.Errorf("find document for %s: %w", recordID, err)
	}
	if len(resp.Memories) == 0 {
		return nil, nil
	}
	out := resp.Memories[0].toModel()
	return &out, nil
}

// WaitForProcessing polls document id until it is done or failed, checking
// at most PollAttempts times. A failed document yields ErrProcessingFailed;
// running out of attempts yields ErrProcessingTimeout.
func (c *Client) WaitForProcessing(ctx context.Context, id string) (*model.Document, error) {
	for attempt := range PollAttempts {
		doc, err := c.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, fmt.Errorf("wait for document %s: not found", id)
		}

		switch doc.Status {
		case model.DocumentDone:
			return doc, nil
		case model.DocumentFailed:
			if doc.Error != "" {
				return doc, fmt.Errorf("document %s: %w: %s", id, ErrProcessingFailed, doc.Error)
			}
			return doc, fmt.Errorf("document %s: %w", id, ErrProcessingFailed)
		}

		if attempt < PollAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("wait for document %s: %w", id, ctx.Err())
			case <-time.After(c.pollInterval):
			}
		}
	}
	return nil, fmt.Errorf("document %s: %w after %d checks", id, ErrProcessingTimeout, PollAttempts)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
