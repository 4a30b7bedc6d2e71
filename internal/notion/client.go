// Package notion is a read-only client for the Notion REST API: database
// metadata, paginated database queries, single pages and workspace search.
// It also decodes webhook deliveries. Requests are throttled client side to
// stay under Notion's average rate limit.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/njoerd114/notionrelay/internal/model"
	"github.com/njoerd114/notionrelay/internal/retry"
)

const (
	// DefaultBaseURL is the public Notion API host.
	DefaultBaseURL = "https://api.notion.com"

	// APIVersion is sent as the Notion-Version header on every request.
	APIVersion = "2022-06-28"

	// DefaultRateLimit is Notion's documented average of three requests per
	// second per integration.
	DefaultRateLimit = 3.0

	// pageSize is the maximum page size Notion accepts.
	pageSize = 100

	requestTimeout = 30 * time.Second
)

// Database is the subset of a Notion database object the engines need.
type Database struct {
	ID   string
	Name string
	URL  string
}

// RecordPage is one page of a database query.
type RecordPage struct {
	Records []*model.Record
	// NextCursor is empty when no more pages remain.
	NextCursor string
}

// DatabasePage is one page of search results.
type DatabasePage struct {
	Databases  []Database
	NextCursor string
}

// User is the bot user behind an access token.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Client talks to the Notion API. A Client without a token can only be used
// to derive token-bound clients with [Client.WithToken]; all of them share
// one rate limiter.
type Client struct {
	baseURL string
	token   string
	hc      *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a Client. rps <= 0 selects [DefaultRateLimit].
func NewClient(baseURL string, rps float64, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if rps <= 0 {
		rps = DefaultRateLimit
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Ping checks that the token is valid, retrying transient failures.
func (c *Client) Ping(ctx context.Context) error {
	err := retry.Do(ctx, retry.DefaultAttempts, func() error {
		_, err := c.Me(ctx)
		if IsUnauthorized(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("ping notion: %w", err)
	}
	return nil
}

// Me returns the bot user the token belongs to.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/v1/users/me", nil, &u); err != nil {
		return nil, fmt.Errorf("get bot user: %w", err)
	}
	return &u, nil
}

// GetDatabase fetches a database's id and title. It returns (nil, nil) if
// the database does not exist or is not shared with the integration.
func (c *Client) GetDatabase(ctx context.Context, id string) (*Database, error) {
	var raw rawDatabase
	err := c.do(ctx, http.MethodGet, "/v1/databases/"+url.PathEscape(id), nil, &raw)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get database %s: %w", id, err)
	}
	db := raw.toDatabase()
	return &db, nil
}

// QueryDatabase returns one page of records. Pass the previous page's
// NextCursor to continue; an empty cursor starts from the beginning.
func (c *Client) QueryDatabase(ctx context.Context, id, cursor string) (*RecordPage, error) {
	body := map[string]any{"page_size": pageSize}
	if cursor != "" {
		body["start_cursor"] = cursor
	}

	var resp struct {
		Results    []rawPage `json:"results"`
		HasMore    bool      `json:"has_more"`
		NextCursor *string   `json:"next_cursor"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/databases/"+url.PathEscape(id)+"/query", body, &resp); err != nil {
		return nil, fmt.Errorf("query database %s: %w", id, err)
	}

	page := &RecordPage{Records: make([]*model.Record, 0, len(resp.Results))}
	for i := range resp.Results {
		page.Records = append(page.Records, c.toRecord(&resp.Results[i]))
	}
	if resp.HasMore && resp.NextCursor != nil {
		page.NextCursor = *resp.NextCursor
	}
	return page, nil
}

// GetPage fetches a single page. It returns (nil, nil) when Notion reports
// the page as missing, which includes pages no longer shared with the
// integration.
func (c *Client) GetPage(ctx context.Context, id string) (*model.Record, error) {
	var raw rawPage
	err := c.do(ctx, http.MethodGet, "/v1/pages/"+url.PathEscape(id), nil, &raw)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get page %s: %w", id, err)
	}
	return c.toRecord(&raw), nil
}

// SearchDatabases returns one page of databases visible to the token.
func (c *Client) SearchDatabases(ctx context.Context, cursor string) (*DatabasePage, error) {
	body := map[string]any{
		"filter":    map[string]string{"property": "object", "value": "database"},
		"page_size": pageSize,
	}
	if cursor != "" {
		body["start_cursor"] = cursor
	}

	var resp struct {
		Results    []rawDatabase `json:"results"`
		HasMore    bool          `json:"has_more"`
		NextCursor *string       `json:"next_cursor"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/search", body, &resp); err != nil {
		return nil, fmt.Errorf("search databases: %w", err)
	}

	page := &DatabasePage{Databases: make([]Database, 0, len(resp.Results))}
	for _, r := range resp.Results {
		page.Databases = append(page.Databases, r.toDatabase())
	}
	if resp.HasMore && resp.NextCursor != nil {
		page.NextCursor = *resp.NextCursor
	}
	return page, nil
}

// do sends one request and decodes a 2xx JSON body into out. Non-2xx
// responses become *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

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
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Notion-Version", APIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
