package supermemory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/njoerd114/notionrelay/internal/model"
)

// APIError is a non-2xx response from Supermemory.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("supermemory returned %d", e.Status)
	}
	return fmt.Sprintf("supermemory returned %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err is a Supermemory 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// apiDocument is the wire shape shared by create, get and list responses.
type apiDocument struct {
	ID           string         `json:"id"`
	CustomID     string         `json:"customId"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata"`
	ContainerTag string         `json:"containerTag"`
	Status       string         `json:"status"`
	Error        string         `json:"error"`
}

func (d apiDocument) toModel() model.Document {
	return model.Document{
		ID:           d.ID,
		CustomID:     d.CustomID,
		Content:      d.Content,
		Metadata:     d.Metadata,
		ContainerTag: d.ContainerTag,
		Status:       model.DocumentStatus(d.Status),
		Error:        d.Error,
	}
}

// decodeBatch accepts {"results": [...]} or a bare array.
func decodeBatch(raw json.RawMessage) ([]apiDocument, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var docs []apiDocument
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, fmt.Errorf("decode batch array: %w", err)
		}
		return docs, nil
	}

	var wrapped struct {
		Results []apiDocument `json:"results"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode batch results: %w", err)
	}
	return wrapped.Results, nil
}
