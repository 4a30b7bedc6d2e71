package notion

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/njoerd114/notionrelay/internal/model"
)

// SignatureHeader carries the HMAC of a webhook delivery.
const SignatureHeader = "X-Notion-Signature"

// ErrBadSignature is returned by [VerifySignature] on a mismatch.
var ErrBadSignature = errors.New("webhook signature mismatch")

// WebhookPayload is a decoded delivery. Exactly one of VerificationToken and
// Event is set.
type WebhookPayload struct {
	// VerificationToken is sent once when a subscription is created and must
	// be echoed back to confirm the endpoint.
	VerificationToken string

	Event *model.Event
}

type rawWebhook struct {
	VerificationToken string `json:"verification_token"`
	ID                string `json:"id"`
	Type              string `json:"type"`
	WorkspaceID       string `json:"workspace_id"`
	Entity            struct {
		ID               string `json:"id"`
		Type             string `json:"type"`
		ParentDatabaseID string `json:"parent_database_id"`
	} `json:"entity"`
	Data struct {
		Parent struct {
			ID         string `json:"id"`
			Type       string `json:"type"`
			DatabaseID string `json:"database_id"`
		} `json:"parent"`
	} `json:"data"`
}

// ParseWebhook decodes a webhook body. Page events map to the matching
// [model.EventKind]; any other type is passed through verbatim so the
// reconciler can log and skip it.
func ParseWebhook(body []byte) (*WebhookPayload, error) {
	var raw rawWebhook
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}
	if raw.VerificationToken != "" {
		return &WebhookPayload{VerificationToken: raw.VerificationToken}, nil
	}
	if raw.Type == "" {
		return nil, errors.New("decode webhook: missing event type")
	}

	ev := &model.Event{
		ID:           raw.ID,
		Kind:         eventKind(raw.Type),
		RecordID:     raw.Entity.ID,
		WorkspaceID:  raw.WorkspaceID,
		CollectionID: raw.Entity.ParentDatabaseID,
	}
	switch {
	case raw.Data.Parent.DatabaseID != "":
		ev.CollectionID = raw.Data.Parent.DatabaseID
	case raw.Data.Parent.Type == "database" && raw.Data.Parent.ID != "":
		ev.CollectionID = raw.Data.Parent.ID
	}
	return &WebhookPayload{Event: ev}, nil
}

func eventKind(t string) model.EventKind {
	switch t {
	case "page.created":
		return model.EventCreated
	case "page.properties_updated":
		return model.EventPropertiesUpdated
	case "page.content_updated":
		return model.EventContentUpdated
	case "page.deleted":
		return model.EventDeleted
	}
	return model.EventKind(t)
}

// VerifySignature checks header ("sha256=<hex>") against the HMAC-SHA256 of
// body keyed with the subscription's verification token.
func VerifySignature(body []byte, header, token string) error {
	got, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrBadSignature
	}
	sig, err := hex.DecodeString(got)
	if err != nil {
		return ErrBadSignature
	}
	if !hmac.Equal(sig, Sign(body, token)) {
		return ErrBadSignature
	}
	return nil
}

// Sign returns the raw HMAC-SHA256 of body keyed with token.
func Sign(body []byte, token string) []byte {
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write(body)
	return mac.Sum(nil)
}
