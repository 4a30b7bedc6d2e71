package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/njoerd114/notionrelay/internal/model"
	"github.com/njoerd114/notionrelay/internal/notion"
)

// handleWebhook acknowledges Notion immediately and applies the event in a
// supervised background task.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	payload, err := notion.ParseWebhook(body)
	if err != nil {
		s.log.Warn("rejecting malformed webhook", "error", err)
		writeError(w, http.StatusBadRequest, "malformed webhook payload")
		return
	}

	if payload.VerificationToken != "" {
		// The token only exists once Notion sends it, so the handshake itself
		// is unsigned. Operators copy it into webhook.verification_token.
		s.log.Info("webhook verification received", "verification_token", payload.VerificationToken)
		writeJSON(w, http.StatusOK, map[string]string{"verification_token": payload.VerificationToken})
		return
	}

	if s.verificationToken != "" {
		if err := notion.VerifySignature(body, r.Header.Get(notion.SignatureHeader), s.verificationToken); err != nil {
			s.log.Warn("rejecting webhook with bad signature", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "OK")

	ev := *payload.Event
	s.engine.Go(r.Context(), "webhook", func(ctx context.Context) error {
		return s.applyEvent(ctx, ev)
	})
}

func (s *Server) applyEvent(ctx context.Context, ev model.Event) error {
	log := s.log.With("event", string(ev.Kind), "record_id", ev.RecordID, "collection_id", ev.CollectionID)

	if ev.CollectionID != "" {
		coll, err := s.store.FindCollection(ctx, ev.CollectionID)
		if err != nil {
			return err
		}
		if coll != nil && !coll.Enabled {
			log.Info("sync disabled for database, ignoring event")
			return nil
		}
	}

	if err := s.engine.HandleWebhookEvent(ctx, ev); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	log.Debug("webhook event applied")
	return nil
}
