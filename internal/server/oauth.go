package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const stateCookie = "notionrelay_oauth_state"

// handleAuthStart redirects to Notion's consent screen. The state value is
// echoed back by Notion and checked against a short-lived cookie.
func (s *Server) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/notion",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	url := s.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("owner", "user"))
	http.Redirect(w, r, url, http.StatusFound)
}

// handleAuthCallback exchanges the authorization code, stores the workspace
// credential and kicks off discovery for it.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		http.Error(w, "Authorization failed: "+e, http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "No authorization code received", http.StatusBadRequest)
		return
	}
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || c.Value != q.Get("state") {
		http.Error(w, "OAuth state mismatch", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth/notion", MaxAge: -1})

	tok, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		s.log.Error("oauth code exchange failed", "error", err)
		http.Error(w, "Authorization failed", http.StatusBadGateway)
		return
	}

	workspaceID := extraString(tok, "workspace_id")
	if workspaceID == "" {
		s.log.Error("oauth token response carried no workspace_id")
		http.Error(w, "Authorization failed", http.StatusBadGateway)
		return
	}
	cred, err := s.store.SaveCredential(r.Context(), tok.AccessToken, workspaceID, extraString(tok, "workspace_name"))
	if err != nil {
		s.log.Error("saving credential", "workspace_id", workspaceID, "error", err)
		http.Error(w, "Failed to save authorization", http.StatusInternalServerError)
		return
	}
	s.log.Info("workspace authorized", "workspace_id", workspaceID, "owner", cred.OwnerLabel())

	s.engine.Go(r.Context(), "discover", func(ctx context.Context) error {
		synced, err := s.engine.DiscoverAndSyncNew(ctx, cred)
		if err != nil {
			return fmt.Errorf("post-authorization discovery: %w", err)
		}
		s.log.Info("post-authorization discovery complete", "owner", cred.OwnerLabel(), "synced", len(synced))
		return nil
	})

	http.Redirect(w, r, "/", http.StatusFound)
}

func extraString(tok *oauth2.Token, key string) string {
	v, _ := tok.Extra(key).(string)
	return v
}
