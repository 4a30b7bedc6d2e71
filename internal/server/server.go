// Package server is the HTTP front door: Notion webhooks, the OAuth
// install flow and a small JSON API for triggering and toggling syncs.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/njoerd114/notionrelay/internal/model"
)

// Notion's OAuth endpoints.
const (
	NotionAuthURL  = "https://api.notion.com/v1/oauth/authorize"
	NotionTokenURL = "https://api.notion.com/v1/oauth/token"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Engine is the subset of the sync engine the server drives.
type Engine interface {
	RunBackfill(ctx context.Context, collectionID string) (model.SyncResult, error)
	DiscoverAndSyncNew(ctx context.Context, cred *model.Credential) ([]model.SyncedCollection, error)
	HandleWebhookEvent(ctx context.Context, ev model.Event) error
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
}

// Store is the subset of the state store the server reads and writes.
type Store interface {
	GetActiveCredential(ctx context.Context) (*model.Credential, error)
	SaveCredential(ctx context.Context, accessToken, workspaceID, workspaceName string) (*model.Credential, error)
	ListCollections(ctx context.Context, ownerID int64) ([]*model.Collection, error)
	FindCollection(ctx context.Context, collectionID string) (*model.Collection, error)
	SetCollectionEnabled(ctx context.Context, ownerID int64, collectionID string, enabled bool) (bool, error)
}

// Options configures a Server.
type Options struct {
	Engine Engine
	Store  Store
	// OAuth is the Notion integration's client config; nil disables the
	// /auth routes.
	OAuth *oauth2.Config
	// VerificationToken, when set, is the secret webhook signatures are
	// checked against.
	VerificationToken string
	Logger            *slog.Logger
}

// Server serves the HTTP API. Create one with [New].
type Server struct {
	engine            Engine
	store             Store
	oauth             *oauth2.Config
	verificationToken string
	log               *slog.Logger
	mux               *http.ServeMux
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	s := &Server{
		engine:            opts.Engine,
		store:             opts.Store,
		oauth:             opts.OAuth,
		verificationToken: opts.VerificationToken,
		log:               opts.Logger,
		mux:               http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /webhooks/notion", s.handleWebhook)
	s.mux.HandleFunc("POST /api/sync", s.handleSync)
	s.mux.HandleFunc("GET /api/databases", s.handleListDatabases)
	s.mux.HandleFunc("PATCH /api/databases/{id}", s.handleToggleDatabase)
	if s.oauth != nil {
		s.mux.HandleFunc("GET /auth/notion", s.handleAuthStart)
		s.mux.HandleFunc("GET /auth/notion/callback", s.handleAuthCallback)
	}
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}

// NewOAuthConfig builds the Notion OAuth client config. baseURL overrides
// the Notion host when non-empty.
func NewOAuthConfig(clientID, clientSecret, redirectURI, baseURL string) *oauth2.Config {
	authURL, tokenURL := NotionAuthURL, NotionTokenURL
	if baseURL != "" {
		authURL = baseURL + "/v1/oauth/authorize"
		tokenURL = baseURL + "/v1/oauth/token"
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
