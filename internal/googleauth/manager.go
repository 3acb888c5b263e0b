// Package googleauth manages the OAuth2 credential lifecycle for the
// Google-backed tools: loading a stored token, refreshing an expired
// one, or walking the full browser authorization flow through the
// callback coordinator.
package googleauth

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/voxmachina/jarvis/internal/config"
	"github.com/voxmachina/jarvis/internal/oauthcb"
)

// Manager holds the OAuth2 client configuration and the current token.
// Authenticate is serialized by flowMu; mu guards the token and URL
// fields with short holds so Status and AuthURL stay responsive while
// a flow blocks on the browser.
type Manager struct {
	cfg     config.GoogleConfig
	oauth   *oauth2.Config
	store   *TokenStore
	coord   *oauthcb.Coordinator
	timeout time.Duration
	logger  *slog.Logger

	flowMu sync.Mutex

	mu      sync.Mutex
	token   *oauth2.Token
	authURL string // Last generated authorization URL, served at /auth/qr
}

// NewManager reads the client secrets file and prepares a manager. A
// missing or unreadable credentials file is reported cleanly, not
// deferred to the first flow.
func NewManager(cfg config.GoogleConfig, store *TokenStore, coord *oauthcb.Coordinator, timeout time.Duration, logger *slog.Logger) (*Manager, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	oc, err := google.ConfigFromJSON(data, cfg.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	oc.RedirectURL = cfg.CallbackURL

	return &Manager{
		cfg:     cfg,
		oauth:   oc,
		store:   store,
		coord:   coord,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Authenticate establishes a usable token: a stored valid token wins,
// an expired one with a refresh token is refreshed and re-saved, and
// otherwise the full authorization flow runs — log the URL, wait for
// the redirect through the coordinator, exchange the code. Concurrent
// calls are serialized.
func (m *Manager) Authenticate(ctx context.Context) error {
	m.flowMu.Lock()
	defer m.flowMu.Unlock()

	m.logger.Info("starting Google authentication", "account", m.cfg.Account)

	tok, err := m.store.Load(m.cfg.Account)
	if err != nil {
		return fmt.Errorf("load stored token: %w", err)
	}

	if tok.Valid() {
		m.setToken(tok)
		m.logger.Info("using stored credentials")
		return nil
	}

	if tok != nil && tok.RefreshToken != "" {
		refreshed, err := m.oauth.TokenSource(ctx, tok).Token()
		if err == nil {
			m.setToken(refreshed)
			if err := m.store.Save(m.cfg.Account, refreshed); err != nil {
				return fmt.Errorf("save refreshed token: %w", err)
			}
			m.logger.Info("refreshed expired credentials")
			return nil
		}
		m.logger.Warn("token refresh failed, starting new authorization", "error", err)
	}

	return m.authorize(ctx)
}

// authorize runs the browser consent flow. Caller holds flowMu.
func (m *Manager) authorize(ctx context.Context) error {
	state := uuid.New().String()
	url := m.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)

	m.mu.Lock()
	m.authURL = url
	m.mu.Unlock()

	m.logger.Info("visit this URL to authorize the application", "url", url)
	m.logger.Info("waiting for authorization redirect", "callback_url", m.cfg.CallbackURL)

	res, err := m.coord.AwaitCallback(ctx, m.timeout)
	if err != nil {
		return fmt.Errorf("authorization flow: %w", err)
	}
	if res.State != state {
		return fmt.Errorf("authorization flow: state mismatch")
	}

	tok, err := m.oauth.Exchange(ctx, res.Code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}

	m.setToken(tok)
	if err := m.store.Save(m.cfg.Account, tok); err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	m.logger.Info("authorization flow completed")
	return nil
}

func (m *Manager) setToken(tok *oauth2.Token) {
	m.mu.Lock()
	m.token = tok
	m.mu.Unlock()
}

// Authenticated reports whether a currently valid token is held.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token.Valid()
}

// AuthURL returns the most recently generated authorization URL, or
// empty when no flow has started. Served as a QR code for phones.
func (m *Manager) AuthURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authURL
}

// TokenSource returns a self-refreshing source backed by the current
// token. Refreshed tokens are persisted as a side effect.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return oauth2.ReuseTokenSource(m.token, &savingSource{
		base:    m.oauth.TokenSource(ctx, m.token),
		manager: m,
	})
}

// AccessToken returns a live bearer token, refreshing if needed. Used
// by the IMAP and SMTP SASL mechanisms, which need the raw string.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	tok, err := m.TokenSource(ctx).Token()
	if err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	return tok.AccessToken, nil
}

// Status reports the authentication state served at /auth/status.
func (m *Manager) Status() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := false
	if tok, err := m.store.Load(m.cfg.Account); err == nil && tok != nil {
		stored = true
	}
	_, credErr := os.Stat(m.cfg.CredentialsFile)

	return map[string]any{
		"authenticated":           m.token.Valid(),
		"has_credentials":         m.token != nil,
		"credentials_valid":       m.token.Valid(),
		"credentials_file_exists": credErr == nil,
		"token_stored":            stored,
		"flow_pending":            m.coord.Pending(),
		"scopes":                  m.cfg.Scopes,
	}
}

// savingSource wraps a token source and persists every token it mints.
type savingSource struct {
	base    oauth2.TokenSource
	manager *Manager
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.manager.mu.Lock()
	s.manager.token = tok
	s.manager.mu.Unlock()

	if err := s.manager.store.Save(s.manager.cfg.Account, tok); err != nil {
		s.manager.logger.Warn("persist refreshed token failed", "error", err)
	}
	return tok, nil
}
