package googleauth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/voxmachina/jarvis/internal/config"
	"github.com/voxmachina/jarvis/internal/oauthcb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *TokenStore {
	t.Helper()
	s, err := NewTokenStore(filepath.Join(t.TempDir(), "tokens.db"))
	if err != nil {
		t.Fatalf("NewTokenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTokenStoreRoundTrip(t *testing.T) {
	s := testStore(t)

	if tok, err := s.Load("nobody@example.com"); err != nil || tok != nil {
		t.Fatalf("Load missing = (%v, %v), want (nil, nil)", tok, err)
	}

	want := &oauth2.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Round(time.Second),
	}
	if err := s.Save("user@example.com", want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load("user@example.com")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
		t.Errorf("loaded token = %+v", got)
	}

	// Save again overwrites.
	want.AccessToken = "access-2"
	if err := s.Save("user@example.com", want); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, _ = s.Load("user@example.com")
	if got.AccessToken != "access-2" {
		t.Errorf("access token after overwrite = %q", got.AccessToken)
	}

	if err := s.Delete("user@example.com"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if tok, _ := s.Load("user@example.com"); tok != nil {
		t.Error("token survived delete")
	}
}

func TestNewManagerMissingCredentialsFile(t *testing.T) {
	cfg := config.GoogleConfig{
		CredentialsFile: filepath.Join(t.TempDir(), "does-not-exist.json"),
		Scopes:          []string{"scope-a"},
	}

	_, err := NewManager(cfg, testStore(t), oauthcb.New(testLogger()), time.Minute, testLogger())
	if err == nil {
		t.Fatal("expected error for missing credentials file")
	}
	if !strings.Contains(err.Error(), "read credentials file") {
		t.Errorf("error = %v", err)
	}
}

// testManager builds a Manager wired to a fake token endpoint, skipping
// the client-secrets file parse.
func testManager(t *testing.T, tokenURL string, store *TokenStore, coord *oauthcb.Coordinator) *Manager {
	t.Helper()
	return &Manager{
		cfg: config.GoogleConfig{
			Account: "user@example.com",
			Scopes:  []string{"scope-a"},
		},
		oauth: &oauth2.Config{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			RedirectURL:  "http://localhost:8600/oauth2/callback",
			Scopes:       []string{"scope-a"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.example.com/auth",
				TokenURL: tokenURL,
			},
		},
		store:   store,
		coord:   coord,
		timeout: time.Second,
		logger:  testLogger(),
	}
}

func TestAuthenticateUsesStoredToken(t *testing.T) {
	store := testStore(t)
	store.Save("user@example.com", &oauth2.Token{
		AccessToken: "stored-token",
		Expiry:      time.Now().Add(time.Hour),
	})

	m := testManager(t, "https://unreachable.example.com/token", store, oauthcb.New(testLogger()))
	if err := m.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !m.Authenticated() {
		t.Error("not authenticated after valid stored token")
	}

	tok, err := m.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if tok != "stored-token" {
		t.Errorf("access token = %q", tok)
	}
}

func TestAuthenticateRefreshesExpiredToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer srv.Close()

	store := testStore(t)
	store.Save("user@example.com", &oauth2.Token{
		AccessToken:  "expired-token",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	})

	m := testManager(t, srv.URL, store, oauthcb.New(testLogger()))
	if err := m.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !m.Authenticated() {
		t.Error("not authenticated after refresh")
	}

	// Refreshed token must have been persisted.
	saved, _ := store.Load("user@example.com")
	if saved == nil || saved.AccessToken != "fresh-token" {
		t.Errorf("persisted token = %+v", saved)
	}
}

func TestAuthenticateFullFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("code") != "the-auth-code" {
			t.Errorf("code = %q", r.Form.Get("code"))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "flow-token",
			"refresh_token": "flow-refresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	store := testStore(t)
	coord := oauthcb.New(testLogger())
	m := testManager(t, srv.URL, store, coord)

	// Play the browser: wait for the flow to publish its URL, then
	// deliver the redirect with the state it carries.
	go func() {
		for !coord.Pending() {
			time.Sleep(time.Millisecond)
		}
		u, err := url.Parse(m.AuthURL())
		if err != nil {
			t.Error(err)
			return
		}
		coord.Deliver(oauthcb.Result{
			Code:  "the-auth-code",
			State: u.Query().Get("state"),
		})
	}()

	if err := m.Authenticate(context.Background()); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !m.Authenticated() {
		t.Error("not authenticated after full flow")
	}

	saved, _ := store.Load("user@example.com")
	if saved == nil || saved.AccessToken != "flow-token" {
		t.Errorf("persisted token = %+v", saved)
	}
}

func TestAuthenticateStateMismatch(t *testing.T) {
	store := testStore(t)
	coord := oauthcb.New(testLogger())
	m := testManager(t, "https://unreachable.example.com/token", store, coord)

	go func() {
		for !coord.Pending() {
			time.Sleep(time.Millisecond)
		}
		coord.Deliver(oauthcb.Result{Code: "the-auth-code", State: "forged"})
	}()

	err := m.Authenticate(context.Background())
	if err == nil {
		t.Fatal("expected state mismatch error")
	}
	if !strings.Contains(err.Error(), "state mismatch") {
		t.Errorf("error = %v", err)
	}
}

func TestStatus(t *testing.T) {
	store := testStore(t)
	coord := oauthcb.New(testLogger())
	m := testManager(t, "https://unreachable.example.com/token", store, coord)

	st := m.Status()
	if st["authenticated"] != false {
		t.Errorf("authenticated = %v before any flow", st["authenticated"])
	}
	if st["token_stored"] != false {
		t.Errorf("token_stored = %v with empty store", st["token_stored"])
	}

	m.setToken(&oauth2.Token{AccessToken: "t", Expiry: time.Now().Add(time.Hour)})
	store.Save("user@example.com", &oauth2.Token{AccessToken: "t"})

	st = m.Status()
	if st["authenticated"] != true {
		t.Errorf("authenticated = %v with valid token", st["authenticated"])
	}
	if st["token_stored"] != true {
		t.Errorf("token_stored = %v with saved token", st["token_stored"])
	}
}
