package googleauth

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/oauth2"
)

// TokenStore persists OAuth2 tokens in SQLite, keyed by account, so an
// authorized session survives restarts. All public methods are safe
// for concurrent use (SQLite serializes writes).
type TokenStore struct {
	db *sql.DB
}

// NewTokenStore opens (or creates) the token database at dbPath.
func NewTokenStore(dbPath string) (*TokenStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &TokenStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *TokenStore) Close() error {
	return s.db.Close()
}

func (s *TokenStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS oauth_tokens (
		account    TEXT PRIMARY KEY,
		token      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load returns the stored token for an account, or nil with no error
// when the account has never authorized.
func (s *TokenStore) Load(account string) (*oauth2.Token, error) {
	var raw string
	err := s.db.QueryRow(
		`SELECT token FROM oauth_tokens WHERE account = ?`, account,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token for %s: %w", account, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, fmt.Errorf("decode token for %s: %w", account, err)
	}
	return &tok, nil
}

// Save upserts the token for an account.
func (s *TokenStore) Save(account string, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token for %s: %w", account, err)
	}

	_, err = s.db.Exec(
		`INSERT INTO oauth_tokens (account, token, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (account) DO UPDATE
		 SET token = excluded.token, updated_at = excluded.updated_at`,
		account, string(raw), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save token for %s: %w", account, err)
	}
	return nil
}

// Delete removes the token for an account. No error is returned if
// none is stored.
func (s *TokenStore) Delete(account string) error {
	_, err := s.db.Exec(`DELETE FROM oauth_tokens WHERE account = ?`, account)
	if err != nil {
		return fmt.Errorf("delete token for %s: %w", account, err)
	}
	return nil
}
