// Package gmail implements the Gmail tool family over IMAP and SMTP,
// authenticated with OAuth2 bearer tokens.
package gmail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"github.com/voxmachina/jarvis/internal/config"
	"github.com/voxmachina/jarvis/internal/googleauth"
)

const (
	defaultIMAPAddress = "imap.gmail.com:993"
	defaultSMTPAddress = "smtp.gmail.com:587"
)

// Message is one fetched email.
type Message struct {
	UID     uint32    `json:"id"`
	Subject string    `json:"subject"`
	From    string    `json:"sender"`
	To      []string  `json:"recipients"`
	Body    string    `json:"body"`
	Date    time.Time `json:"timestamp"`
	Seen    bool      `json:"is_read"`
}

// Client is a single-account Gmail IMAP client with automatic
// reconnection and mutex-serialized access. Bearer tokens come from
// the auth manager on every connect, so an expired session picks up a
// refreshed token transparently.
type Client struct {
	cfg    config.GoogleConfig
	auth   *googleauth.Manager
	logger *slog.Logger

	mu     sync.Mutex
	client *imapclient.Client
}

// NewClient creates a Gmail client. The connection is established
// lazily on first use.
func NewClient(cfg config.GoogleConfig, auth *googleauth.Manager, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		auth:   auth,
		logger: logger,
	}
}

func (c *Client) imapAddress() string {
	if c.cfg.IMAPAddress != "" {
		return c.cfg.IMAPAddress
	}
	return defaultIMAPAddress
}

// connectLocked dials and authenticates. Caller must hold c.mu.
func (c *Client) connectLocked(ctx context.Context) error {
	if c.client != nil {
		_ = c.client.Close()
		c.client = nil
	}

	addr := c.imapAddress()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("imap address %q: %w", addr, err)
	}

	token, err := c.auth.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("imap auth token: %w", err)
	}

	c.logger.Debug("connecting to IMAP server", "addr", addr)

	client, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{ServerName: host},
	})
	if err != nil {
		return fmt.Errorf("dial IMAP %s: %w", addr, err)
	}

	saslClient := sasl.NewOAuthBearerClient(&sasl.OAuthBearerOptions{
		Username: c.cfg.Account,
		Token:    token,
		Host:     host,
	})
	if err := client.Authenticate(saslClient); err != nil {
		_ = client.Close()
		return fmt.Errorf("authenticate as %s: %w", c.cfg.Account, err)
	}

	c.client = client
	c.logger.Info("IMAP connected", "addr", addr, "account", c.cfg.Account)
	return nil
}

// ensureConnected checks the connection and reconnects if needed.
// Caller must hold c.mu.
func (c *Client) ensureConnected(ctx context.Context) error {
	if c.client != nil {
		if err := c.client.Noop().Wait(); err == nil {
			return nil
		}
		c.logger.Debug("IMAP connection stale, reconnecting")
	}
	return c.connectLocked(ctx)
}

// Close logs out and closes the IMAP connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// Search finds the most recent messages in INBOX matching a Gmail-style
// query and fetches them, newest first, up to limit.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 10
	}

	if _, err := c.client.Select("INBOX", nil).Wait(); err != nil {
		return nil, fmt.Errorf("select INBOX: %w", err)
	}

	criteria := parseQuery(query)
	searchData, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	allUIDs := searchData.AllUIDs()
	if len(allUIDs) == 0 {
		return nil, nil
	}

	// Take the most recent N UIDs.
	start := 0
	if len(allUIDs) > limit {
		start = len(allUIDs) - limit
	}
	recent := allUIDs[start:]

	uidSet := imap.UIDSet{}
	for _, uid := range recent {
		uidSet.AddNum(uid)
	}

	msgs, err := c.fetchLocked(uidSet)
	if err != nil {
		return nil, err
	}

	// Newest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// fetchLocked retrieves envelopes, flags and bodies for a UID set.
// Caller must hold c.mu.
func (c *Client) fetchLocked(uids imap.UIDSet) ([]Message, error) {
	fetchOpts := &imap.FetchOptions{
		UID:      true,
		Envelope: true,
		Flags:    true,
		BodySection: []*imap.FetchItemBodySection{
			{Peek: true}, // Reading for the assistant must not mark \Seen
		},
	}

	buffered, err := c.client.Fetch(uids, fetchOpts).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}

	var msgs []Message
	for _, buf := range buffered {
		m := Message{UID: uint32(buf.UID)}

		for _, f := range buf.Flags {
			if f == imap.FlagSeen {
				m.Seen = true
			}
		}
		if env := buf.Envelope; env != nil {
			m.Date = env.Date
			m.Subject = env.Subject
			if len(env.From) > 0 {
				m.From = formatAddress(env.From[0])
			}
			for _, addr := range env.To {
				m.To = append(m.To, formatAddress(addr))
			}
		}
		for _, section := range buf.BodySection {
			m.Body = extractTextBody(section.Bytes)
			break
		}

		msgs = append(msgs, m)
	}
	return msgs, nil
}

// parseQuery translates a Gmail-style search string into IMAP criteria.
// Recognized operators: is:unread, is:read, from:, to:, subject:.
// Everything else becomes full-text search terms.
func parseQuery(query string) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}

	for _, tok := range strings.Fields(query) {
		switch {
		case tok == "is:unread":
			criteria.NotFlag = append(criteria.NotFlag, imap.FlagSeen)
		case tok == "is:read":
			criteria.Flag = append(criteria.Flag, imap.FlagSeen)
		case strings.HasPrefix(tok, "from:"):
			criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
				Key: "From", Value: strings.TrimPrefix(tok, "from:"),
			})
		case strings.HasPrefix(tok, "to:"):
			criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
				Key: "To", Value: strings.TrimPrefix(tok, "to:"),
			})
		case strings.HasPrefix(tok, "subject:"):
			criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
				Key: "Subject", Value: strings.TrimPrefix(tok, "subject:"),
			})
		default:
			criteria.Text = append(criteria.Text, tok)
		}
	}

	return criteria
}

func formatAddress(addr imap.Address) string {
	email := addr.Addr()
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, email)
	}
	return email
}
