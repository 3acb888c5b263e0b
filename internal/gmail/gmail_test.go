package gmail

import (
	"net/smtp"
	"strings"
	"testing"

	"github.com/emersion/go-imap/v2"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		check func(t *testing.T, c *imap.SearchCriteria)
	}{
		{
			name:  "empty query matches all",
			query: "",
			check: func(t *testing.T, c *imap.SearchCriteria) {
				if len(c.Text) != 0 || len(c.Header) != 0 || len(c.Flag) != 0 || len(c.NotFlag) != 0 {
					t.Errorf("criteria not empty: %+v", c)
				}
			},
		},
		{
			name:  "is:unread",
			query: "is:unread",
			check: func(t *testing.T, c *imap.SearchCriteria) {
				if len(c.NotFlag) != 1 || c.NotFlag[0] != imap.FlagSeen {
					t.Errorf("NotFlag = %v", c.NotFlag)
				}
			},
		},
		{
			name:  "is:read",
			query: "is:read",
			check: func(t *testing.T, c *imap.SearchCriteria) {
				if len(c.Flag) != 1 || c.Flag[0] != imap.FlagSeen {
					t.Errorf("Flag = %v", c.Flag)
				}
			},
		},
		{
			name:  "from operator",
			query: "from:john@example.com",
			check: func(t *testing.T, c *imap.SearchCriteria) {
				if len(c.Header) != 1 || c.Header[0].Key != "From" || c.Header[0].Value != "john@example.com" {
					t.Errorf("Header = %v", c.Header)
				}
			},
		},
		{
			name:  "subject operator with free text",
			query: "subject:invoice quarterly report",
			check: func(t *testing.T, c *imap.SearchCriteria) {
				if len(c.Header) != 1 || c.Header[0].Key != "Subject" || c.Header[0].Value != "invoice" {
					t.Errorf("Header = %v", c.Header)
				}
				if len(c.Text) != 2 {
					t.Errorf("Text = %v", c.Text)
				}
			},
		},
		{
			name:  "combined operators",
			query: "is:unread from:alerts@bank.com",
			check: func(t *testing.T, c *imap.SearchCriteria) {
				if len(c.NotFlag) != 1 || len(c.Header) != 1 {
					t.Errorf("criteria = %+v", c)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, parseQuery(tt.query))
		})
	}
}

func TestComposeMessage(t *testing.T) {
	msg, err := composeMessage(
		"jarvis@example.com",
		"user@example.com",
		"Morning briefing",
		"Good morning.\n\n- **3** unread emails\n- 2 meetings today",
	)
	if err != nil {
		t.Fatalf("composeMessage: %v", err)
	}

	s := string(msg)
	for _, want := range []string{
		"jarvis@example.com",
		"user@example.com",
		"Subject: Morning briefing",
		"Content-Type: text/plain",
		"Content-Type: text/html",
		"multipart/alternative",
		"Message-Id:",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("message missing %q", want)
		}
	}

	// Markdown must be rendered in the HTML part.
	if !strings.Contains(s, "<strong>3</strong>") {
		t.Error("markdown bold not rendered in html part")
	}
}

func TestComposeMessageBadAddress(t *testing.T) {
	_, err := composeMessage("jarvis@example.com", "not an address", "s", "b")
	if err == nil {
		t.Fatal("expected error for invalid recipient")
	}
}

func TestExtractTextBodyPrefersPlain(t *testing.T) {
	raw := []byte("Mime-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=BOUND\r\n" +
		"Subject: test\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"plain text wins\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>html loses</p>\r\n" +
		"--BOUND--\r\n")

	if got := extractTextBody(raw); got != "plain text wins" {
		t.Errorf("body = %q", got)
	}
}

func TestExtractTextBodyHTMLFallback(t *testing.T) {
	raw := []byte("Mime-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"Subject: test\r\n" +
		"\r\n" +
		"<html><body><p>Hello <b>world</b></p></body></html>\r\n")

	got := extractTextBody(raw)
	if got != "Hello world" {
		t.Errorf("body = %q", got)
	}
}

func TestStripTags(t *testing.T) {
	got := stripTags("<div>one<br>two</div> three")
	if got != "one two three" {
		t.Errorf("stripTags = %q", got)
	}
}

func TestHandlerDefinitions(t *testing.T) {
	h := NewHandler(nil, nil)

	defs := h.Definitions()
	if len(defs) != 2 {
		t.Fatalf("definitions = %d, want 2", len(defs))
	}
	if defs[0].Name != "gmail_read_emails" || defs[1].Name != "gmail_send_email" {
		t.Errorf("names = %q, %q", defs[0].Name, defs[1].Name)
	}
	props, ok := defs[1].Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatal("send parameters missing properties")
	}
	for _, p := range []string{"to", "subject", "body"} {
		if _, ok := props[p]; !ok {
			t.Errorf("send schema missing %q", p)
		}
	}
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want int
	}{
		{"missing uses default", map[string]any{}, 10},
		{"float64 from JSON", map[string]any{"max_results": float64(5)}, 5},
		{"plain int", map[string]any{"max_results": 3}, 3},
		{"wrong type uses default", map[string]any{"max_results": "seven"}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := intArg(tt.args, "max_results", 10); got != tt.want {
				t.Errorf("intArg = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestXOAuth2RequiresTLS(t *testing.T) {
	auth := xoauth2Auth("user@example.com", "tok")

	if _, _, err := auth.Start(&smtp.ServerInfo{TLS: false}); err == nil {
		t.Error("expected error without TLS")
	}

	proto, resp, err := auth.Start(&smtp.ServerInfo{TLS: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if proto != "XOAUTH2" {
		t.Errorf("proto = %q", proto)
	}
	want := "user=user@example.com\x01auth=Bearer tok\x01\x01"
	if string(resp) != want {
		t.Errorf("initial response = %q", resp)
	}
}
