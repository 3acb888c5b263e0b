package gmail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/yuin/goldmark"
)

// smtpDialTimeout bounds connection establishment.
const smtpDialTimeout = 30 * time.Second

func (c *Client) smtpAddress() string {
	if c.cfg.SMTPAddress != "" {
		return c.cfg.SMTPAddress
	}
	return defaultSMTPAddress
}

// Send composes and delivers a message. The body is markdown, sent as
// a multipart/alternative with text/plain and text/html parts.
// Connections are ephemeral — each call opens and closes its own.
func (c *Client) Send(ctx context.Context, to, subject, body string) error {
	msg, err := composeMessage(c.cfg.Account, to, subject, body)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	token, err := c.auth.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("smtp auth token: %w", err)
	}

	addr := c.smtpAddress()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("smtp address %q: %w", addr, err)
	}

	dialTimeout := smtpDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < dialTimeout {
			dialTimeout = remaining
		}
	}
	dialer := &net.Dialer{Timeout: dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial SMTP %s: %w", addr, err)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("create SMTP client on %s: %w", addr, err)
	}
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return fmt.Errorf("EHLO: %w", err)
	}

	// Upgrade to TLS when the server offers it (port 587).
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("STARTTLS: %w", err)
		}
	}

	if err := client.Auth(xoauth2Auth(c.cfg.Account, token)); err != nil {
		return fmt.Errorf("AUTH: %w", err)
	}

	if err := client.Mail(c.cfg.Account); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close DATA: %w", err)
	}

	c.logger.Info("email sent", "to", to, "subject", subject)
	return client.Quit()
}

// composeMessage builds a complete RFC 5322 MIME message. The markdown
// body becomes text/plain and text/html alternative parts.
func composeMessage(from, to, subject, body string) ([]byte, error) {
	var buf bytes.Buffer

	var h mail.Header
	h.SetDate(time.Now())
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generate message-id: %w", err)
	}
	h.SetSubject(subject)

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("parse from address %q: %w", from, err)
	}
	h.SetAddressList("From", []*mail.Address{fromAddr})

	toAddr, err := mail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("parse to address %q: %w", to, err)
	}
	h.SetAddressList("To", []*mail.Address{toAddr})

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create inline writer: %w", err)
	}

	var ph mail.InlineHeader
	ph.Set("Content-Type", "text/plain; charset=utf-8")
	pw, err := tw.CreatePart(ph)
	if err != nil {
		return nil, fmt.Errorf("create plain text part: %w", err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return nil, fmt.Errorf("write plain text: %w", err)
	}
	if err := pw.Close(); err != nil {
		return nil, fmt.Errorf("close plain text part: %w", err)
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(body), &html); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}

	var hh mail.InlineHeader
	hh.Set("Content-Type", "text/html; charset=utf-8")
	hw, err := tw.CreatePart(hh)
	if err != nil {
		return nil, fmt.Errorf("create html part: %w", err)
	}
	if _, err := html.WriteTo(hw); err != nil {
		return nil, fmt.Errorf("write html: %w", err)
	}
	if err := hw.Close(); err != nil {
		return nil, fmt.Errorf("close html part: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mail writer: %w", err)
	}

	return buf.Bytes(), nil
}

// xoauth2 implements the SASL XOAUTH2 exchange for net/smtp. The
// net/smtp Auth interface is its own thing, so the IMAP-side go-sasl
// client cannot be reused here.
type xoauth2 struct {
	user, token string
}

func xoauth2Auth(user, token string) smtp.Auth {
	return &xoauth2{user: user, token: token}
}

func (a *xoauth2) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS {
		return "", nil, fmt.Errorf("xoauth2: refusing to send token without TLS")
	}
	resp := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.user, a.token)
	return "XOAUTH2", []byte(resp), nil
}

func (a *xoauth2) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		// The server sends a base64 JSON error blob on failure; an
		// empty client response tells it to fail the exchange.
		return []byte{}, nil
	}
	return nil, nil
}
