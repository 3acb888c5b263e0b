package gmail

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// maxBodySize caps how much of a part body is read. Tool output is
// truncated far below this anyway; the cap just bounds memory.
const maxBodySize = 32 * 1024

// extractTextBody parses a raw RFC 5322 message and returns the first
// text/plain part, falling back to a tag-stripped text/html part.
//
// go-message's mail.CreateReader and NextPart may return both a valid
// reader/part AND an error when the message uses an unknown charset.
// Those are treated as non-fatal — slightly garbled text still serves
// the assistant.
func extractTextBody(raw []byte) string {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return ""
	}
	if mr == nil {
		return ""
	}

	var htmlFallback string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			break
		}
		if part == nil {
			continue
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()

		body, err := io.ReadAll(io.LimitReader(part.Body, maxBodySize))
		if err != nil {
			continue
		}

		switch contentType {
		case "text/plain":
			return strings.TrimSpace(string(body))
		case "text/html":
			if htmlFallback == "" {
				htmlFallback = stripTags(string(body))
			}
		}
	}

	return strings.TrimSpace(htmlFallback)
}

// stripTags removes HTML tags, leaving the readable text.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteRune(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
