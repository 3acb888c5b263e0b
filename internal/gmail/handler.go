package gmail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxmachina/jarvis/internal/tools"
)

// bodyPreviewLimit is how much of each body goes into tool output.
// Full bodies would blow the model's context on a busy inbox.
const bodyPreviewLimit = 500

// Handler exposes the gmail_* tools.
type Handler struct {
	client *Client
	logger *slog.Logger
}

// NewHandler creates the Gmail tool handler.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	return &Handler{client: client, logger: logger}
}

// Definitions returns the gmail_* tool specs.
func (h *Handler) Definitions() []tools.Spec {
	return []tools.Spec{
		{
			Name:        "gmail_read_emails",
			Description: "Read emails from Gmail",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Search query for emails (e.g., 'from:john@example.com', 'is:unread')",
					},
					"max_results": map[string]any{
						"type":        "integer",
						"description": "Maximum number of emails to return",
						"default":     10,
					},
				},
			},
		},
		{
			Name:        "gmail_send_email",
			Description: "Send an email via Gmail",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"to": map[string]any{
						"type":        "string",
						"description": "Recipient email address",
					},
					"subject": map[string]any{
						"type":        "string",
						"description": "Email subject",
					},
					"body": map[string]any{
						"type":        "string",
						"description": "Email body content",
					},
				},
				"required": []string{"to", "subject", "body"},
			},
		},
	}
}

// Execute runs a gmail_* tool.
func (h *Handler) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "gmail_read_emails":
		return h.readEmails(ctx, args)
	case "gmail_send_email":
		return h.sendEmail(ctx, args)
	default:
		return "", fmt.Errorf("unknown Gmail tool: %s", name)
	}
}

func (h *Handler) readEmails(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	maxResults := intArg(args, "max_results", 10)

	h.logger.Info("reading emails", "query", query, "max_results", maxResults)

	msgs, err := h.client.Search(ctx, query, maxResults)
	if err != nil {
		return "", fmt.Errorf("read emails: %w", err)
	}

	emails := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		body := m.Body
		if len(body) > bodyPreviewLimit {
			body = body[:bodyPreviewLimit] + "..."
		}
		emails = append(emails, map[string]any{
			"id":         m.UID,
			"subject":    m.Subject,
			"sender":     m.From,
			"recipients": m.To,
			"body":       body,
			"timestamp":  m.Date.Format(time.RFC3339),
			"is_read":    m.Seen,
		})
	}

	out, err := json.Marshal(map[string]any{
		"emails": emails,
		"total":  len(emails),
	})
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(out), nil
}

func (h *Handler) sendEmail(ctx context.Context, args map[string]any) (string, error) {
	to, _ := args["to"].(string)
	subject, _ := args["subject"].(string)
	body, _ := args["body"].(string)

	if to == "" || subject == "" || body == "" {
		return "", fmt.Errorf("missing required fields: to, subject, body")
	}

	if err := h.client.Send(ctx, to, subject, body); err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}

	out, _ := json.Marshal(map[string]any{
		"message":   fmt.Sprintf("Email sent to %s", to),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	return string(out), nil
}

// intArg reads an integer argument. JSON numbers decode as float64,
// but models sometimes send strings, so both are accepted.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}
