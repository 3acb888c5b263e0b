package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxmachina/jarvis/internal/tools"
)

// ToolNames is the exact set of tools this handler serves, used to
// register it on an allow-list route.
var ToolNames = []string{
	"send_notification",
	"schedule_reminder",
	"cancel_reminder",
	"list_reminders",
}

// Handler exposes notification and reminder tools over a Notifier.
type Handler struct {
	notify    Notifier
	reminders *Reminders
	logger    *slog.Logger

	now func() time.Time
}

// NewHandler wires the notification tools to a delivery function and a
// reminder scheduler.
func NewHandler(notify Notifier, reminders *Reminders, logger *slog.Logger) *Handler {
	return &Handler{
		notify:    notify,
		reminders: reminders,
		logger:    logger.With("component", "notify"),
		now:       time.Now,
	}
}

// Definitions implements [tools.Handler].
func (h *Handler) Definitions() []tools.Spec {
	return []tools.Spec{
		{
			Name:        "send_notification",
			Description: "Send an immediate notification to the user's devices",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":   map[string]any{"type": "string", "description": "Notification title"},
					"message": map[string]any{"type": "string", "description": "Notification message body"},
					"timeout": map[string]any{"type": "integer", "description": "Seconds the notification stays on screen (default 10)"},
				},
				"required": []string{"message"},
			},
		},
		{
			Name:        "schedule_reminder",
			Description: "Schedule a reminder notification for a future time",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":   map[string]any{"type": "string", "description": "Reminder title"},
					"message": map[string]any{"type": "string", "description": "Reminder message body"},
					"when":    map[string]any{"type": "string", "description": "When to fire: 'in 10 minutes', 'tomorrow', an ISO timestamp, or a clock time like '15:04'"},
				},
				"required": []string{"message", "when"},
			},
		},
		{
			Name:        "cancel_reminder",
			Description: "Cancel a previously scheduled reminder",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reminder_id": map[string]any{"type": "string", "description": "ID of the reminder to cancel"},
				},
				"required": []string{"reminder_id"},
			},
		},
		{
			Name:        "list_reminders",
			Description: "List all pending reminders",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
	}
}

// Execute implements [tools.Handler].
func (h *Handler) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "send_notification":
		return h.sendNotification(ctx, args)
	case "schedule_reminder":
		return h.scheduleReminder(args)
	case "cancel_reminder":
		return h.cancelReminder(args)
	case "list_reminders":
		return h.listReminders()
	default:
		return "", fmt.Errorf("unknown notification tool: %s", name)
	}
}

func (h *Handler) sendNotification(ctx context.Context, args map[string]any) (string, error) {
	message, _ := args["message"].(string)
	if message == "" {
		return "", fmt.Errorf("message is required")
	}
	title, _ := args["title"].(string)
	if title == "" {
		title = "Jarvis Notification"
	}
	timeout := 10
	if v, ok := optInt(args["timeout"]); ok {
		timeout = v
	}

	if err := h.notify(ctx, Notification{Title: title, Message: message, Timeout: timeout}); err != nil {
		return "", fmt.Errorf("send notification: %w", err)
	}
	return jsonBody(map[string]any{"message": "Notification sent successfully"})
}

func (h *Handler) scheduleReminder(args map[string]any) (string, error) {
	message, _ := args["message"].(string)
	when, _ := args["when"].(string)
	if message == "" || when == "" {
		return "", fmt.Errorf("missing required fields: message, when")
	}
	title, _ := args["title"].(string)
	if title == "" {
		title = "Jarvis Reminder"
	}

	remindAt, err := parseWhen(when, h.now())
	if err != nil {
		return "", err
	}

	id := uuid.New().String()[:8]
	h.reminders.Schedule(id, title, message, remindAt)

	return jsonBody(map[string]any{
		"reminder_id": id,
		"message":     fmt.Sprintf("Reminder scheduled for %s", remindAt.Format(time.RFC3339)),
		"remind_at":   remindAt.Format(time.RFC3339),
	})
}

func (h *Handler) cancelReminder(args map[string]any) (string, error) {
	id, _ := args["reminder_id"].(string)
	if id == "" {
		return "", fmt.Errorf("reminder_id is required")
	}
	if !h.reminders.Cancel(id) {
		return "", fmt.Errorf("no reminder with ID %s", id)
	}
	return jsonBody(map[string]any{"message": fmt.Sprintf("Reminder %s cancelled", id)})
}

func (h *Handler) listReminders() (string, error) {
	list := h.reminders.List()
	items := make([]map[string]any, 0, len(list))
	for _, rem := range list {
		items = append(items, map[string]any{
			"id":         rem.ID,
			"title":      rem.Title,
			"message":    rem.Message,
			"remind_at":  rem.RemindAt.Format(time.RFC3339),
			"created_at": rem.CreatedAt.Format(time.RFC3339),
		})
	}
	return jsonBody(map[string]any{"reminders": items, "total": len(items)})
}

func jsonBody(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func optInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}
