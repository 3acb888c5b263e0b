package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxmachina/jarvis/internal/tools"
)

// defaultWindow is how far ahead a list with no end date looks.
const defaultWindow = 7 * 24 * time.Hour

// Handler exposes the calendar_* tools.
type Handler struct {
	client *Client
	logger *slog.Logger
	now    func() time.Time // Overridable for tests
}

// NewHandler creates the Calendar tool handler.
func NewHandler(client *Client, logger *slog.Logger) *Handler {
	return &Handler{client: client, logger: logger, now: time.Now}
}

// Definitions returns the calendar_* tool specs.
func (h *Handler) Definitions() []tools.Spec {
	return []tools.Spec{
		{
			Name:        "calendar_list_events",
			Description: "List calendar events",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"start_date": map[string]any{
						"type":        "string",
						"description": "Start date (ISO format: YYYY-MM-DDTHH:MM:SS)",
					},
					"end_date": map[string]any{
						"type":        "string",
						"description": "End date (ISO format: YYYY-MM-DDTHH:MM:SS)",
					},
					"max_results": map[string]any{
						"type":        "integer",
						"description": "Maximum number of events",
						"default":     10,
					},
				},
			},
		},
		{
			Name:        "calendar_create_event",
			Description: "Create a new calendar event",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "Event title",
					},
					"start_time": map[string]any{
						"type":        "string",
						"description": "Start time (ISO format: YYYY-MM-DDTHH:MM:SS)",
					},
					"end_time": map[string]any{
						"type":        "string",
						"description": "End time (ISO format: YYYY-MM-DDTHH:MM:SS)",
					},
					"description": map[string]any{
						"type":        "string",
						"description": "Event description",
					},
					"location": map[string]any{
						"type":        "string",
						"description": "Event location",
					},
				},
				"required": []string{"title", "start_time", "end_time"},
			},
		},
	}
}

// Execute runs a calendar_* tool.
func (h *Handler) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case "calendar_list_events":
		return h.listEvents(ctx, args)
	case "calendar_create_event":
		return h.createEvent(ctx, args)
	default:
		return "", fmt.Errorf("unknown Calendar tool: %s", name)
	}
}

func (h *Handler) listEvents(ctx context.Context, args map[string]any) (string, error) {
	startArg, _ := args["start_date"].(string)
	endArg, _ := args["end_date"].(string)
	maxResults := intArg(args, "max_results", 10)

	start := h.now().UTC()
	if startArg != "" {
		t, err := parseISOTime(startArg)
		if err != nil {
			return "", fmt.Errorf("invalid start_date %q: %w", startArg, err)
		}
		start = t
	}

	end := start.Add(defaultWindow)
	if endArg != "" {
		t, err := parseISOTime(endArg)
		if err != nil {
			return "", fmt.Errorf("invalid end_date %q: %w", endArg, err)
		}
		end = t
	}

	events, err := h.client.ListEvents(ctx, start, end, maxResults)
	if err != nil {
		return "", fmt.Errorf("list events: %w", err)
	}

	data := make([]map[string]any, 0, len(events))
	for _, e := range events {
		data = append(data, map[string]any{
			"id":          e.ID,
			"title":       e.Title,
			"description": e.Description,
			"start_time":  e.Start.Format(time.RFC3339),
			"end_time":    e.End.Format(time.RFC3339),
			"location":    e.Location,
			"attendees":   e.Attendees,
		})
	}

	out, err := json.Marshal(map[string]any{
		"events": data,
		"total":  len(data),
	})
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(out), nil
}

func (h *Handler) createEvent(ctx context.Context, args map[string]any) (string, error) {
	title, _ := args["title"].(string)
	startArg, _ := args["start_time"].(string)
	endArg, _ := args["end_time"].(string)
	description, _ := args["description"].(string)
	location, _ := args["location"].(string)

	if title == "" || startArg == "" || endArg == "" {
		return "", fmt.Errorf("missing required fields: title, start_time, end_time")
	}

	start, err := parseISOTime(startArg)
	if err != nil {
		return "", fmt.Errorf("invalid start_time %q: %w", startArg, err)
	}
	end, err := parseISOTime(endArg)
	if err != nil {
		return "", fmt.Errorf("invalid end_time %q: %w", endArg, err)
	}

	id, err := h.client.CreateEvent(ctx, title, start, end, description, location)
	if err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}

	out, _ := json.Marshal(map[string]any{
		"event_id":   id,
		"message":    fmt.Sprintf("Event '%s' created successfully", title),
		"start_time": startArg,
		"end_time":   endArg,
	})
	return string(out), nil
}

// parseISOTime accepts RFC 3339 or a bare local timestamp without
// zone, which is how the model usually writes times.
func parseISOTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format")
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
