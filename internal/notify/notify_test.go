package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (c *captureNotifier) notify(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *captureNotifier) last() Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent[len(c.sent)-1]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduleFiresImmediatelyForPastTime(t *testing.T) {
	capture := &captureNotifier{}
	r := NewReminders(capture.notify, testLogger())
	defer r.Stop()

	r.Schedule("abc12345", "Standup", "Daily standup", time.Now().Add(-time.Minute))

	deadline := time.Now().Add(2 * time.Second)
	for capture.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if capture.count() != 1 {
		t.Fatalf("expected immediate fire, got %d notifications", capture.count())
	}
	if got := capture.last().Title; got != "Standup" {
		t.Errorf("title = %q, want %q", got, "Standup")
	}
	if len(r.List()) != 0 {
		t.Errorf("fired reminder should not remain pending")
	}
}

func TestScheduleCancelList(t *testing.T) {
	capture := &captureNotifier{}
	r := NewReminders(capture.notify, testLogger())
	defer r.Stop()

	later := time.Now().Add(time.Hour)
	r.Schedule("bbb", "Second", "later", later.Add(time.Minute))
	r.Schedule("aaa", "First", "sooner", later)

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(list))
	}
	if list[0].ID != "aaa" || list[1].ID != "bbb" {
		t.Errorf("list not ordered by fire time: %q, %q", list[0].ID, list[1].ID)
	}

	if !r.Cancel("aaa") {
		t.Error("Cancel(aaa) = false, want true")
	}
	if r.Cancel("aaa") {
		t.Error("second Cancel(aaa) = true, want false")
	}
	if len(r.List()) != 1 {
		t.Errorf("expected 1 pending after cancel, got %d", len(r.List()))
	}
	if capture.count() != 0 {
		t.Errorf("cancelled reminders must not fire, got %d", capture.count())
	}
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"30m", now.Add(30 * time.Minute)},
		{"in 10 minutes", now.Add(10 * time.Minute)},
		{"in 2 hours", now.Add(2 * time.Hour)},
		{"in 3 days", now.Add(72 * time.Hour)},
		{"2025-06-02T09:00:00Z", time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)},
		{"tomorrow", now.Add(24 * time.Hour)},
		{"next week", now.Add(7 * 24 * time.Hour)},
		{"15:30", time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)},
		{"9:00am", time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}, // already past, rolls to tomorrow
	}
	for _, tc := range tests {
		got, err := parseWhen(tc.in, now)
		if err != nil {
			t.Errorf("parseWhen(%q) error: %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("parseWhen(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseWhenRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "whenever", "in soon", "in 5 fortnights"} {
		if _, err := parseWhen(in, time.Now()); err == nil {
			t.Errorf("parseWhen(%q) succeeded, want error", in)
		}
	}
}

func TestSendNotificationDefaults(t *testing.T) {
	capture := &captureNotifier{}
	h := NewHandler(capture.notify, NewReminders(capture.notify, testLogger()), testLogger())

	out, err := h.Execute(context.Background(), "send_notification", map[string]any{
		"message": "hello",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "Notification sent successfully") {
		t.Errorf("output = %q, want success message", out)
	}

	n := capture.last()
	if n.Title != "Jarvis Notification" {
		t.Errorf("default title = %q", n.Title)
	}
	if n.Timeout != 10 {
		t.Errorf("default timeout = %d, want 10", n.Timeout)
	}
}

func TestSendNotificationRequiresMessage(t *testing.T) {
	capture := &captureNotifier{}
	h := NewHandler(capture.notify, NewReminders(capture.notify, testLogger()), testLogger())

	if _, err := h.Execute(context.Background(), "send_notification", map[string]any{}); err == nil {
		t.Fatal("expected error for missing message")
	}
}

func TestScheduleReminderTool(t *testing.T) {
	capture := &captureNotifier{}
	r := NewReminders(capture.notify, testLogger())
	defer r.Stop()
	h := NewHandler(capture.notify, r, testLogger())
	h.now = func() time.Time { return time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC) }

	out, err := h.Execute(context.Background(), "schedule_reminder", map[string]any{
		"message": "take a break",
		"when":    "in 30 minutes",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var resp struct {
		ReminderID string `json:"reminder_id"`
		Message    string `json:"message"`
		RemindAt   string `json:"remind_at"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if len(resp.ReminderID) != 8 {
		t.Errorf("reminder_id = %q, want 8-char ID", resp.ReminderID)
	}
	if resp.RemindAt != "2025-06-01T14:30:00Z" {
		t.Errorf("remind_at = %q", resp.RemindAt)
	}
	if !strings.HasPrefix(resp.Message, "Reminder scheduled for ") {
		t.Errorf("message = %q", resp.Message)
	}
	if len(r.List()) != 1 {
		t.Errorf("expected 1 pending reminder")
	}
}

func TestCancelReminderTool(t *testing.T) {
	capture := &captureNotifier{}
	r := NewReminders(capture.notify, testLogger())
	defer r.Stop()
	h := NewHandler(capture.notify, r, testLogger())

	r.Schedule("deadbeef", "T", "m", time.Now().Add(time.Hour))

	out, err := h.Execute(context.Background(), "cancel_reminder", map[string]any{"reminder_id": "deadbeef"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "Reminder deadbeef cancelled") {
		t.Errorf("output = %q", out)
	}

	if _, err := h.Execute(context.Background(), "cancel_reminder", map[string]any{"reminder_id": "deadbeef"}); err == nil {
		t.Fatal("expected error cancelling unknown reminder")
	}
}

func TestListRemindersTool(t *testing.T) {
	capture := &captureNotifier{}
	r := NewReminders(capture.notify, testLogger())
	defer r.Stop()
	h := NewHandler(capture.notify, r, testLogger())

	out, err := h.Execute(context.Background(), "list_reminders", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var resp struct {
		Reminders []json.RawMessage `json:"reminders"`
		Total     int               `json:"total"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("unmarshal output: %v", err)
	}
	if resp.Total != 0 || len(resp.Reminders) != 0 {
		t.Errorf("expected empty list, got %s", out)
	}
}

func TestHandlerDefinitionNames(t *testing.T) {
	h := NewHandler((&captureNotifier{}).notify, NewReminders(nil, testLogger()), testLogger())

	defs := h.Definitions()
	if len(defs) != len(ToolNames) {
		t.Fatalf("len(Definitions()) = %d, want %d", len(defs), len(ToolNames))
	}
	for i, def := range defs {
		if def.Name != ToolNames[i] {
			t.Errorf("def[%d].Name = %q, want %q", i, def.Name, ToolNames[i])
		}
	}
}
