package notify

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Notifier delivers a reminder when it fires. Satisfied by
// [Publisher.Notify].
type Notifier func(ctx context.Context, n Notification) error

// Reminder is one pending scheduled notification.
type Reminder struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	RemindAt  time.Time `json:"remind_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Reminders schedules one-shot reminders in memory. Each reminder gets
// its own timer; state does not survive restarts.
type Reminders struct {
	notify Notifier
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingReminder
}

type pendingReminder struct {
	Reminder
	timer *time.Timer
}

// NewReminders creates an empty reminder scheduler.
func NewReminders(notify Notifier, logger *slog.Logger) *Reminders {
	return &Reminders{
		notify:  notify,
		logger:  logger,
		pending: make(map[string]*pendingReminder),
	}
}

// Schedule registers a reminder to fire at remindAt. A time already in
// the past fires immediately.
func (r *Reminders) Schedule(id, title, message string, remindAt time.Time) {
	now := time.Now()
	if !remindAt.After(now) {
		r.fire(Reminder{ID: id, Title: title, Message: message, RemindAt: remindAt, CreatedAt: now})
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rem := &pendingReminder{
		Reminder: Reminder{
			ID:        id,
			Title:     title,
			Message:   message,
			RemindAt:  remindAt,
			CreatedAt: now,
		},
	}
	rem.timer = time.AfterFunc(time.Until(remindAt), func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
		r.fire(rem.Reminder)
	})
	r.pending[id] = rem

	r.logger.Info("reminder scheduled", "id", id, "title", title, "remind_at", remindAt)
}

// Cancel removes a pending reminder, reporting whether it existed.
func (r *Reminders) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rem, ok := r.pending[id]
	if !ok {
		return false
	}
	rem.timer.Stop()
	delete(r.pending, id)

	r.logger.Info("reminder cancelled", "id", id)
	return true
}

// List returns all pending reminders ordered by fire time.
func (r *Reminders) List() []Reminder {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Reminder, 0, len(r.pending))
	for _, rem := range r.pending {
		out = append(out, rem.Reminder)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemindAt.Before(out[j].RemindAt) })
	return out
}

// Stop cancels every pending reminder. Used at shutdown.
func (r *Reminders) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rem := range r.pending {
		rem.timer.Stop()
		delete(r.pending, id)
	}
}

func (r *Reminders) fire(rem Reminder) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	r.logger.Info("reminder fired", "id", rem.ID, "title", rem.Title)
	if err := r.notify(ctx, Notification{Title: rem.Title, Message: rem.Message}); err != nil {
		r.logger.Error("reminder delivery failed", "id", rem.ID, "error", err)
	}
}
