package shared

import (
	"context"
	"log/slog"
)

// Severity grades a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Notification is a fire-and-forget message to a user or a role.
type Notification struct {
	UserID   int64    `json:"user_id,omitempty"`
	Role     string   `json:"role,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Link     string   `json:"link,omitempty"`
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Outbox buffers notifications raised inside a transaction until it commits.
type Outbox struct {
	pending []Notification
}

// Add queues a notification.
func (o *Outbox) Add(n Notification) {
	o.pending = append(o.pending, n)
}

// Pending returns queued notifications.
func (o *Outbox) Pending() []Notification {
	return o.pending
}

// Flush hands every queued notification to the notifier. Delivery failures are logged only.
func (o *Outbox) Flush(ctx context.Context, notifier Notifier, logger *slog.Logger) {
	if o == nil || notifier == nil {
		return
	}
	for _, n := range o.pending {
		if err := notifier.Notify(ctx, n); err != nil && logger != nil {
			logger.Warn("notify", slog.String("message", n.Message), slog.Any("error", err))
		}
	}
	o.pending = nil
}
