package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-distribution/internal/jobs"
	"github.com/odyssey-erp/odyssey-distribution/internal/notify"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

const (
	// QueueDefault carries scheduled sweeps.
	QueueDefault = "default"
	// QueueNotifications carries notification deliveries so a sweep backlog cannot delay them.
	QueueNotifications = "notifications"
	// TaskNotificationDeliver persists a queued notification.
	TaskNotificationDeliver = notify.TaskDeliver

	jobNotificationDeliver = "notification_deliver"
)

// NotificationSaver persists a notification into the inbox.
type NotificationSaver interface {
	Save(ctx context.Context, msg shared.Notification, at time.Time) error
}

// NotificationJob handles TaskNotificationDeliver.
type NotificationJob struct {
	store   NotificationSaver
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	clock   shared.Clock
}

func NewNotificationJob(store NotificationSaver, logger *slog.Logger, metrics *jobmetrics.Metrics, clock shared.Clock) *NotificationJob {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return &NotificationJob{store: store, logger: logger.With(slog.String("job", jobNotificationDeliver)), metrics: metrics, clock: clock}
}

// Handle decodes and stores the notification. Malformed payloads are not retried.
func (j *NotificationJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(jobNotificationDeliver)
	msg, err := notify.ParseDeliverTask(t)
	if err != nil {
		j.logger.Warn("discard notification", slog.Any("error", err))
		return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
	}
	if err := j.store.Save(ctx, msg, j.clock()); err != nil {
		return tracker.End(fmt.Errorf("save notification: %w", err))
	}
	return tracker.End(nil)
}
