package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-distribution/internal/jobs"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

const (
	// TaskIdempotencyCleanup drops expired Idempotency-Key records.
	TaskIdempotencyCleanup = "idempotency:cleanup"

	jobIdempotencyCleanup = "idempotency_cleanup"
	// IdempotencyRetention is how long a used key keeps rejecting replays.
	IdempotencyRetention = 72 * time.Hour
)

// KeyCleaner is implemented by shared.IdempotencyStore.
type KeyCleaner interface {
	Cleanup(ctx context.Context, now time.Time, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob prunes idempotency_keys.
type IdempotencyCleanupJob struct {
	store   KeyCleaner
	locker  Locker
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	clock   shared.Clock
}

func NewIdempotencyCleanupJob(store KeyCleaner, locker Locker, metrics *jobmetrics.Metrics, logger *slog.Logger, clock shared.Clock) *IdempotencyCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return &IdempotencyCleanupJob{
		store:   store,
		locker:  locker,
		metrics: metrics,
		logger:  logger.With(slog.String("job", jobIdempotencyCleanup)),
		clock:   clock,
	}
}

// NewIdempotencyCleanupTask builds the cron task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}

// Handle implements asynq.HandlerFunc.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := j.metrics.Track(jobIdempotencyCleanup)
	var removed int64
	ran, err := j.locker.RunExclusive(ctx, shared.JobLockKey(jobIdempotencyCleanup), time.Minute, func(ctx context.Context) error {
		var err error
		removed, err = j.store.Cleanup(ctx, j.clock(), IdempotencyRetention)
		return err
	})
	if !ran && err == nil {
		j.metrics.Skipped(jobIdempotencyCleanup)
		return nil
	}
	if err != nil {
		j.logger.Error("idempotency cleanup", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddItems(jobIdempotencyCleanup, int(removed))
	j.logger.Debug("idempotency keys pruned", slog.Int64("removed", removed))
	return tracker.End(nil)
}
