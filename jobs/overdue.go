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
	// TaskInvoiceOverdueSweep promotes past-due invoices to OVERDUE.
	TaskInvoiceOverdueSweep = "billing:overdue_sweep"

	jobOverdueSweep = "invoice_overdue_sweep"
	overdueLockTTL  = 5 * time.Minute
)

// OverdueSweeper is implemented by billing.Service.
type OverdueSweeper interface {
	SweepOverdue(ctx context.Context, actor shared.Actor) (int, error)
}

// Locker runs fn while holding a cluster-wide lock. ran is false when another holder owns it.
type Locker interface {
	RunExclusive(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) (ran bool, err error)
}

// OverdueSweepJob runs the sweep under a redis lock so overlapping schedulers do not race.
type OverdueSweepJob struct {
	sweeper OverdueSweeper
	locker  Locker
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	clock   shared.Clock
	actorID int64
}

// NewOverdueSweepJob builds the job. actorID is the system user stamped on activity logs.
func NewOverdueSweepJob(sweeper OverdueSweeper, locker Locker, metrics *jobmetrics.Metrics, logger *slog.Logger, clock shared.Clock, actorID int64) *OverdueSweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return &OverdueSweepJob{
		sweeper: sweeper,
		locker:  locker,
		metrics: metrics,
		logger:  logger.With(slog.String("job", jobOverdueSweep)),
		clock:   clock,
		actorID: actorID,
	}
}

// NewOverdueSweepTask builds the cron task.
func NewOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskInvoiceOverdueSweep, nil, asynq.Queue(QueueDefault))
}

// Handle implements asynq.HandlerFunc.
func (j *OverdueSweepJob) Handle(ctx context.Context, _ *asynq.Task) error {
	return j.Run(ctx)
}

// Run sweeps once.
func (j *OverdueSweepJob) Run(ctx context.Context) error {
	tracker := j.metrics.Track(jobOverdueSweep)
	var swept int
	ran, err := j.locker.RunExclusive(ctx, shared.JobLockKey(jobOverdueSweep), overdueLockTTL, func(ctx context.Context) error {
		var err error
		swept, err = j.sweeper.SweepOverdue(ctx, shared.NewActor(j.actorID, j.clock()))
		return err
	})
	if !ran && err == nil {
		j.metrics.Skipped(jobOverdueSweep)
		j.logger.Info("overdue sweep skipped, lock held elsewhere")
		return nil
	}
	if err != nil {
		j.logger.Error("overdue sweep", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics.AddItems(jobOverdueSweep, swept)
	return tracker.End(nil)
}
