package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-distribution/internal/app"
	"github.com/odyssey-erp/odyssey-distribution/internal/billing"
	"github.com/odyssey-erp/odyssey-distribution/internal/documents"
	"github.com/odyssey-erp/odyssey-distribution/internal/notify"
	"github.com/odyssey-erp/odyssey-distribution/internal/observability"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	locker := cache.NewLocker(redisClient)

	// The overdue sweep notifies invoice creators and never renders documents.
	notifier, err := notify.New(notify.Options{
		Backend:      cfg.Notifier,
		Queue:        jobs.QueueNotifications,
		RedisAddr:    cfg.RedisAddr,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaNotifyTopic,
		Logger:       logger,
	})
	if err != nil {
		logger.Error("init notifier", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = notifier.Close() }()
	renderer, err := documents.New("maroto", "")
	if err != nil {
		logger.Error("init renderer", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics().Jobs()
	billingService := billing.NewService(billing.NewRepository(pool), renderer, notifier, cfg.InvoiceDueDays, logger)

	notificationJob := jobs.NewNotificationJob(notify.NewStore(pool), logger, metrics, shared.SystemClock)
	overdueJob := jobs.NewOverdueSweepJob(billingService, locker, metrics, logger, shared.SystemClock, cfg.SystemActorID)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), locker, metrics, logger, shared.SystemClock)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotificationDeliver, Handler: notificationJob.Handle},
			{Type: jobs.TaskInvoiceOverdueSweep, Handler: overdueJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverdueSweepCron, Task: jobs.NewOverdueSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 3 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
