package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-distribution/internal/app"
	"github.com/odyssey-erp/odyssey-distribution/internal/approvals"
	"github.com/odyssey-erp/odyssey-distribution/internal/auth"
	"github.com/odyssey-erp/odyssey-distribution/internal/billing"
	"github.com/odyssey-erp/odyssey-distribution/internal/delivery"
	"github.com/odyssey-erp/odyssey-distribution/internal/documents"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/notify"
	"github.com/odyssey-erp/odyssey-distribution/internal/observability"
	"github.com/odyssey-erp/odyssey-distribution/internal/picking"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/db"
	"github.com/odyssey-erp/odyssey-distribution/internal/rbac"
	"github.com/odyssey-erp/odyssey-distribution/internal/returns"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/internal/transfer"
	"github.com/odyssey-erp/odyssey-distribution/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Warn("notifier close", slog.Any("error", err))
		}
	}()

	renderer, err := documents.New(cfg.PDFRenderer, cfg.GotenbergURL)
	if err != nil {
		logger.Error("init pdf renderer", slog.Any("error", err))
		os.Exit(1)
	}

	catalog := rbac.DefaultCatalog()
	tokens, err := auth.NewTokens(cfg.JWTSecret, catalog, shared.SystemClock)
	if err != nil {
		logger.Error("init tokens", slog.Any("error", err))
		os.Exit(1)
	}
	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{Logger: logger}
	clock := shared.Clock(shared.SystemClock)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), logger)
	approvalRepo := approvals.NewRepository(pool)
	quotationService := quotations.NewService(quotations.NewRepository(pool), approvalRepo, notifier, logger)
	orderService := orders.NewService(orders.NewRepository(pool), notifier, logger)
	pickingService := picking.NewService(picking.NewRepository(pool), renderer, notifier, logger)
	deliveryService := delivery.NewService(delivery.NewRepository(pool), renderer, notifier, logger)
	billingService := billing.NewService(billing.NewRepository(pool), renderer, notifier, cfg.InvoiceDueDays, logger)
	returnService := returns.NewService(returns.NewRepository(pool), notifier, logger)
	transferService := transfer.NewService(transfer.NewRepository(pool), notifier, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		Tokens:             tokens,
		Keys:               shared.NewIdempotencyStore(pool),
		Clock:              clock,
		InventoryHandler:   inventory.NewHandler(logger, inventoryService, rbacMiddleware, clock),
		ApprovalsHandler:   approvals.NewHandler(logger, approvalRepo, rbacMiddleware),
		QuotationHandler:   quotations.NewHandler(logger, quotationService, rbacMiddleware, clock),
		OrderHandler:       orders.NewHandler(logger, orderService, rbacMiddleware, clock),
		PickingHandler:     picking.NewHandler(logger, pickingService, rbacMiddleware, clock),
		DeliveryHandler:    delivery.NewHandler(logger, deliveryService, rbacMiddleware, clock),
		BillingHandler:     billing.NewHandler(logger, billingService, rbacMiddleware, clock),
		ReturnHandler:      returns.NewHandler(logger, returnService, rbacMiddleware, clock),
		TransferHandler:    transfer.NewHandler(logger, transferService, rbacMiddleware, clock),
		PermissionsHandler: rbac.NewPermissionsHandler(catalog),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
}
