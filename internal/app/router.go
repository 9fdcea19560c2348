package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-distribution/internal/approvals"
	"github.com/odyssey-erp/odyssey-distribution/internal/auth"
	"github.com/odyssey-erp/odyssey-distribution/internal/billing"
	"github.com/odyssey-erp/odyssey-distribution/internal/delivery"
	"github.com/odyssey-erp/odyssey-distribution/internal/inventory"
	"github.com/odyssey-erp/odyssey-distribution/internal/observability"
	"github.com/odyssey-erp/odyssey-distribution/internal/picking"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-distribution/internal/rbac"
	"github.com/odyssey-erp/odyssey-distribution/internal/returns"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/internal/transfer"
	"github.com/odyssey-erp/odyssey-distribution/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Tokens  *auth.Tokens
	Keys    KeyStore
	Clock   shared.Clock

	InventoryHandler   *inventory.Handler
	ApprovalsHandler   *approvals.Handler
	QuotationHandler   *quotations.Handler
	OrderHandler       *orders.Handler
	PickingHandler     *picking.Handler
	DeliveryHandler    *delivery.Handler
	BillingHandler     *billing.Handler
	ReturnHandler      *returns.Handler
	TransferHandler    *transfer.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(params.Tokens.Middleware(params.Logger))
		if params.Keys != nil {
			r.Use(Idempotency(params.Keys, params.Metrics, params.Logger, params.Clock))
		}
		if params.InventoryHandler != nil {
			r.Route("/stock", params.InventoryHandler.MountRoutes)
		}
		if params.ApprovalsHandler != nil {
			params.ApprovalsHandler.MountRoutes(r)
		}
		if params.QuotationHandler != nil {
			params.QuotationHandler.MountRoutes(r)
		}
		if params.OrderHandler != nil {
			params.OrderHandler.MountRoutes(r)
		}
		if params.PickingHandler != nil {
			params.PickingHandler.MountRoutes(r)
		}
		if params.DeliveryHandler != nil {
			params.DeliveryHandler.MountRoutes(r)
		}
		if params.BillingHandler != nil {
			params.BillingHandler.MountRoutes(r)
		}
		if params.ReturnHandler != nil {
			params.ReturnHandler.MountRoutes(r)
		}
		if params.TransferHandler != nil {
			params.TransferHandler.MountRoutes(r)
		}
		if params.PermissionsHandler != nil {
			params.PermissionsHandler.MountRoutes(r)
		}
	})
	return r
}
