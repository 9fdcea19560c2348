package inventory

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-distribution/internal/rbac"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	clock   shared.Clock
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, clock shared.Clock) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, clock: clock}
}

// MountRoutes registers inventory routes under /stock.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermStockView, shared.PermStockAdjust))
		r.Get("/", h.listStock)
		r.Get("/movements", h.listMovements)
		r.Get("/movements/export", h.exportMovements)
		r.Get("/reconcile", h.reconcile)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermStockAdjust))
		r.Post("/adjustments", h.adjust)
	})
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	rows, total, err := h.service.ListStock(r.Context(), StockFilter{ProductID: productID, WarehouseID: warehouseID, Page: page})
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "list stock"))
		return
	}
	type stockRow struct {
		ProductStock
		Available int64 `json:"available_quantity"`
	}
	out := make([]stockRow, 0, len(rows))
	for _, s := range rows {
		out = append(out, stockRow{ProductStock: s, Available: s.Available()})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out, "meta": shared.NewPagination(page, total)})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMovementFilter(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	moves, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "list movements"))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": moves})
}

func (h *Handler) exportMovements(w http.ResponseWriter, r *http.Request) {
	filter, err := parseMovementFilter(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	body, err := h.service.ExportMovements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "export movements"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=stock-movements.xlsx")
	_, _ = w.Write(body)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	rec, err := h.service.Reconcile(r.Context(), productID, warehouseID)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "reconcile stock"))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r, h.clock)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in AdjustInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	move, err := h.service.Adjust(r.Context(), actor, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "adjust stock"))
		return
	}
	httpx.Message(w, http.StatusCreated, "Stock adjusted.", move)
}

func parseMovementFilter(r *http.Request) (MovementFilter, error) {
	var filter MovementFilter
	verr := &shared.ValidationError{}
	var err error
	if filter.ProductID, err = httpx.QueryInt64(r, "product_id"); err != nil {
		verr.Add("product_id", "must be an integer")
	}
	if filter.WarehouseID, err = httpx.QueryInt64(r, "warehouse_id"); err != nil {
		verr.Add("warehouse_id", "must be an integer")
	}
	q := r.URL.Query()
	if raw := q.Get("reference"); raw != "" {
		if filter.Reference, err = shared.ParseRef(raw); err != nil {
			verr.Add("reference", "must look like SALES_ORDER:12")
		}
	}
	if raw := q.Get("from"); raw != "" {
		if filter.From, err = time.Parse("2006-01-02", raw); err != nil {
			verr.Add("from", "must be a date (YYYY-MM-DD)")
		}
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			verr.Add("to", "must be a date (YYYY-MM-DD)")
		} else {
			filter.To = to.Add(24*time.Hour - time.Nanosecond)
		}
	}
	return filter, verr.OrNil()
}
