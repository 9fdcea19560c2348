package transfer

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-distribution/internal/rbac"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	clock   shared.Clock
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, clock shared.Clock) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, clock: clock}
}

// MountRoutes registers warehouse transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/warehouse-transfers", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermTransferView)).Get("/", h.List)
		r.With(h.rbac.RequireAny(shared.PermTransferView)).Get("/{id}", h.Show)
		r.With(h.rbac.RequireAll(shared.PermTransferRequest)).Post("/", h.Request)
		r.With(h.rbac.RequireAll(shared.PermTransferApprove)).Post("/{id}/approve", h.action(h.service.Approve, "Transfer approved.", "approve transfer"))
		r.With(h.rbac.RequireAll(shared.PermTransferExecute)).Post("/{id}/deliver", h.action(h.service.Deliver, "Transfer in transit.", "deliver transfer"))
		r.With(h.rbac.RequireAll(shared.PermTransferExecute)).Post("/{id}/receive", h.action(h.service.Receive, "Transfer received.", "receive transfer"))
		r.With(h.rbac.RequireAny(shared.PermTransferRequest, shared.PermTransferApprove)).Post("/{id}/cancel", h.Cancel)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := httpx.QueryInt64(r, "warehouse_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	productID, err := httpx.QueryInt64(r, "product_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	items, total, err := h.service.List(r.Context(), ListFilter{
		WarehouseID: warehouseID,
		ProductID:   productID,
		Status:      Status(r.URL.Query().Get("status")),
		Page:        page,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "list transfers"))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "meta": shared.NewPagination(page, total)})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	t, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": t})
}

func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r, h.clock)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req RequestInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	t, err := h.service.Request(r.Context(), actor, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "request transfer"))
		return
	}
	httpx.Message(w, http.StatusCreated, "Transfer requested.", t)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	t, err := h.service.Cancel(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "cancel transfer"))
		return
	}
	httpx.Message(w, http.StatusOK, "Transfer cancelled.", t)
}

func (h *Handler) action(fn func(context.Context, shared.Actor, int64) (Transfer, error), msg, op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, id, ok := h.actorAndID(w, r)
		if !ok {
			return
		}
		t, err := fn(r.Context(), actor, id)
		if err != nil {
			httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", op))
			return
		}
		httpx.Message(w, http.StatusOK, msg, t)
	}
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (shared.Actor, int64, bool) {
	actor, err := httpx.Actor(r, h.clock)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return shared.Actor{}, 0, false
	}
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return shared.Actor{}, 0, false
	}
	return actor, id, true
}
