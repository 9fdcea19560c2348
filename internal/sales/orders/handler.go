package orders

import (
	"log/slog"
	"net/http"

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

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.QueryInt64(r, "customer_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	items, total, err := h.service.List(r.Context(), ListFilter{
		CustomerID: customerID,
		Status:     Status(r.URL.Query().Get("status")),
		Page:       page,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "list sales orders"))
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
	so, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": so})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r, h.clock)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	so, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "create sales order"))
		return
	}
	httpx.Message(w, http.StatusCreated, "Sales order created.", so)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	so, err := h.service.UpdateStatus(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "update sales order status"))
		return
	}
	httpx.Message(w, http.StatusOK, "Sales order status updated.", so)
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
	so, err := h.service.Cancel(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "cancel sales order"))
		return
	}
	httpx.Message(w, http.StatusOK, "Sales order cancelled.", so)
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
