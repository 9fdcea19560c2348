package returns

import (
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

// MountRoutes registers sales return routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sales-returns", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermReturnView)).Get("/", h.List)
		r.With(h.rbac.RequireAny(shared.PermReturnView)).Get("/{id}", h.Show)
		r.With(h.rbac.RequireAll(shared.PermReturnCreate)).Post("/", h.Create)
		r.With(h.rbac.RequireAll(shared.PermReturnCreate)).Post("/{id}/cancel", h.Cancel)
		r.With(h.rbac.RequireAll(shared.PermReturnApprove)).Post("/{id}/approve", h.Approve)
		r.With(h.rbac.RequireAll(shared.PermReturnApprove)).Post("/{id}/complete", h.Complete)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := httpx.QueryInt64(r, "invoice_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	items, total, err := h.service.List(r.Context(), ListFilter{InvoiceID: invoiceID, Status: Status(r.URL.Query().Get("status")), Page: page})
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "list sales returns"))
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
	sr, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": sr})
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
	sr, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "create sales return"))
		return
	}
	httpx.Message(w, http.StatusCreated, "Sales return created.", sr)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	sr, err := h.service.Approve(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "approve sales return"))
		return
	}
	httpx.Message(w, http.StatusOK, "Sales return approved.", sr)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	sr, err := h.service.Complete(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "complete sales return"))
		return
	}
	httpx.Message(w, http.StatusOK, "Sales return completed.", sr)
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
	sr, err := h.service.Cancel(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "cancel sales return"))
		return
	}
	httpx.Message(w, http.StatusOK, "Sales return cancelled.", sr)
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
