package quotations

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

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermQuotationView))
		r.Get("/quotations", h.List)
		r.Get("/quotations/{id}", h.Show)
		r.Get("/quotations/{id}/approvals", h.Approvals)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermQuotationCreate))
		r.Post("/quotations", h.Create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermQuotationEdit))
		r.Put("/quotations/{id}", h.Update)
		r.Delete("/quotations/{id}", h.Delete)
		r.Post("/quotations/{id}/submit", h.Submit)
		r.Post("/quotations/{id}/revise", h.Revise)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermQuotationApprove))
		r.Post("/quotations/{id}/approve", h.Approve)
		r.Post("/quotations/{id}/reject", h.Reject)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermQuotationConvert, shared.PermSalesOrderCreate))
		r.Post("/quotations/{id}/convert", h.Convert)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.QueryInt64(r, "customer_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	items, total, err := h.service.List(r.Context(), ListFilter{CustomerID: customerID, Status: Status(r.URL.Query().Get("status")), Page: page})
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "list quotations"))
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
	q, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": q})
}

func (h *Handler) Approvals(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	history, err := h.service.Approvals(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": history})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r, h.clock)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req CreateQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "create quotation"))
		return
	}
	httpx.Message(w, http.StatusCreated, "Quotation created.", q)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req UpdateQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q, err := h.service.Update(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "update quotation"))
		return
	}
	httpx.Message(w, http.StatusOK, "Quotation updated.", q)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "delete quotation"))
		return
	}
	httpx.Message(w, http.StatusOK, "Quotation deleted.", nil)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Submit(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "submit quotation"))
		return
	}
	httpx.Message(w, http.StatusOK, "Quotation submitted for approval.", q)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Approve, "Quotation approved.")
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.Reject, "Quotation rejected.")
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, actor shared.Actor, id int64, notes string) (Quotation, error), msg string) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req DecisionRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	q, err := fn(r.Context(), actor, id, req.Notes)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "decide quotation"))
		return
	}
	httpx.Message(w, http.StatusOK, msg, q)
}

func (h *Handler) Revise(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	q, err := h.service.Revise(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "revise quotation"))
		return
	}
	httpx.Message(w, http.StatusOK, "Quotation reopened for editing.", q)
}

func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	so, err := h.service.Convert(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "convert quotation"))
		return
	}
	httpx.Message(w, http.StatusCreated, "Quotation converted to sales order.", so)
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
