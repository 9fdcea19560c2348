package picking

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

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/picking-lists", func(r chi.Router) {
		r.With(h.rbac.RequireAny(shared.PermPickingView, shared.PermPickingManage)).Get("/", h.List)
		r.With(h.rbac.RequireAny(shared.PermPickingView, shared.PermPickingManage)).Get("/{id}", h.Show)
		r.With(h.rbac.RequireAny(shared.PermPickingView, shared.PermPickingManage)).Get("/{id}/pdf", h.PDF)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAll(shared.PermPickingManage))
			r.Post("/", h.Create)
			r.Delete("/{id}", h.Delete)
			r.Post("/{id}/pick", h.Pick)
			r.Post("/{id}/complete", h.Complete)
		})
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.QueryInt64(r, "sales_order_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	lists, total, err := h.service.List(r.Context(), ListFilter{SalesOrderID: orderID, Status: Status(r.URL.Query().Get("status")), Page: page})
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "list picking lists"))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": lists, "meta": shared.NewPagination(page, total)})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	pl, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": pl})
}

func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	pdf, pl, err := h.service.RenderPDF(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "render picking list"))
		return
	}
	httpx.PDF(w, pl.Number, pdf)
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
	pl, err := h.service.CreateForOrder(r.Context(), actor, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("sales_order_id", req.SalesOrderID), slog.String("op", "create picking list"))
		return
	}
	httpx.Message(w, http.StatusCreated, "Picking list created.", pl)
}

func (h *Handler) Pick(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req PickRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	pl, err := h.service.Pick(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "pick"))
		return
	}
	httpx.Message(w, http.StatusOK, "Picked quantities recorded.", pl)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	pl, err := h.service.Complete(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "complete picking list"))
		return
	}
	httpx.Message(w, http.StatusOK, "Picking list completed.", pl)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "delete picking list"))
		return
	}
	httpx.Message(w, http.StatusOK, "Picking list deleted.", nil)
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
