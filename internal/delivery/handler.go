package delivery

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-distribution/internal/rbac"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Handler manages delivery order endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	clock   shared.Clock
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, clock shared.Clock) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, clock: clock}
}

// MountRoutes registers delivery order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	// Delivery Order routes - View
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDeliveryOrderView))
		r.Get("/delivery-orders", h.List)
		r.Get("/delivery-orders/{id}", h.Show)
		r.Get("/delivery-orders/{id}/pdf", h.PDF)
	})

	// Delivery Order routes - Create
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDeliveryOrderCreate))
		r.Post("/delivery-orders", h.Create)
		r.Post("/delivery-orders/{id}/ready", h.Ready)
	})

	// Delivery Order routes - Ship / Receive
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDeliveryOrderShip))
		r.Post("/delivery-orders/{id}/ship", h.Ship)
		r.Post("/delivery-orders/{id}/receive", h.Receive)
	})

	// Delivery Order routes - Cancel
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDeliveryOrderCancel))
		r.Post("/delivery-orders/{id}/cancel", h.Cancel)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orderID, err := httpx.QueryInt64(r, "sales_order_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	items, total, err := h.service.List(r.Context(), ListFilter{SalesOrderID: orderID, Status: Status(r.URL.Query().Get("status")), Page: page})
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "list delivery orders"))
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
	do, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": do})
}

func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	pdf, do, err := h.service.RenderPDF(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "render delivery order"))
		return
	}
	httpx.PDF(w, do.Number, pdf)
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
	do, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "create delivery order"))
		return
	}
	httpx.Message(w, http.StatusCreated, "Delivery order created.", do)
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	do, err := h.service.MarkReady(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "ready delivery order"))
		return
	}
	httpx.Message(w, http.StatusOK, "Delivery order is ready.", do)
}

func (h *Handler) Ship(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	do, err := h.service.MarkAsShipped(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "ship delivery order"))
		return
	}
	httpx.Message(w, http.StatusOK, "Delivery order shipped.", do)
}

func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req ReceiveRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, h.logger, err)
			return
		}
	}
	do, err := h.service.MarkAsDelivered(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "receive delivery order"))
		return
	}
	httpx.Message(w, http.StatusOK, "Delivery recorded.", do)
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
	do, err := h.service.Cancel(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "cancel delivery order"))
		return
	}
	httpx.Message(w, http.StatusOK, "Delivery order cancelled.", do)
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
