package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-distribution/internal/rbac"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Handler exposes invoice, payment and credit note endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	clock   shared.Clock
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, clock shared.Clock) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, clock: clock}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermInvoiceView))
		r.Get("/invoices", h.List)
		r.Get("/invoices/{id}", h.Show)
		r.Get("/invoices/{id}/pdf", h.PDF)
		r.Get("/invoices/{id}/payments", h.ListPayments)
		r.Get("/credit-notes", h.ListCreditNotes)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInvoiceCreate))
		r.Post("/invoices", h.Create)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermInvoiceEdit))
		r.Post("/invoices/{id}/update-status", h.UpdateStatus)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPaymentRecord))
		r.Post("/invoices/{id}/payments", h.RecordPayment)
		r.Put("/payments/{id}", h.UpdatePayment)
		r.Delete("/payments/{id}", h.DeletePayment)
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.QueryInt64(r, "customer_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	orderID, err := httpx.QueryInt64(r, "sales_order_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	items, total, err := h.service.List(r.Context(), InvoiceFilter{
		CustomerID:   customerID,
		SalesOrderID: orderID,
		Status:       InvoiceStatus(r.URL.Query().Get("status")),
		Page:         page,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "list invoices"))
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
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": inv})
}

func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	pdf, inv, err := h.service.RenderPDF(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "render invoice"))
		return
	}
	httpx.PDF(w, inv.Number, pdf)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := httpx.Actor(r, h.clock)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req CreateInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "create invoice"))
		return
	}
	httpx.Message(w, http.StatusCreated, "Invoice created.", inv)
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
	inv, err := h.service.UpdateStatus(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("id", id), slog.String("op", "update invoice status"))
		return
	}
	httpx.Message(w, http.StatusOK, "Invoice status updated.", inv)
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	payments, err := h.service.Payments(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("invoice_id", id))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": payments})
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req PaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.RecordPayment(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("invoice_id", id), slog.String("op", "record payment"))
		return
	}
	httpx.Message(w, http.StatusCreated, "Payment recorded.", p)
}

func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req UpdatePaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	p, err := h.service.UpdatePayment(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("payment_id", id), slog.String("op", "update payment"))
		return
	}
	httpx.Message(w, http.StatusOK, "Payment updated.", p)
}

func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePayment(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, h.logger, err, slog.Int64("payment_id", id), slog.String("op", "delete payment"))
		return
	}
	httpx.Message(w, http.StatusOK, "Payment deleted.", nil)
}

func (h *Handler) ListCreditNotes(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.QueryInt64(r, "customer_id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	page := httpx.PageParams(r)
	notes, total, err := h.service.CreditNotes(r.Context(), CreditNoteFilter{
		CustomerID: customerID,
		Status:     CreditNoteStatus(r.URL.Query().Get("status")),
		Page:       page,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "list credit notes"))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": notes, "meta": shared.NewPagination(page, total)})
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
