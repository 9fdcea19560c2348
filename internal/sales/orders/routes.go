package orders

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSalesOrderView))
		r.Get("/sales-orders", h.List)
		r.Get("/sales-orders/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSalesOrderCreate))
		r.Post("/sales-orders", h.Create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSalesOrderEdit))
		r.Post("/sales-orders/{id}/update-status", h.UpdateStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermSalesOrderCancel))
		r.Post("/sales-orders/{id}/cancel", h.Cancel)
	})
}
