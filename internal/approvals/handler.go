package approvals

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-distribution/internal/rbac"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// ListFilter narrows approval listings.
type ListFilter struct {
	Subject shared.Ref
	Status  Status
}

// Lister reads approvals outside workflow transactions.
type Lister interface {
	ListApprovals(ctx context.Context, filter ListFilter) ([]Approval, error)
}

// Handler exposes the approval inbox.
type Handler struct {
	logger *slog.Logger
	lister Lister
	rbac   rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, lister Lister, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, lister: lister, rbac: rbac}
}

// MountRoutes registers GET /approvals.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireAny(shared.PermQuotationApprove, shared.PermReturnApprove, shared.PermTransferApprove)).
		Get("/approvals", h.list)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: Status(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("subject"); raw != "" {
		ref, err := shared.ParseRef(raw)
		if err != nil {
			httpx.RespondError(w, h.logger, shared.NewValidationError("subject", "must look like QUOTATION:12"))
			return
		}
		filter.Subject = ref
	}
	if filter.Status != "" && filter.Status != StatusPending && filter.Status != StatusApproved && filter.Status != StatusRejected {
		httpx.RespondError(w, h.logger, shared.NewValidationError("status", "must be PENDING, APPROVED or REJECTED"))
		return
	}
	items, err := h.lister.ListApprovals(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err, slog.String("op", "list approvals"))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}
