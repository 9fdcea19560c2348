package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// PermissionsHandler exposes the caller's effective permissions and the role catalogue.
type PermissionsHandler struct {
	catalog Catalog
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(catalog Catalog) *PermissionsHandler {
	return &PermissionsHandler{catalog: catalog}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/me/permissions", h.mine)
	r.Get("/permissions", h.listPermissions)
}

func (h *PermissionsHandler) mine(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, nil, shared.ErrUnauthorized)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": principal.UserID, "permissions": principal.Permissions})
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": h.catalog, "permissions": h.catalog.KnownPermissions()})
}
