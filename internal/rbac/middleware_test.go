package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

func TestRequireAnyAndAll(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	mw := Middleware{}

	cases := []struct {
		name      string
		principal *shared.Principal
		handler   http.Handler
		want      int
	}{
		{"anonymous", nil, mw.RequireAny(shared.PermQuotationView)(ok), http.StatusUnauthorized},
		{"any granted", &shared.Principal{UserID: 1, Permissions: []string{"SALES.QUOTATION.VIEW"}}, mw.RequireAny(shared.PermQuotationView, shared.PermQuotationEdit)(ok), http.StatusNoContent},
		{"all missing one", &shared.Principal{UserID: 1, Permissions: []string{shared.PermQuotationView}}, mw.RequireAll(shared.PermQuotationView, shared.PermQuotationEdit)(ok), http.StatusForbidden},
		{"all granted", &shared.Principal{UserID: 1, Permissions: []string{shared.PermQuotationView, shared.PermQuotationEdit}}, mw.RequireAll(shared.PermQuotationView, shared.PermQuotationEdit)(ok), http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.principal != nil {
				req = req.WithContext(shared.ContextWithPrincipal(req.Context(), tc.principal))
			}
			rec := httptest.NewRecorder()
			tc.handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCatalogPermissions(t *testing.T) {
	catalog := DefaultCatalog()
	perms := catalog.Permissions([]string{"Approver"}, []string{" Inventory.Stock.View "})
	require.Contains(t, perms, shared.PermQuotationApprove)
	require.Contains(t, perms, shared.PermStockView)
	require.NotContains(t, perms, shared.PermQuotationCreate)
	assert.ElementsMatch(t, catalog.KnownPermissions(), catalog.Permissions([]string{RoleAdmin}, nil))
}
