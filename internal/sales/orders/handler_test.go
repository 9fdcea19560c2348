package orders_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/rbac"
	"github.com/odyssey-erp/odyssey-distribution/internal/sales/orders"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
	"github.com/odyssey-erp/odyssey-distribution/internal/testing/memdb"
)

func newRouter(t *testing.T, perms ...string) (http.Handler, *memdb.DB, int64) {
	t.Helper()
	db := memdb.New()
	wh := db.AddWarehouse("WH1")
	db.SetStock(1, wh, 10, 0)
	svc := orders.NewService(db.Orders(), &memdb.Recorder{}, nil)
	clock := func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) }
	h := orders.NewHandler(nil, svc, rbac.Middleware{}, clock)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := &shared.Principal{UserID: 10, Permissions: perms}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	h.MountRoutes(r)
	return r, db, wh
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHandlerCreateAndShow(t *testing.T) {
	h, db, _ := newRouter(t, shared.SalesScopes()...)

	rec, body := do(t, h, http.MethodPost, "/sales-orders",
		`{"customer_id":4,"warehouse_id":1,"items":[{"product_id":1,"quantity":3,"unit_price":"12.50"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Sales order created.", body["message"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "SO-001/WH1/03-2025", data["number"])
	assert.Equal(t, int64(3), db.Stock(1, 1).ReservedQuantity)

	rec, body = do(t, h, http.MethodGet, "/sales-orders/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PENDING", body["data"].(map[string]any)["status"])

	rec, body = do(t, h, http.MethodGet, "/sales-orders?status=PENDING", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["meta"].(map[string]any)["total"])

	rec, _ = do(t, h, http.MethodGet, "/sales-orders/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	h, _, _ := newRouter(t, shared.SalesScopes()...)

	rec, body := do(t, h, http.MethodPost, "/sales-orders", `{"customer_id":4,"warehouse_id":1,"items":[]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body["errors"], "items")

	rec, body = do(t, h, http.MethodPost, "/sales-orders",
		`{"customer_id":4,"warehouse_id":1,"items":[{"product_id":1,"quantity":50,"unit_price":"1"}]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body["message"], "product 1")

	rec, _ = do(t, h, http.MethodPost, "/sales-orders/abc/cancel", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlerCancelAndPermissions(t *testing.T) {
	h, db, _ := newRouter(t, shared.SalesScopes()...)
	rec, _ := do(t, h, http.MethodPost, "/sales-orders",
		`{"customer_id":4,"warehouse_id":1,"items":[{"product_id":1,"quantity":2,"unit_price":"5"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body := do(t, h, http.MethodPost, "/sales-orders/1/cancel", `{"reason":"duplicate"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "CANCELLED", body["data"].(map[string]any)["status"])
	assert.Zero(t, db.Stock(1, 1).ReservedQuantity)

	rec, _ = do(t, h, http.MethodPost, "/sales-orders/1/update-status", `{"status":"PROCESSING"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	viewer, _, _ := newRouter(t, shared.PermSalesOrderView)
	rec, _ = do(t, viewer, http.MethodGet, "/sales-orders", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, viewer, http.MethodPost, "/sales-orders", `{}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
