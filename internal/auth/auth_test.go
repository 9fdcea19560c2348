package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/rbac"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

func fixedClock() time.Time { return time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC) }

func TestVerifyExpandsRoles(t *testing.T) {
	tokens, err := NewTokens("secret", rbac.DefaultCatalog(), fixedClock)
	require.NoError(t, err)
	raw, err := tokens.Issue(42, []string{rbac.RoleFinance}, []string{shared.PermStockAdjust}, time.Hour)
	require.NoError(t, err)

	principal, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(42), principal.UserID)
	assert.Contains(t, principal.Permissions, shared.PermPaymentRecord)
	assert.Contains(t, principal.Permissions, shared.PermStockAdjust)
	assert.NotContains(t, principal.Permissions, shared.PermQuotationApprove)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	tokens, err := NewTokens("secret", nil, fixedClock)
	require.NoError(t, err)
	expired, err := tokens.Issue(1, nil, nil, -time.Minute)
	require.NoError(t, err)
	_, err = tokens.Verify(expired)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	other, err := NewTokens("other", nil, fixedClock)
	require.NoError(t, err)
	foreign, err := other.Issue(1, nil, nil, time.Hour)
	require.NoError(t, err)
	_, err = tokens.Verify(foreign)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestMiddleware(t *testing.T) {
	tokens, err := NewTokens("secret", nil, fixedClock)
	require.NoError(t, err)
	var seen *shared.Principal
	h := tokens.Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	raw, err := tokens.Issue(5, []string{rbac.RoleWarehouse}, nil, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, int64(5), seen.UserID)
	assert.Contains(t, seen.Permissions, shared.PermPickingManage)
}
