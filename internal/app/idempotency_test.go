package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/auth"
	"github.com/odyssey-erp/odyssey-distribution/internal/observability"
	"github.com/odyssey-erp/odyssey-distribution/internal/rbac"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

type memKeys struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memKeys) CheckAndInsert(_ context.Context, key uuid.UUID, module string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	id := key.String() + module
	if m.keys[id] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[id] = true
	return nil
}

func (m *memKeys) Delete(_ context.Context, key uuid.UUID, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key.String()+module)
	return nil
}

func TestIdempotencyRejectsReplay(t *testing.T) {
	calls := 0
	h := Idempotency(&memKeys{}, observability.NewMetrics(), nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	key := uuid.NewString()
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/invoices", nil)
		req.Header.Set(IdempotencyHeader, key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, send())
	assert.Equal(t, http.StatusConflict, send())
	assert.Equal(t, 1, calls)
}

func TestIdempotencyReleasesKeyOnFailure(t *testing.T) {
	status := http.StatusUnprocessableEntity
	h := Idempotency(&memKeys{}, nil, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	key := uuid.NewString()
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/sales-orders", nil)
		req.Header.Set(IdempotencyHeader, key)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnprocessableEntity, send())
	status = http.StatusCreated
	assert.Equal(t, http.StatusCreated, send())
	assert.Equal(t, http.StatusConflict, send())
}

func TestIdempotencyIgnoresReadsAndValidatesKey(t *testing.T) {
	h := Idempotency(&memKeys{}, nil, nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.Header.Set(IdempotencyHeader, "not-a-uuid")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/invoices", nil)
	req.Header.Set(IdempotencyHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRouterRequiresBearerOnAPI(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC) }
	tokens, err := auth.NewTokens("secret", rbac.DefaultCatalog(), clock)
	require.NoError(t, err)
	router := NewRouter(RouterParams{
		Config:             &Config{AppEnv: "test", RateLimitRPM: 1000},
		Metrics:            observability.NewMetrics(),
		Tokens:             tokens,
		Keys:               &memKeys{},
		Clock:              clock,
		PermissionsHandler: rbac.NewPermissionsHandler(rbac.DefaultCatalog()),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me/permissions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	raw, err := tokens.Issue(7, []string{rbac.RoleSales}, nil, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/me/permissions", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), shared.PermQuotationCreate)
}
