package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-distribution/internal/observability"
	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// IdempotencyHeader names the optional request header carrying a client UUID.
const IdempotencyHeader = "Idempotency-Key"

// KeyStore records processed idempotency keys.
type KeyStore interface {
	CheckAndInsert(ctx context.Context, key uuid.UUID, module string, at time.Time) error
	Delete(ctx context.Context, key uuid.UUID, module string) error
}

// Idempotency rejects a write whose Idempotency-Key was already used for the same method
// and path. Keys of requests that end with an error status are released for retry.
func Idempotency(store KeyStore, metrics *observability.Metrics, logger *slog.Logger, clock shared.Clock) func(http.Handler) http.Handler {
	if clock == nil {
		clock = shared.SystemClock
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(IdempotencyHeader)
			if raw == "" || !isWrite(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			key, err := shared.ParseIdempotencyKey(raw)
			if err != nil {
				httpx.RespondError(w, logger, err)
				return
			}
			module := r.Method + " " + r.URL.Path
			if err := store.CheckAndInsert(r.Context(), key, module, clock()); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					metrics.IdempotencyReplay(r)
				}
				httpx.RespondError(w, logger, err, slog.String("idempotency_key", key.String()))
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if status := ww.Status(); status >= http.StatusBadRequest {
				if err := store.Delete(context.WithoutCancel(r.Context()), key, module); err != nil && logger != nil {
					logger.Warn("release idempotency key", slog.String("key", key.String()), slog.Any("error", err))
				}
			}
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
