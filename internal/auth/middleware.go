package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-distribution/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Middleware rejects requests without a valid bearer token.
func (t *Tokens) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				httpx.RespondError(w, logger, shared.ErrUnauthorized)
				return
			}
			principal, err := t.Verify(raw)
			if err != nil {
				if logger != nil {
					logger.Debug("reject token", slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				httpx.RespondError(w, logger, shared.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func bearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
