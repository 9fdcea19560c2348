// Package httpx provides HTTP response utilities.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// ErrDuplicate reports a replayed or conflicting request.
var ErrDuplicate = errors.New("duplicate entry")

// RespondError maps domain errors to HTTP responses. Unexpected errors are logged with attrs
// and surfaced as a generic 500.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error, attrs ...any) {
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		Error(w, http.StatusUnprocessableEntity, "The given data was invalid.", verr.Fields)
	case errors.Is(err, shared.ErrValidation):
		Error(w, http.StatusUnprocessableEntity, message(err), nil)
	case errors.Is(err, shared.ErrNotFound):
		Error(w, http.StatusNotFound, message(err), nil)
	case errors.Is(err, shared.ErrInvalidTransition), errors.Is(err, shared.ErrBusinessRule):
		Error(w, http.StatusUnprocessableEntity, message(err), nil)
	case errors.Is(err, shared.ErrIdempotencyConflict), errors.Is(err, ErrDuplicate):
		Error(w, http.StatusConflict, message(err), nil)
	case errors.Is(err, shared.ErrUnauthorized):
		Error(w, http.StatusUnauthorized, "Unauthenticated.", nil)
	case errors.Is(err, shared.ErrForbidden):
		Error(w, http.StatusForbidden, "This action is unauthorized.", nil)
	case errors.Is(err, context.DeadlineExceeded):
		Error(w, http.StatusServiceUnavailable, "The request timed out.", nil)
	default:
		if logger != nil {
			logger.Error("request failed", append(attrs, slog.Any("error", err))...)
		}
		Error(w, http.StatusInternalServerError, "Something went wrong. Please try again later.", nil)
	}
}

// message strips wrapping prefixes so clients see the innermost explanation first.
func message(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{shared.ErrBusinessRule, shared.ErrInvalidTransition, shared.ErrNotFound, shared.ErrValidation} {
		prefix := sentinel.Error() + ": "
		if idx := strings.LastIndex(msg, prefix); idx >= 0 {
			return msg[idx+len(prefix):]
		}
	}
	return msg
}
