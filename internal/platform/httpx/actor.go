package httpx

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

// Actor resolves the authenticated caller stamped with the clock reading.
func Actor(r *http.Request, clock shared.Clock) (shared.Actor, error) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil || principal.UserID <= 0 {
		return shared.Actor{}, shared.ErrUnauthorized
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return shared.NewActor(principal.UserID, clock()), nil
}
