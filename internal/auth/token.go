// Package auth verifies bearer tokens and stamps the caller's principal on the request.
// Token issuance belongs to the identity provider; Issue exists for seeding and tests.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/odyssey-erp/odyssey-distribution/internal/rbac"
	"github.com/odyssey-erp/odyssey-distribution/internal/shared"
)

const issuer = "odyssey-distribution"

// Claims carries the user id, direct permissions and roles of the caller.
type Claims struct {
	jwt.RegisteredClaims
	UserID int64    `json:"uid"`
	Perms  []string `json:"perms,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// Tokens signs and verifies HS256 access tokens.
type Tokens struct {
	secret  []byte
	catalog rbac.Catalog
	clock   shared.Clock
}

// NewTokens builds a verifier. Roles in a token expand through catalog.
func NewTokens(secret string, catalog rbac.Catalog, clock shared.Clock) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("auth: jwt secret must be provided")
	}
	if catalog == nil {
		catalog = rbac.DefaultCatalog()
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return &Tokens{secret: []byte(secret), catalog: catalog, clock: clock}, nil
}

// Issue signs a token for userID valid for ttl.
func (t *Tokens) Issue(userID int64, roles, perms []string, ttl time.Duration) (string, error) {
	now := t.clock()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
		Perms:  perms,
		Roles:  roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses a token and resolves its effective permissions.
func (t *Tokens) Verify(raw string) (*shared.Principal, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(t.clock), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return nil, fmt.Errorf("%w: invalid claims", shared.ErrUnauthorized)
	}
	return &shared.Principal{
		UserID:      claims.UserID,
		Permissions: t.catalog.Permissions(claims.Roles, claims.Perms),
	}, nil
}
