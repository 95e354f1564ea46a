// package auth guards the operator endpoints (verify, export, report) with
// bearer-token authentication. Append traffic stays unauthenticated here;
// the surrounding service fronts it with its own session layer.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const ctxKeyPrincipal ctxKey = "veralog.principal"

// Principal is the authenticated identity extracted from a bearer token.
type Principal struct {
	Subject string
	Roles   []string
}

// FromContext returns the Principal stored in the request context, or nil.
func FromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(ctxKeyPrincipal).(*Principal); ok {
		return p
	}
	return nil
}

// ValidateToken parses and validates an HS256 bearer token with the shared
// secret and returns the Principal from its claims.
func ValidateToken(tokenStr string, secret []byte) (*Principal, error) {
	tok, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}

	p := &Principal{}
	if sub, err := claims.GetSubject(); err == nil {
		p.Subject = sub
	}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				p.Roles = append(p.Roles, s)
			}
		}
	}
	return p, nil
}

// RequireToken returns middleware enforcing a valid bearer token. With an
// empty secret the middleware is a pass-through (dev mode); main logs loudly
// when that happens.
func RequireToken(secret []byte) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(secret) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				http.Error(w, "bearer token required", http.StatusUnauthorized)
				return
			}
			p, err := ValidateToken(strings.TrimSpace(authz[7:]), secret)
			if err != nil {
				log.Printf("[auth] token rejected: %v", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), ctxKeyPrincipal, p)))
		})
	}
}
