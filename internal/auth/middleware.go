package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/castellanhq/castellan/internal/models"
	pkghttp "github.com/castellanhq/castellan/pkg/http"
)

type contextKey string

const claimsContextKey contextKey = "token_claims"

// ClaimsFromContext returns the validated token claims attached by Middleware
func ClaimsFromContext(ctx context.Context) (*models.TokenClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*models.TokenClaims)
	return claims, ok
}

// ContextWithClaims returns a context carrying validated token claims
func ContextWithClaims(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// Middleware validates the bearer token and attaches its claims to the
// request context.
func Middleware(tm *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				pkghttp.WriteUnauthorized(w, "Missing or malformed authorization header")
				return
			}

			claims, err := tm.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				pkghttp.WriteUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// RequireGroup restricts a route to members of a directory group. Group
// memberships are carried in the token claims, captured at login time.
func RequireGroup(group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}

			for _, g := range claims.Groups {
				if strings.EqualFold(g, group) {
					next.ServeHTTP(w, r)
					return
				}
			}

			pkghttp.WriteForbidden(w, "Insufficient permissions")
		})
	}
}
