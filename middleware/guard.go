package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/albumauth"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by [Guard].
func ClaimsFromContext(ctx context.Context) (*albumauth.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*albumauth.AccessClaims)
	return claims, ok
}

type accessVerifier interface {
	VerifyAccess(ctx context.Context, accessToken string) (*albumauth.AccessClaims, error)
}

func Guard(authority *albumauth.Authority) func(http.Handler) http.Handler {
	if authority == nil {
		return guard(nil, "")
	}
	return guard(authority, "")
}

// RequireRole rejects tokens whose role claim is not role with 403.
func RequireRole(authority *albumauth.Authority, role string) func(http.Handler) http.Handler {
	if authority == nil {
		return guard(nil, role)
	}
	return guard(authority, role)
}

func guard(verifier accessVerifier, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := verifier.VerifyAccess(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if role != "" && claims.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
