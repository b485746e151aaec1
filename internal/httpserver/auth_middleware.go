package httpserver

import (
	"context"
	"net/http"
	"strings"

	"medchat/internal/domain"
	"medchat/internal/security"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// WithClaims returns a new context carrying the caller's identity.
func WithClaims(ctx context.Context, claims *security.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// CurrentClaims extracts the caller's identity from context, if any.
func CurrentClaims(r *http.Request) *security.Claims {
	if c, ok := r.Context().Value(claimsContextKey).(*security.Claims); ok {
		return c
	}
	return nil
}

// AuthMiddleware validates the Bearer token and attaches its claims to the context.
// Identity is owned by the auth module; the token is trusted as issued.
func AuthMiddleware(tokens *security.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				writeError(w, domain.Unauthenticated("missing or invalid Authorization header"))
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			claims, err := tokens.Parse(tokenStr)
			if err != nil {
				writeError(w, domain.Unauthenticated("invalid token"))
				return
			}
			if claims.UserID() == "" {
				writeError(w, domain.Unauthenticated("invalid token subject"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}
