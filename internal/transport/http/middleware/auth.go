package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vedran77/agroconnect/internal/auth"
	"github.com/vedran77/agroconnect/internal/domain"
)

type contextKey string

const IdentityKey contextKey = "identity"

func Auth(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "Missing or invalid token")
				return
			}

			identity, err := verifier.Parse(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				msg := "Invalid or expired token"
				if errors.Is(err, auth.ErrInvalidClaims) {
					msg = "Invalid token claims"
				}
				unauthorized(w, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// GetIdentity extracts the caller from request context
func GetIdentity(ctx context.Context) domain.Identity {
	identity, _ := ctx.Value(IdentityKey).(domain.Identity)
	return identity
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"` + message + `"}}`))
}
