package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/iho/goexchange/internal/infrastructure/auth"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// UserIDContextKey is the context key for the caller's user id
	UserIDContextKey ContextKey = "user_id"

	// UserIDHeader carries the caller's identity when token auth is disabled.
	UserIDHeader = "X-User-ID"
)

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// AuthMiddleware resolves the caller's user id and rejects anonymous requests.
// With a nil verifier the X-User-ID header is trusted; this is meant for
// development only.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string

			if verifier == nil {
				userID = strings.TrimSpace(r.Header.Get(UserIDHeader))
				if userID == "" {
					writeAuthError(w, "missing "+UserIDHeader+" header")
					return
				}
			} else {
				// Extract token from Authorization header
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					writeAuthError(w, "missing authorization header")
					return
				}

				// Parse Bearer token
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					writeAuthError(w, "invalid authorization header format")
					return
				}

				claims, err := verifier.Verify(parts[1])
				if err != nil {
					writeAuthError(w, "invalid or expired token")
					return
				}
				userID = claims.UserID
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a context carrying the caller's user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// UserIDFromContext extracts the authenticated user id from context
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(string)
	return userID, ok && userID != ""
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + message + `"}`))
}

// RequireOperator admits only callers listed in operators. It must run after
// AuthMiddleware. An empty list admits nobody.
func RequireOperator(operators []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(operators))
	for _, id := range operators {
		if id = strings.TrimSpace(id); id != "" {
			allowed[id] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeAuthError(w, "missing caller identity")
				return
			}
			if _, ok := allowed[userID]; !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","message":"operator access required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
