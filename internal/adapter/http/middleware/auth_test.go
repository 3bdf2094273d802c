package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iho/goexchange/internal/infrastructure/auth"
)

func echoUser(t *testing.T, seen *string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			t.Fatalf("expected user id in context")
		}
		*seen = userID
	})
}

func TestAuthMiddleware_HeaderMode(t *testing.T) {
	var seen string
	h := AuthMiddleware(nil)(echoUser(t, &seen))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	req.Header.Set(UserIDHeader, " alice ")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || seen != "alice" {
		t.Fatalf("expected alice to pass, got code=%d user=%q", rr.Code, seen)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", rr.Code)
	}
}

func TestAuthMiddleware_TokenMode(t *testing.T) {
	manager := auth.NewJWTManager("secret", time.Minute)
	token, err := manager.Generate("bob")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	var seen string
	h := AuthMiddleware(manager)(echoUser(t, &seen))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	// The header is ignored once tokens are required.
	req.Header.Set(UserIDHeader, "mallory")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || seen != "bob" {
		t.Fatalf("expected bob to pass, got code=%d user=%q", rr.Code, seen)
	}

	tests := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic abc",
		"bad token":      "Bearer not-a-token",
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			req.Header.Set(UserIDHeader, "mallory")
			rr := httptest.NewRecorder()
			AuthMiddleware(manager)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler should not be reached")
			})).ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
		})
	}
}

func TestRequireOperator(t *testing.T) {
	var seen string
	h := RequireOperator([]string{" ops ", ""})(echoUser(t, &seen))

	tests := []struct {
		name string
		user string
		want int
	}{
		{name: "operator", user: "ops", want: http.StatusOK},
		{name: "regular user", user: "alice", want: http.StatusForbidden},
		{name: "no identity", user: "", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/v1/ledger/consistency", nil)
			if tt.user != "" {
				req = req.WithContext(WithUserID(req.Context(), tt.user))
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
			if tt.want == http.StatusOK && seen != tt.user {
				t.Fatalf("expected handler to see %q, got %q", tt.user, seen)
			}
		})
	}
}
