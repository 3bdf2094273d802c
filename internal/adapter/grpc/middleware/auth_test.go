package middleware_test

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/iho/goexchange/internal/adapter/grpc/middleware"
	"github.com/iho/goexchange/internal/infrastructure/auth"
)

func TestAuthInterceptor(t *testing.T) {
	t.Parallel()

	jwtManager := auth.NewJWTManager("secret", time.Hour)
	interceptor := middleware.AuthInterceptor(jwtManager, "/grpc.health.v1.Health/")
	info := &grpc.UnaryServerInfo{FullMethod: "/goexchange.v1.Exchange/SubmitOrder"}

	t.Run("missing metadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
			t.Fatal("handler should not be called")
			return nil, nil
		})
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("expected unauthenticated, got %v", err)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer invalid"))
		_, err := interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
			t.Fatal("handler should not be called")
			return nil, nil
		})
		if status.Code(err) != codes.Unauthenticated {
			t.Fatalf("expected unauthenticated for invalid token, got %v", err)
		}
	})

	t.Run("valid token injects user", func(t *testing.T) {
		token, err := jwtManager.Generate("user-1")
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}

		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))

		called := false
		_, err = interceptor(ctx, nil, info, func(ctx context.Context, req any) (any, error) {
			called = true
			userID, ok := middleware.UserIDFromContext(ctx)
			if !ok || userID != "user-1" {
				t.Fatalf("expected user-1 in context, got %q", userID)
			}
			return "ok", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !called {
			t.Fatal("expected handler to be called")
		}
	})

	t.Run("public method skips auth", func(t *testing.T) {
		health := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
		resp, err := interceptor(context.Background(), nil, health, func(ctx context.Context, req any) (any, error) {
			return "serving", nil
		})
		if err != nil || resp != "serving" {
			t.Fatalf("expected public call to pass, got %v %v", resp, err)
		}
	})
}
