package middleware

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	grpcerrors "github.com/iho/goexchange/internal/adapter/grpc/errors"
)

// LoggingInterceptor attaches logger to the call context, logs each call and
// converts domain errors to status errors.
func LoggingInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		start := time.Now()
		l := logger.With().Str("method", info.FullMethod).Logger()

		resp, err := handler(l.WithContext(ctx), req)
		mapped := grpcerrors.MapDomainError(err)

		code := status.Code(mapped)
		event := l.Debug()
		if code == codes.Internal || code == codes.DataLoss {
			event = l.Error().Err(err)
		}
		event.Str("code", code.String()).Dur("duration", time.Since(start)).Msg("grpc call")

		return resp, mapped
	}
}

// RecoveryInterceptor turns handler panics into Internal errors.
func RecoveryInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().
					Interface("panic", rec).
					Str("method", info.FullMethod).
					Bytes("stack", debug.Stack()).
					Msg("grpc panic recovered")
				err = status.Error(codes.Internal, "an internal error occurred")
			}
		}()

		return handler(ctx, req)
	}
}
