package server

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/iho/goexchange/internal/adapter/grpc/middleware"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

// Pinger is a dependency whose reachability decides the serving status.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures the gRPC server.
type Config struct {
	Logger zerolog.Logger
	// Verifier enables bearer token auth for every non-health method.
	Verifier middleware.TokenVerifier
	// Checks run on every interval; each name is also reported as a
	// health service of its own.
	Checks   map[string]Pinger
	Interval time.Duration
}

// Server serves the standard gRPC health protocol backed by dependency checks.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	checks   map[string]Pinger
	interval time.Duration
	logger   zerolog.Logger
}

// New creates a gRPC server with the health service registered.
func New(cfg Config) *Server {
	logger := cfg.Logger.With().Str("component", "grpc").Logger()

	interceptors := []grpc.UnaryServerInterceptor{
		middleware.RecoveryInterceptor(logger),
		middleware.LoggingInterceptor(logger),
	}
	if cfg.Verifier != nil {
		interceptors = append(interceptors, middleware.AuthInterceptor(cfg.Verifier, healthServicePrefix))
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	s := &Server{
		grpc:     grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...)),
		health:   health.NewServer(),
		checks:   cfg.Checks,
		interval: interval,
		logger:   logger,
	}

	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)

	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// CheckDependencies pings every dependency once and publishes the result.
// The overall status is SERVING only when every check passes.
func (s *Server) CheckDependencies(ctx context.Context) bool {
	healthy := true
	for name, check := range s.checks {
		status := healthpb.HealthCheckResponse_SERVING
		if err := check.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Str("check", name).Msg("dependency unhealthy")
			status = healthpb.HealthCheckResponse_NOT_SERVING
			healthy = false
		}
		s.health.SetServingStatus(name, status)
	}

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)

	return healthy
}

// Watch checks dependencies until ctx is cancelled.
func (s *Server) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.checkWithTimeout(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkWithTimeout(ctx)
		}
	}
}

func (s *Server) checkWithTimeout(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()
	s.CheckDependencies(checkCtx)
}

// GracefulStop reports NOT_SERVING to watchers and drains in-flight calls.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
