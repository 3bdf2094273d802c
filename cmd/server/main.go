package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	grpcserver "github.com/iho/goexchange/internal/adapter/grpc/server"
	"github.com/iho/goexchange/internal/infrastructure/auth"
	"github.com/iho/goexchange/internal/infrastructure/config"
	"github.com/iho/goexchange/internal/infrastructure/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup logger
	l := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log.Logger = l
	zerolog.DefaultContextLogger = &l

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Fatal().Err(err).Msg("server failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer a.Close()

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	defer func() {
		cancelWorkers()
		workers.Wait()
	}()

	// Outbox publisher
	workers.Add(1)
	go func() {
		defer workers.Done()
		if err := a.publisher.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("event publisher stopped")
		}
	}()

	// Idle rate limiter cleanup
	if a.limiter != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-workerCtx.Done():
					return
				case <-ticker.C:
					if n := a.limiter.CleanupLimiters(10 * time.Minute); n > 0 {
						logger.Debug().Int("removed", n).Msg("rate limiters cleaned up")
					}
				}
			}
		}()
	}

	// gRPC health
	grpcCfg := grpcserver.Config{Logger: logger, Checks: map[string]grpcserver.Pinger{}}
	for name, dep := range a.healthDeps {
		grpcCfg.Checks[name] = dep
	}
	if cfg.AuthEnabled {
		grpcCfg.Verifier = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	}
	grpcSrv := grpcserver.New(grpcCfg)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}

	workers.Add(1)
	go func() {
		defer workers.Done()
		grpcSrv.Watch(workerCtx)
	}()

	errCh := make(chan error, 2)
	go func() {
		logger.Info().Str("port", cfg.GRPCPort).Msg("starting grpc server")
		errCh <- grpcSrv.Serve(lis)
	}()

	// HTTP
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      a.router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Str("storage", cfg.Storage).Msg("starting http server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for a signal or a listener failure
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down server...")
	case err := <-errCh:
		logger.Error().Err(err).Msg("listener failed; shutting down")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server forced to shutdown")
	}
	grpcSrv.GracefulStop()

	logger.Info().Msg("server stopped")
	return nil
}
