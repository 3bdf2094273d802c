package redis

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/iho/goexchange/internal/infrastructure/metrics"
)

// NewClient creates a new Redis client.
func NewClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	// Verify connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// MetricsHook counts Redis commands and failures per command name.
type MetricsHook struct {
	m *metrics.Metrics
}

// NewMetricsHook creates a hook that records into m.
func NewMetricsHook(m *metrics.Metrics) *MetricsHook {
	return &MetricsHook{m: m}
}

// Instrument attaches a MetricsHook to client. A nil m is a no-op.
func Instrument(client *redis.Client, m *metrics.Metrics) {
	if m == nil {
		return
	}
	client.AddHook(NewMetricsHook(m))
}

func (h *MetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.m.RedisErrors.WithLabelValues("dial").Inc()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		h.record(cmd.Name(), err)
		return err
	}
}

func (h *MetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		for _, cmd := range cmds {
			h.record(cmd.Name(), cmd.Err())
		}
		return err
	}
}

func (h *MetricsHook) record(name string, err error) {
	h.m.RedisOperations.WithLabelValues(name).Inc()
	// A missing key is a normal answer, not a failure.
	if err != nil && !errors.Is(err, redis.Nil) {
		h.m.RedisErrors.WithLabelValues(name).Inc()
	}
}
