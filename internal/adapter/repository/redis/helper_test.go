package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redislib "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iho/goexchange/internal/usecase"
)

// newTestRedisClient returns a client on a fresh miniredis. Both are closed
// when the test ends.
func newTestRedisClient(t *testing.T) (*redislib.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redislib.NewClient(&redislib.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

// newTestBookLocker returns a locker with the given lease that retries every
// millisecond.
func newTestBookLocker(t *testing.T, lease time.Duration) (*BookLocker, *miniredis.Miniredis) {
	t.Helper()

	client, mr := newTestRedisClient(t)
	return NewBookLocker(client, lease, time.Millisecond, zerolog.Nop()), mr
}

// newTestPriceOracle caches next's quotes for ttl.
func newTestPriceOracle(t *testing.T, next usecase.PriceOracle, ttl time.Duration) (*CachedPriceOracle, *miniredis.Miniredis) {
	t.Helper()

	client, mr := newTestRedisClient(t)
	return NewCachedPriceOracle(client, next, ttl, zerolog.Nop()), mr
}
