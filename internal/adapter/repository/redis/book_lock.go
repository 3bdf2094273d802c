package redis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// errBookBusy signals that another holder owns the book lease.
var errBookBusy = errors.New("book lock held")

// releaseScript deletes the lease only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// BookLocker implements usecase.BookLocker with Redis leases so several
// server processes can share one set of order books.
type BookLocker struct {
	client   *redis.Client
	prefix   string
	lease    time.Duration
	interval time.Duration
	logger   zerolog.Logger
}

// NewBookLocker creates a BookLocker. lease bounds how long a crashed holder
// can block a book; interval is the polling period while waiting.
func NewBookLocker(client *redis.Client, lease, interval time.Duration, logger zerolog.Logger) *BookLocker {
	if lease <= 0 {
		lease = 10 * time.Second
	}
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}

	return &BookLocker{
		client:   client,
		prefix:   "book-lock:",
		lease:    lease,
		interval: interval,
		logger:   logger.With().Str("component", "book_locker").Logger(),
	}
}

// Lock polls until the lease for book is acquired or ctx is done.
func (l *BookLocker) Lock(ctx context.Context, book string) (func(), error) {
	key := l.prefix + book
	token := uuid.NewString()

	acquire := func() error {
		ok, err := l.client.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return backoff.Permanent(err)
		}
		if !ok {
			return errBookBusy
		}
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(l.interval), ctx)
	if err := backoff.Retry(acquire, b); err != nil {
		if errors.Is(err, errBookBusy) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must succeed even when the caller's ctx is already done.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
				l.logger.Error().Err(err).Str("book", book).Msg("failed to release book lock")
			}
		})
	}, nil
}
