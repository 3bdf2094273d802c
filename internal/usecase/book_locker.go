package usecase

import (
	"context"
	"sync"
)

// LocalBookLocker serializes books within one process.
type LocalBookLocker struct {
	mu    sync.Mutex
	books map[string]chan struct{}
}

// NewLocalBookLocker creates a LocalBookLocker.
func NewLocalBookLocker() *LocalBookLocker {
	return &LocalBookLocker{books: make(map[string]chan struct{})}
}

// Lock acquires the book or returns ctx.Err().
func (l *LocalBookLocker) Lock(ctx context.Context, book string) (func(), error) {
	l.mu.Lock()
	ch, ok := l.books[book]
	if !ok {
		ch = make(chan struct{}, 1)
		l.books[book] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
