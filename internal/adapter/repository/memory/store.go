// Package memory is an in-process implementation of every repository and the
// transaction manager. Transactions are serialized: one is open at a time,
// its writes are staged and become visible on Commit.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

// ErrTxDone is returned when a finished transaction is used.
var ErrTxDone = errors.New("memory: transaction already committed or rolled back")

// ErrForeignTx is returned when a repository receives a transaction it did not create.
var ErrForeignTx = errors.New("memory: transaction not created by this store")

// Store holds committed state.
type Store struct {
	// sem is held from Begin to Commit or Rollback.
	sem chan struct{}

	mu           sync.RWMutex
	assets       map[string]*domain.Asset
	accounts     map[string]*domain.Account
	accountKeys  map[domain.AccountKey]string
	entries      []*domain.Entry
	transactions map[string]*domain.Transaction
	orders       map[string]*domain.Order
	settlements  []*domain.Settlement
	outbox       []*domain.OutboxEvent
	audit        []*domain.AuditLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sem:          make(chan struct{}, 1),
		assets:       make(map[string]*domain.Asset),
		accounts:     make(map[string]*domain.Account),
		accountKeys:  make(map[domain.AccountKey]string),
		transactions: make(map[string]*domain.Transaction),
		orders:       make(map[string]*domain.Order),
	}
}

// Tx stages writes until Commit.
type Tx struct {
	store *Store
	done  bool

	accounts     map[string]*domain.Account
	accountKeys  map[domain.AccountKey]string
	entries      []*domain.Entry
	transactions map[string]*domain.Transaction
	orders       map[string]*domain.Order
	settlements  []*domain.Settlement
	outbox       []*domain.OutboxEvent
	audit        []*domain.AuditLog
}

// TxManager implements usecase.TransactionManager.
type TxManager struct {
	store *Store
}

// TxManager returns the store's transaction manager.
func (s *Store) TxManager() *TxManager {
	return &TxManager{store: s}
}

// Begin waits for the previous transaction to finish.
func (m *TxManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	select {
	case m.store.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return &Tx{
		store:        m.store,
		accounts:     make(map[string]*domain.Account),
		accountKeys:  make(map[domain.AccountKey]string),
		transactions: make(map[string]*domain.Transaction),
		orders:       make(map[string]*domain.Order),
	}, nil
}

// Commit applies the staged writes.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}

	s := t.store
	s.mu.Lock()
	for id, a := range t.accounts {
		s.accounts[id] = a
	}
	for k, id := range t.accountKeys {
		s.accountKeys[k] = id
	}
	s.entries = append(s.entries, t.entries...)
	for id, r := range t.transactions {
		s.transactions[id] = r
	}
	for id, o := range t.orders {
		s.orders[id] = o
	}
	s.settlements = append(s.settlements, t.settlements...)
	s.outbox = append(s.outbox, t.outbox...)
	s.audit = append(s.audit, t.audit...)
	s.mu.Unlock()

	t.finish()
	return nil
}

// Rollback discards the staged writes. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.finish()
	return nil
}

func (t *Tx) finish() {
	t.done = true
	<-t.store.sem
}

func asTx(s *Store, tx usecase.Transaction) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil || t.store != s {
		return nil, ErrForeignTx
	}
	if t.done {
		return nil, ErrTxDone
	}
	return t, nil
}
