package memory

import (
	"context"
	"sort"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	store *Store
}

// Transactions returns the store's journal repository.
func (s *Store) Transactions() *TransactionRepository {
	return &TransactionRepository{store: s}
}

func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, record *domain.Transaction) error {
	t, err := asTx(r.store, tx)
	if err != nil {
		return err
	}
	c := *record
	t.transactions[record.ID] = &c
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	record, ok := r.store.transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	c := *record
	return &c, nil
}

func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Transaction, error) {
	t, err := asTx(r.store, tx)
	if err != nil {
		return nil, err
	}
	if record, ok := t.transactions[id]; ok {
		c := *record
		return &c, nil
	}
	return r.GetByID(ctx, id)
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, record *domain.Transaction) error {
	t, err := asTx(r.store, tx)
	if err != nil {
		return err
	}
	if _, ok := t.transactions[record.ID]; !ok {
		if _, err := r.GetByID(ctx, record.ID); err != nil {
			return err
		}
	}
	c := *record
	t.transactions[record.ID] = &c
	return nil
}

// ListByUser returns records where the user is either party, newest first.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Transaction, error) {
	r.store.mu.RLock()
	out := make([]*domain.Transaction, 0)
	for _, record := range r.store.transactions {
		if record.UserID == userID || record.CounterpartyUserID == userID {
			c := *record
			out = append(out, &c)
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, limit, offset), nil
}
