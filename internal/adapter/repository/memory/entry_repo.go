package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

// EntryRepository implements usecase.EntryRepository and usecase.LedgerRepository.
type EntryRepository struct {
	store *Store
}

// Entries returns the store's entry repository.
func (s *Store) Entries() *EntryRepository {
	return &EntryRepository{store: s}
}

func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.Entry) error {
	t, err := asTx(r.store, tx)
	if err != nil {
		return err
	}
	e := *entry
	t.entries = append(t.entries, &e)
	return nil
}

func (r *EntryRepository) filter(keep func(e *domain.Entry) bool) []*domain.Entry {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.Entry, 0)
	for _, e := range r.store.entries {
		if keep(e) {
			c := *e
			out = append(out, &c)
		}
	}
	return out
}

func (r *EntryRepository) GetByCause(ctx context.Context, causeType domain.CauseType, causeID string) ([]*domain.Entry, error) {
	return r.filter(func(e *domain.Entry) bool {
		return e.CauseType == causeType && e.CauseID == causeID
	}), nil
}

// GetByAccount returns entries newest first.
func (r *EntryRepository) GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Entry, error) {
	entries := r.filter(func(e *domain.Entry) bool { return e.AccountID == accountID })
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].AccountVersion > entries[j].AccountVersion
	})
	return page(entries, limit, offset), nil
}

func (r *EntryRepository) SumByAccount(ctx context.Context, accountID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range r.filter(func(e *domain.Entry) bool { return e.AccountID == accountID }) {
		sum = sum.Add(e.Amount)
	}
	return sum, nil
}

// GetBalanceAtTime returns the balance snapshot of the last entry at or before at.
func (r *EntryRepository) GetBalanceAtTime(ctx context.Context, accountID string, at time.Time) (decimal.Decimal, error) {
	balance := decimal.Zero
	var version int64 = -1
	for _, e := range r.filter(func(e *domain.Entry) bool {
		return e.AccountID == accountID && !e.CreatedAt.After(at)
	}) {
		if e.AccountVersion > version {
			version = e.AccountVersion
			balance = e.AccountCurrentBalance
		}
	}
	return balance, nil
}

// CheckConsistency returns the sum of cached balances and the sum of entry amounts.
func (r *EntryRepository) CheckConsistency(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	totalBalance := decimal.Zero
	for _, a := range r.store.accounts {
		totalBalance = totalBalance.Add(a.Balance)
	}

	totalAmount := decimal.Zero
	for _, e := range r.store.entries {
		totalAmount = totalAmount.Add(e.Amount)
	}

	return totalBalance, totalAmount, nil
}
