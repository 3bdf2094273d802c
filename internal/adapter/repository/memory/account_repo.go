package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	store *Store
}

// Accounts returns the store's account repository.
func (s *Store) Accounts() *AccountRepository {
	return &AccountRepository{store: s}
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	if a.ArchivedAt != nil {
		at := *a.ArchivedAt
		c.ArchivedAt = &at
	}
	return &c
}

// account returns the transaction's view of an account.
func (t *Tx) account(id string) (*domain.Account, bool) {
	if a, ok := t.accounts[id]; ok {
		return a, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	a, ok := t.store.accounts[id]
	return a, ok
}

func (t *Tx) accountID(key domain.AccountKey) (string, bool) {
	if id, ok := t.accountKeys[key]; ok {
		return id, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	id, ok := t.store.accountKeys[key]
	return id, ok
}

func (t *Tx) accountsByUser(userID string) []*domain.Account {
	merged := make(map[string]*domain.Account)

	t.store.mu.RLock()
	for id, a := range t.store.accounts {
		if a.UserID == userID {
			merged[id] = a
		}
	}
	t.store.mu.RUnlock()

	for id, a := range t.accounts {
		if a.UserID == userID {
			merged[id] = a
		}
	}

	out := make([]*domain.Account, 0, len(merged))
	for _, a := range merged {
		out = append(out, cloneAccount(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func (r *AccountRepository) CreateTx(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	t, err := asTx(r.store, tx)
	if err != nil {
		return err
	}

	if _, exists := t.accountID(account.Key()); exists {
		return fmt.Errorf("memory: account %s already exists", account.Key())
	}

	t.accounts[account.ID] = cloneAccount(account)
	t.accountKeys[account.Key()] = account.ID
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	a, ok := r.store.accounts[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (r *AccountRepository) GetByUserAsset(ctx context.Context, userID, asset string) (*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.accountKeys[domain.AccountKey{UserID: userID, Asset: asset}]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return cloneAccount(r.store.accounts[id]), nil
}

func (r *AccountRepository) GetByUserAssetForUpdate(ctx context.Context, tx usecase.Transaction, userID, asset string) (*domain.Account, error) {
	t, err := asTx(r.store, tx)
	if err != nil {
		return nil, err
	}

	id, ok := t.accountID(domain.AccountKey{UserID: userID, Asset: asset})
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	a, _ := t.account(id)
	return cloneAccount(a), nil
}

func (r *AccountRepository) LockForUpdate(ctx context.Context, tx usecase.Transaction, keys []domain.AccountKey) ([]*domain.Account, error) {
	t, err := asTx(r.store, tx)
	if err != nil {
		return nil, err
	}

	accounts := make([]*domain.Account, 0, len(keys))
	for _, k := range keys {
		id, ok := t.accountID(k)
		if !ok {
			continue
		}
		a, _ := t.account(id)
		accounts = append(accounts, cloneAccount(a))
	}
	return accounts, nil
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, id string, balance decimal.Decimal, version int64, updatedAt time.Time) error {
	return r.update(tx, id, func(a *domain.Account) {
		a.Balance = balance
		a.Version = version
		a.UpdatedAt = updatedAt
	})
}

func (r *AccountRepository) UpdateHeld(ctx context.Context, tx usecase.Transaction, id string, held decimal.Decimal, updatedAt time.Time) error {
	return r.update(tx, id, func(a *domain.Account) {
		a.Held = held
		a.UpdatedAt = updatedAt
	})
}

func (r *AccountRepository) update(tx usecase.Transaction, id string, apply func(a *domain.Account)) error {
	t, err := asTx(r.store, tx)
	if err != nil {
		return err
	}

	current, ok := t.account(id)
	if !ok {
		return domain.ErrAccountNotFound
	}

	next := cloneAccount(current)
	apply(next)
	t.accounts[id] = next
	return nil
}

func (r *AccountRepository) ArchiveByUser(ctx context.Context, tx usecase.Transaction, userID string, at time.Time) (int, error) {
	t, err := asTx(r.store, tx)
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, a := range t.accountsByUser(userID) {
		if a.IsArchived() {
			continue
		}
		archivedAt := at
		a.ArchivedAt = &archivedAt
		a.UpdatedAt = at
		t.accounts[a.ID] = a
		archived++
	}
	return archived, nil
}

func (r *AccountRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.Account, 0)
	for _, a := range r.store.accounts {
		if a.UserID == userID {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

func (r *AccountRepository) ListByUserForUpdate(ctx context.Context, tx usecase.Transaction, userID string) ([]*domain.Account, error) {
	t, err := asTx(r.store, tx)
	if err != nil {
		return nil, err
	}
	return t.accountsByUser(userID), nil
}

func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	r.store.mu.RLock()
	all := make([]*domain.Account, 0, len(r.store.accounts))
	for _, a := range r.store.accounts {
		all = append(all, cloneAccount(a))
	}
	r.store.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	return page(all, limit, offset), nil
}

// page returns the [offset, offset+limit) window of items.
func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
