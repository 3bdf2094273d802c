package memory

import (
	"context"
	"sort"

	"github.com/iho/goexchange/internal/domain"
)

// AssetRepository implements usecase.AssetRepository.
type AssetRepository struct {
	store *Store
}

// Assets returns the store's asset repository.
func (s *Store) Assets() *AssetRepository {
	return &AssetRepository{store: s}
}

// Upsert writes directly; assets are reference data outside order and ledger transactions.
func (r *AssetRepository) Upsert(ctx context.Context, asset *domain.Asset) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	a := *asset
	if existing, ok := r.store.assets[a.Symbol]; ok {
		a.CreatedAt = existing.CreatedAt
	}
	r.store.assets[a.Symbol] = &a
	return nil
}

func (r *AssetRepository) GetBySymbol(ctx context.Context, symbol string) (*domain.Asset, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	a, ok := r.store.assets[symbol]
	if !ok {
		return nil, domain.ErrAssetNotFound
	}
	c := *a
	return &c, nil
}

func (r *AssetRepository) List(ctx context.Context) ([]*domain.Asset, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.Asset, 0, len(r.store.assets))
	for _, a := range r.store.assets {
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}
