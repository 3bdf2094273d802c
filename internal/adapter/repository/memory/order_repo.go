package memory

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

// OrderRepository implements usecase.OrderRepository and usecase.SettlementRepository.
type OrderRepository struct {
	store *Store
}

// Orders returns the store's order repository.
func (s *Store) Orders() *OrderRepository {
	return &OrderRepository{store: s}
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	return &c
}

func (t *Tx) order(id string) (*domain.Order, bool) {
	if o, ok := t.orders[id]; ok {
		return o, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	o, ok := t.store.orders[id]
	return o, ok
}

func (r *OrderRepository) Create(ctx context.Context, tx usecase.Transaction, order *domain.Order) error {
	t, err := asTx(r.store, tx)
	if err != nil {
		return err
	}
	t.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	o, ok := r.store.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *OrderRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Order, error) {
	t, err := asTx(r.store, tx)
	if err != nil {
		return nil, err
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	out := make([]*domain.Order, 0, len(sorted))
	for _, id := range sorted {
		if o, ok := t.order(id); ok {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (r *OrderRepository) Update(ctx context.Context, tx usecase.Transaction, order *domain.Order) error {
	t, err := asTx(r.store, tx)
	if err != nil {
		return err
	}
	if _, ok := t.order(order.ID); !ok {
		return domain.ErrOrderNotFound
	}
	t.orders[order.ID] = cloneOrder(order)
	return nil
}

// ListMatchable returns live resting orders on q.Side that cross q.LimitPrice,
// best price first, then earliest, then lowest id.
func (r *OrderRepository) ListMatchable(ctx context.Context, q usecase.MatchQuery) ([]*domain.Order, error) {
	r.store.mu.RLock()
	out := make([]*domain.Order, 0)
	for _, o := range r.store.orders {
		if o.Asset != q.Asset || o.QuoteAsset != q.QuoteAsset || o.Side != q.Side {
			continue
		}
		if !o.Status.IsLive() || o.UserID == q.ExcludeUserID {
			continue
		}
		if q.Side == domain.SideSell && o.Price.GreaterThan(q.LimitPrice) {
			continue
		}
		if q.Side == domain.SideBuy && o.Price.LessThan(q.LimitPrice) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	r.store.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].HasPriorityOver(out[j]) })

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// ListByUser returns the user's orders newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, error) {
	r.store.mu.RLock()
	out := make([]*domain.Order, 0)
	for _, o := range r.store.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
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

func (r *OrderRepository) CountLiveByUser(ctx context.Context, tx usecase.Transaction, userID string) (int, error) {
	t, err := asTx(r.store, tx)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool)
	count := 0
	for id, o := range t.orders {
		seen[id] = true
		if o.UserID == userID && o.Status.IsLive() {
			count++
		}
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for id, o := range r.store.orders {
		if !seen[id] && o.UserID == userID && o.Status.IsLive() {
			count++
		}
	}
	return count, nil
}

// Depth aggregates the remaining quantity of live orders per price, best price first.
func (r *OrderRepository) Depth(ctx context.Context, asset, quoteAsset string, side domain.Side, levels int) ([]usecase.PriceLevel, error) {
	byPrice := make(map[string]*usecase.PriceLevel)

	r.store.mu.RLock()
	for _, o := range r.store.orders {
		if o.Asset != asset || o.QuoteAsset != quoteAsset || o.Side != side || !o.Status.IsLive() {
			continue
		}
		key := o.Price.String()
		level, ok := byPrice[key]
		if !ok {
			level = &usecase.PriceLevel{Price: o.Price, Quantity: decimal.Zero}
			byPrice[key] = level
		}
		level.Quantity = level.Quantity.Add(o.Remaining())
		level.Orders++
	}
	r.store.mu.RUnlock()

	out := make([]usecase.PriceLevel, 0, len(byPrice))
	for _, level := range byPrice {
		out = append(out, *level)
	}
	sort.Slice(out, func(i, j int) bool {
		if side == domain.SideBuy {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})

	if levels > 0 && len(out) > levels {
		out = out[:levels]
	}
	return out, nil
}

// SettlementRepository implements usecase.SettlementRepository.
type SettlementRepository struct {
	store *Store
}

// Settlements returns the store's settlement repository.
func (s *Store) Settlements() *SettlementRepository {
	return &SettlementRepository{store: s}
}

func (r *SettlementRepository) Create(ctx context.Context, tx usecase.Transaction, settlement *domain.Settlement) error {
	t, err := asTx(r.store, tx)
	if err != nil {
		return err
	}
	c := *settlement
	t.settlements = append(t.settlements, &c)
	return nil
}

// ListByOrder returns the order's fills in execution order.
func (r *SettlementRepository) ListByOrder(ctx context.Context, orderID string) ([]*domain.Settlement, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.Settlement, 0)
	for _, s := range r.store.settlements {
		if s.BuyOrderID == orderID || s.SellOrderID == orderID {
			c := *s
			out = append(out, &c)
		}
	}
	return out, nil
}
