package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

const orderColumns = `id, user_id, asset, quote_asset, side, price, quantity, filled_quantity, status, created_at, updated_at`

const liveStatuses = `('open', 'partially_filled')`

// OrderRepository implements usecase.OrderRepository.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts an order within a transaction.
func (r *OrderRepository) Create(ctx context.Context, tx usecase.Transaction, order *domain.Order) error {
	_, err := txDB(tx).Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		order.ID,
		order.UserID,
		order.Asset,
		order.QuoteAsset,
		string(order.Side),
		decimalToNumeric(order.Price),
		decimalToNumeric(order.Quantity),
		decimalToNumeric(order.FilledQuantity),
		string(order.Status),
		timeToPgTimestamptz(order.CreatedAt),
		timeToPgTimestamptz(order.UpdatedAt),
	)

	return err
}

// GetByID retrieves an order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	return order, nil
}

// GetByIDsForUpdate locks the existing orders among ids in id order.
func (r *OrderRepository) GetByIDsForUpdate(ctx context.Context, tx usecase.Transaction, ids []string) ([]*domain.Order, error) {
	rows, err := txDB(tx).Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanOrder)
}

// Update persists the fill progress and status of an order.
func (r *OrderRepository) Update(ctx context.Context, tx usecase.Transaction, order *domain.Order) error {
	tag, err := txDB(tx).Exec(ctx,
		`UPDATE orders SET filled_quantity = $2, status = $3, updated_at = $4 WHERE id = $1`,
		order.ID, decimalToNumeric(order.FilledQuantity), string(order.Status), timeToPgTimestamptz(order.UpdatedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

// ListMatchable returns live orders on q.Side crossing q.LimitPrice, best
// price first, then earliest, then lowest id.
func (r *OrderRepository) ListMatchable(ctx context.Context, q usecase.MatchQuery) ([]*domain.Order, error) {
	priceFilter, priceOrder := `price <= $4`, `price ASC`
	if q.Side == domain.SideBuy {
		priceFilter, priceOrder = `price >= $4`, `price DESC`
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE asset = $1 AND quote_asset = $2 AND side = $3
		  AND status IN `+liveStatuses+`
		  AND `+priceFilter+`
		  AND user_id <> $5
		ORDER BY `+priceOrder+`, created_at ASC, id ASC
		LIMIT $6`,
		q.Asset, q.QuoteAsset, string(q.Side), decimalToNumeric(q.LimitPrice), q.ExcludeUserID, limitArg(q.Limit))
	if err != nil {
		return nil, err
	}

	return collect(rows, scanOrder)
}

// ListByUser lists a user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, limitArg(limit), offset)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanOrder)
}

// CountLiveByUser counts a user's open and partially filled orders.
func (r *OrderRepository) CountLiveByUser(ctx context.Context, tx usecase.Transaction, userID string) (int, error) {
	var count int
	err := txDB(tx).QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status IN `+liveStatuses, userID).Scan(&count)
	return count, err
}

// Depth aggregates the remaining quantity of live orders per price, best price first.
func (r *OrderRepository) Depth(ctx context.Context, asset, quoteAsset string, side domain.Side, levels int) ([]usecase.PriceLevel, error) {
	priceOrder := `price ASC`
	if side == domain.SideBuy {
		priceOrder = `price DESC`
	}

	rows, err := r.db.Query(ctx, `
		SELECT price, SUM(quantity - filled_quantity), COUNT(*) FROM orders
		WHERE asset = $1 AND quote_asset = $2 AND side = $3 AND status IN `+liveStatuses+`
		GROUP BY price
		ORDER BY `+priceOrder+`
		LIMIT $4`,
		asset, quoteAsset, string(side), limitArg(levels))
	if err != nil {
		return nil, err
	}

	return collect(rows, func(row rowScanner) (usecase.PriceLevel, error) {
		var (
			price, qty pgtype.Numeric
			level      usecase.PriceLevel
		)
		if err := row.Scan(&price, &qty, &level.Orders); err != nil {
			return level, err
		}
		level.Price = numericToDecimal(price)
		level.Quantity = numericToDecimal(qty)
		return level, nil
	})
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o                     domain.Order
		side, status          string
		price, quantity, fill pgtype.Numeric
		createdAt, updatedAt  pgtype.Timestamptz
	)

	if err := row.Scan(&o.ID, &o.UserID, &o.Asset, &o.QuoteAsset, &side, &price, &quantity, &fill,
		&status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	o.Price = numericToDecimal(price)
	o.Quantity = numericToDecimal(quantity)
	o.FilledQuantity = numericToDecimal(fill)
	o.CreatedAt = createdAt.Time
	o.UpdatedAt = updatedAt.Time

	return &o, nil
}

const settlementColumns = `id, asset, quote_asset, buy_order_id, sell_order_id, buyer_id, seller_id, maker_order_id, price, quantity, quote_amount, created_at`

// SettlementRepository implements usecase.SettlementRepository.
type SettlementRepository struct {
	db DBTX
}

// NewSettlementRepository creates a new SettlementRepository.
func NewSettlementRepository(db DBTX) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Create inserts a settlement within a transaction.
func (r *SettlementRepository) Create(ctx context.Context, tx usecase.Transaction, s *domain.Settlement) error {
	_, err := txDB(tx).Exec(ctx, `
		INSERT INTO settlements (`+settlementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID,
		s.Asset,
		s.QuoteAsset,
		s.BuyOrderID,
		s.SellOrderID,
		s.BuyerID,
		s.SellerID,
		s.MakerOrderID,
		decimalToNumeric(s.Price),
		decimalToNumeric(s.Quantity),
		decimalToNumeric(s.QuoteAmount),
		timeToPgTimestamptz(s.CreatedAt),
	)

	return err
}

// ListByOrder lists the settlements of an order on either side, oldest first.
func (r *SettlementRepository) ListByOrder(ctx context.Context, orderID string) ([]*domain.Settlement, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+settlementColumns+` FROM settlements
		WHERE buy_order_id = $1 OR sell_order_id = $1
		ORDER BY created_at, id`,
		orderID)
	if err != nil {
		return nil, err
	}

	return collect(rows, func(row rowScanner) (*domain.Settlement, error) {
		var (
			s                       domain.Settlement
			price, qty, quoteAmount pgtype.Numeric
			createdAt               pgtype.Timestamptz
		)
		if err := row.Scan(&s.ID, &s.Asset, &s.QuoteAsset, &s.BuyOrderID, &s.SellOrderID, &s.BuyerID,
			&s.SellerID, &s.MakerOrderID, &price, &qty, &quoteAmount, &createdAt); err != nil {
			return nil, err
		}
		s.Price = numericToDecimal(price)
		s.Quantity = numericToDecimal(qty)
		s.QuoteAmount = numericToDecimal(quoteAmount)
		s.CreatedAt = createdAt.Time
		return &s, nil
	})
}
