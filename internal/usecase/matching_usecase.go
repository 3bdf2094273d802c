package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/infrastructure/metrics"
)

// MatchingConfig holds the matching engine's collaborators.
type MatchingConfig struct {
	TxManager      TransactionManager
	Ledger         Poster
	OrderRepo      OrderRepository
	SettlementRepo SettlementRepository
	OutboxRepo     OutboxRepository
	AuditRepo      AuditRepository
	Oracle         PriceOracle
	Locker         BookLocker
	IDGen          IDGenerator
	Retrier        Retrier
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger

	// QuoteAsset prices every book. Defaults to DefaultQuoteAsset.
	QuoteAsset string
	// PriceBand is the allowed fractional deviation from the oracle price.
	// Zero disables the check.
	PriceBand decimal.Decimal
}

// MatchingUseCase accepts limit orders, matches them with price-time
// priority and settles each fill against the ledger.
type MatchingUseCase struct {
	txManager      TransactionManager
	ledger         Poster
	orderRepo      OrderRepository
	settlementRepo SettlementRepository
	outboxRepo     OutboxRepository
	auditRepo      AuditRepository
	oracle         PriceOracle
	locker         BookLocker
	idGen          IDGenerator
	retrier        Retrier
	metrics        *metrics.Metrics
	logger         zerolog.Logger
	quoteAsset     string
	priceBand      decimal.Decimal
}

// NewMatchingUseCase creates a new MatchingUseCase.
func NewMatchingUseCase(cfg MatchingConfig) *MatchingUseCase {
	quote := domain.NormalizeAsset(cfg.QuoteAsset)
	if quote == "" {
		quote = DefaultQuoteAsset
	}

	locker := cfg.Locker
	if locker == nil {
		locker = NewLocalBookLocker()
	}

	return &MatchingUseCase{
		txManager:      cfg.TxManager,
		ledger:         cfg.Ledger,
		orderRepo:      cfg.OrderRepo,
		settlementRepo: cfg.SettlementRepo,
		outboxRepo:     cfg.OutboxRepo,
		auditRepo:      cfg.AuditRepo,
		oracle:         cfg.Oracle,
		locker:         locker,
		idGen:          cfg.IDGen,
		retrier:        cfg.Retrier,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger.With().Str("component", "matching").Logger(),
		quoteAsset:     quote,
		priceBand:      cfg.PriceBand,
	}
}

// QuoteAsset returns the asset every book is priced in.
func (uc *MatchingUseCase) QuoteAsset() string {
	return uc.quoteAsset
}

// SubmitOrderInput represents input for a new limit order.
type SubmitOrderInput struct {
	UserID   string
	Asset    string
	Side     domain.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// SubmitOrderResult is the order after its matching pass and the fills it produced.
type SubmitOrderResult struct {
	Order       *domain.Order
	Settlements []*domain.Settlement
}

// SettleInput describes one fill between a buy and a sell order.
type SettleInput struct {
	BuyOrderID  string
	SellOrderID string
	Price       decimal.Decimal
	Quantity    decimal.Decimal
}

// OrderBook is the aggregated depth of one book.
type OrderBook struct {
	Asset      string
	QuoteAsset string
	Bids       []PriceLevel
	Asks       []PriceLevel
}

// ListOrdersInput represents input for listing a user's orders.
type ListOrdersInput struct {
	UserID string
	Limit  int
	Offset int
}

// SubmitOrder reserves funds for the order, persists it as open and runs one
// matching pass. A matching error is returned together with the persisted order.
func (uc *MatchingUseCase) SubmitOrder(ctx context.Context, input SubmitOrderInput) (*SubmitOrderResult, error) {
	order, err := uc.newOrder(ctx, input)
	if err != nil {
		uc.rejected(err)
		return nil, err
	}

	unlock, err := uc.locker.Lock(ctx, bookKey(order.Asset, order.QuoteAsset))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = runInTx(ctx, uc.txManager, uc.retrier, func(txCtx context.Context, tx Transaction) error {
		if err := uc.ledger.HoldTx(txCtx, tx, domain.OutstandingHold(order)); err != nil {
			return err
		}
		if err := uc.orderRepo.Create(txCtx, tx, order); err != nil {
			return err
		}
		if err := emitEvent(txCtx, tx, uc.outboxRepo, uc.idGen, domain.AggregateTypeOrder, order.ID,
			domain.EventTypeOrderSubmitted, domain.OrderEventPayload(order), order.CreatedAt); err != nil {
			return err
		}
		return writeAudit(txCtx, tx, uc.auditRepo, uc.idGen, order.UserID, domain.AuditActionOrderSubmit,
			domain.AggregateTypeOrder, order.ID, order, order.CreatedAt)
	})
	if err != nil {
		uc.rejected(err)
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.OrdersSubmitted.WithLabelValues(string(order.Side)).Inc()
	}

	uc.logger.Debug().
		Str("order_id", order.ID).
		Str("user_id", order.UserID).
		Str("book", bookKey(order.Asset, order.QuoteAsset)).
		Str("side", string(order.Side)).
		Str("price", order.Price.String()).
		Str("quantity", order.Quantity.String()).
		Msg("order accepted")

	settlements, matchErr := uc.matchLocked(ctx, order)

	current, err := uc.orderRepo.GetByID(ctx, order.ID)
	if err != nil {
		current = order
	}

	return &SubmitOrderResult{Order: current, Settlements: settlements}, matchErr
}

// Match runs a matching pass for a live order.
func (uc *MatchingUseCase) Match(ctx context.Context, orderID string) ([]*domain.Settlement, error) {
	order, err := uc.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	unlock, err := uc.locker.Lock(ctx, bookKey(order.Asset, order.QuoteAsset))
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Reload under the book lock.
	order, err = uc.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.IsLive() {
		return nil, domain.ErrOrderNotLive
	}

	return uc.matchLocked(ctx, order)
}

// matchLocked sweeps the opposite side of the book for taker. The caller holds
// the book lock.
func (uc *MatchingUseCase) matchLocked(ctx context.Context, taker *domain.Order) ([]*domain.Settlement, error) {
	start := time.Now()
	defer func() {
		if uc.metrics != nil {
			uc.metrics.MatchDuration.Observe(time.Since(start).Seconds())
		}
	}()

	var settlements []*domain.Settlement

	for taker.Status.IsLive() {
		candidates, err := uc.orderRepo.ListMatchable(ctx, MatchQuery{
			Asset:         taker.Asset,
			QuoteAsset:    taker.QuoteAsset,
			Side:          taker.Side.Opposite(),
			LimitPrice:    taker.Price,
			ExcludeUserID: taker.UserID,
			Limit:         matchBatchSize,
		})
		if err != nil {
			return settlements, err
		}
		if len(candidates) == 0 {
			break
		}

		progressed := false
		for _, maker := range candidates {
			if !taker.Status.IsLive() {
				break
			}

			qty := decimal.Min(taker.Remaining(), maker.Remaining())
			if !qty.IsPositive() {
				continue
			}

			input := SettleInput{Price: maker.Price, Quantity: qty}
			if taker.Side == domain.SideBuy {
				input.BuyOrderID, input.SellOrderID = taker.ID, maker.ID
			} else {
				input.BuyOrderID, input.SellOrderID = maker.ID, taker.ID
			}

			settlement, err := uc.Settle(ctx, input)
			if err != nil {
				if !domain.IsRecoverable(err) {
					return settlements, err
				}
				uc.logger.Warn().
					Err(err).
					Str("taker_order_id", taker.ID).
					Str("maker_order_id", maker.ID).
					Msg("fill rejected, stopping matching pass")
				return settlements, err
			}

			settlements = append(settlements, settlement)
			if err := taker.Fill(qty, settlement.CreatedAt); err != nil {
				return settlements, err
			}
			progressed = true
		}

		if !progressed {
			break
		}
	}

	return settlements, nil
}

// Settle executes one fill atomically: both holds are released for the fill,
// four entries are posted and both orders advance. Any failure leaves orders
// and balances untouched.
func (uc *MatchingUseCase) Settle(ctx context.Context, input SettleInput) (*domain.Settlement, error) {
	start := time.Now()

	var settlement *domain.Settlement
	err := runInTx(ctx, uc.txManager, uc.retrier, func(txCtx context.Context, tx Transaction) error {
		s, err := uc.settleTx(txCtx, tx, input)
		if err != nil {
			return err
		}
		settlement = s
		return nil
	})

	if uc.metrics != nil {
		uc.metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		if uc.metrics != nil {
			uc.metrics.SettlementFailures.WithLabelValues(errorReason(err)).Inc()
		}
		if !domain.IsRecoverable(err) {
			uc.logger.Error().
				Err(err).
				Str("buy_order_id", input.BuyOrderID).
				Str("sell_order_id", input.SellOrderID).
				Msg("settlement failed")
		}
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.SettlementsTotal.Inc()
	}

	uc.logger.Info().
		Str("settlement_id", settlement.ID).
		Str("buy_order_id", settlement.BuyOrderID).
		Str("sell_order_id", settlement.SellOrderID).
		Str("price", settlement.Price.String()).
		Str("quantity", settlement.Quantity.String()).
		Msg("trade settled")

	return settlement, nil
}

func (uc *MatchingUseCase) settleTx(ctx context.Context, tx Transaction, input SettleInput) (*domain.Settlement, error) {
	if input.BuyOrderID == "" || input.SellOrderID == "" || input.BuyOrderID == input.SellOrderID {
		return nil, fmt.Errorf("%w: a fill needs two distinct orders", domain.ErrInvalidState)
	}
	if !input.Price.IsPositive() || !input.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: fill price and quantity must be positive", domain.ErrInvalidAmount)
	}

	ids := []string{input.BuyOrderID, input.SellOrderID}
	sort.Strings(ids)

	orders, err := uc.orderRepo.GetByIDsForUpdate(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Order, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
	}

	buy, ok := byID[input.BuyOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, input.BuyOrderID)
	}
	sell, ok := byID[input.SellOrderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrderNotFound, input.SellOrderID)
	}

	if err := validateFill(buy, sell, input.Price, input.Quantity); err != nil {
		return nil, err
	}

	if err := uc.ledger.LockAccountsTx(ctx, tx, []domain.AccountKey{
		{UserID: buy.UserID, Asset: buy.Asset},
		{UserID: buy.UserID, Asset: buy.QuoteAsset},
		{UserID: sell.UserID, Asset: sell.Asset},
		{UserID: sell.UserID, Asset: sell.QuoteAsset},
	}); err != nil {
		return nil, err
	}

	if err := uc.ledger.ReleaseTx(ctx, tx, domain.HoldFor(sell, input.Quantity)); err != nil {
		return nil, err
	}
	if err := uc.ledger.ReleaseTx(ctx, tx, domain.HoldFor(buy, input.Quantity)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	quoteAmount := input.Price.Mul(input.Quantity)
	settlement := &domain.Settlement{
		ID:          uc.idGen.Generate(),
		Asset:       buy.Asset,
		QuoteAsset:  buy.QuoteAsset,
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		BuyerID:     buy.UserID,
		SellerID:    sell.UserID,
		Price:       input.Price,
		Quantity:    input.Quantity,
		QuoteAmount: quoteAmount,
		CreatedAt:   now,
	}

	maker, taker := sell, buy
	if buy.CreatedAt.Before(sell.CreatedAt) || (buy.CreatedAt.Equal(sell.CreatedAt) && buy.ID < sell.ID) {
		maker, taker = buy, sell
	}
	settlement.MakerOrderID = maker.ID

	legs := []PostInput{
		{UserID: sell.UserID, Asset: sell.Asset, Amount: input.Quantity.Neg()},
		{UserID: buy.UserID, Asset: buy.Asset, Amount: input.Quantity},
		{UserID: buy.UserID, Asset: buy.QuoteAsset, Amount: quoteAmount.Neg()},
		{UserID: sell.UserID, Asset: sell.QuoteAsset, Amount: quoteAmount},
	}
	for _, leg := range legs {
		leg.CauseType = domain.CauseSettlement
		leg.CauseID = settlement.ID
		if _, err := uc.ledger.PostTx(ctx, tx, leg); err != nil {
			return nil, err
		}
	}

	for _, o := range []*domain.Order{buy, sell} {
		if err := o.Fill(input.Quantity, now); err != nil {
			return nil, err
		}
		if err := uc.orderRepo.Update(ctx, tx, o); err != nil {
			return nil, err
		}
	}

	if err := uc.settlementRepo.Create(ctx, tx, settlement); err != nil {
		return nil, err
	}

	if err := emitEvent(ctx, tx, uc.outboxRepo, uc.idGen, domain.AggregateTypeSettlement, settlement.ID,
		domain.EventTypeTradeSettled, domain.SettlementEventPayload(settlement), now); err != nil {
		return nil, err
	}

	if err := writeAudit(ctx, tx, uc.auditRepo, uc.idGen, taker.UserID, domain.AuditActionTradeSettle,
		domain.AggregateTypeSettlement, settlement.ID, settlement, now); err != nil {
		return nil, err
	}

	return settlement, nil
}

// validateFill checks that buy and sell can trade qty at price.
func validateFill(buy, sell *domain.Order, price, qty decimal.Decimal) error {
	switch {
	case buy.Side != domain.SideBuy || sell.Side != domain.SideSell:
		return fmt.Errorf("%w: fill needs one buy and one sell order", domain.ErrInvalidState)
	case buy.Asset != sell.Asset || buy.QuoteAsset != sell.QuoteAsset:
		return fmt.Errorf("%w: orders belong to different books", domain.ErrInvalidState)
	case buy.UserID == sell.UserID:
		return fmt.Errorf("%w: self-trade", domain.ErrInvalidState)
	case !buy.Status.IsLive():
		return fmt.Errorf("%w: %s", domain.ErrOrderNotLive, buy.ID)
	case !sell.Status.IsLive():
		return fmt.Errorf("%w: %s", domain.ErrOrderNotLive, sell.ID)
	case qty.GreaterThan(buy.Remaining()) || qty.GreaterThan(sell.Remaining()):
		return fmt.Errorf("%w: fill quantity %s exceeds remaining quantity", domain.ErrInvalidState, qty)
	case !buy.Crosses(price) || !sell.Crosses(price):
		return fmt.Errorf("%w: fill price %s outside [%s, %s]", domain.ErrInvalidState, price, sell.Price, buy.Price)
	}
	return nil
}

// CancelOrder cancels a live order owned by userID and releases its remaining
// hold. Settled fills are unaffected.
func (uc *MatchingUseCase) CancelOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := uc.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	unlock, err := uc.locker.Lock(ctx, bookKey(order.Asset, order.QuoteAsset))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var cancelled *domain.Order
	err = runInTx(ctx, uc.txManager, uc.retrier, func(txCtx context.Context, tx Transaction) error {
		orders, err := uc.orderRepo.GetByIDsForUpdate(txCtx, tx, []string{orderID})
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return domain.ErrOrderNotFound
		}
		current := orders[0]

		if !current.Status.IsLive() {
			return fmt.Errorf("%w: order %s is %s", domain.ErrOrderNotLive, current.ID, current.Status)
		}

		if err := uc.ledger.ReleaseTx(txCtx, tx, domain.OutstandingHold(current)); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := current.Cancel(now); err != nil {
			return err
		}
		if err := uc.orderRepo.Update(txCtx, tx, current); err != nil {
			return err
		}

		if err := emitEvent(txCtx, tx, uc.outboxRepo, uc.idGen, domain.AggregateTypeOrder, current.ID,
			domain.EventTypeOrderCancelled, domain.OrderEventPayload(current), now); err != nil {
			return err
		}
		if err := writeAudit(txCtx, tx, uc.auditRepo, uc.idGen, userID, domain.AuditActionOrderCancel,
			domain.AggregateTypeOrder, current.ID, current, now); err != nil {
			return err
		}

		cancelled = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.OrdersCancelled.Inc()
	}

	return cancelled, nil
}

// GetOrder returns an order owned by userID. Other users' orders are reported
// as not found.
func (uc *MatchingUseCase) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	order, err := uc.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders lists a user's orders, newest first.
func (uc *MatchingUseCase) ListOrders(ctx context.Context, input ListOrdersInput) ([]*domain.Order, error) {
	limit, offset, err := domain.ValidatePagination(input.Limit, input.Offset)
	if err != nil {
		return nil, err
	}
	return uc.orderRepo.ListByUser(ctx, input.UserID, limit, offset)
}

// ListSettlements returns the fills of an order owned by userID.
func (uc *MatchingUseCase) ListSettlements(ctx context.Context, userID, orderID string) ([]*domain.Settlement, error) {
	if _, err := uc.GetOrder(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return uc.settlementRepo.ListByOrder(ctx, orderID)
}

// OrderBook returns up to levels aggregated price levels per side.
func (uc *MatchingUseCase) OrderBook(ctx context.Context, asset string, levels int) (*OrderBook, error) {
	asset = domain.NormalizeAsset(asset)
	if err := domain.ValidateAssetSymbol(asset); err != nil {
		return nil, err
	}
	if levels <= 0 || levels > 100 {
		levels = 20
	}

	bids, err := uc.orderRepo.Depth(ctx, asset, uc.quoteAsset, domain.SideBuy, levels)
	if err != nil {
		return nil, err
	}
	asks, err := uc.orderRepo.Depth(ctx, asset, uc.quoteAsset, domain.SideSell, levels)
	if err != nil {
		return nil, err
	}

	return &OrderBook{Asset: asset, QuoteAsset: uc.quoteAsset, Bids: bids, Asks: asks}, nil
}

// newOrder validates the request and builds an open order. Nothing is persisted.
func (uc *MatchingUseCase) newOrder(ctx context.Context, input SubmitOrderInput) (*domain.Order, error) {
	if err := domain.ValidateUserID(input.UserID); err != nil {
		return nil, err
	}
	if !input.Side.IsValid() {
		return nil, fmt.Errorf("%w: side must be buy or sell", domain.ErrInvalidAmount)
	}
	if err := domain.ValidateAmount(input.Quantity); err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	if err := domain.ValidateAmount(input.Price); err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}

	base, err := uc.ledger.RequireAsset(ctx, input.Asset)
	if err != nil {
		return nil, err
	}
	if base.Symbol == uc.quoteAsset {
		return nil, fmt.Errorf("%w: %s is the quote asset", domain.ErrInvalidAmount, base.Symbol)
	}
	quote, err := uc.ledger.RequireAsset(ctx, uc.quoteAsset)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidateScale(input.Quantity, base.Scale); err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	if err := domain.ValidateScale(input.Price, quote.Scale); err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}

	if err := uc.checkPriceBand(ctx, base.Symbol, input.Price); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Order{
		ID:             uc.idGen.Generate(),
		UserID:         input.UserID,
		Asset:          base.Symbol,
		QuoteAsset:     quote.Symbol,
		Side:           input.Side,
		Price:          input.Price,
		Quantity:       input.Quantity,
		FilledQuantity: decimal.Zero,
		Status:         domain.OrderOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// checkPriceBand rejects prices too far from the oracle's reference price.
// An unavailable oracle never blocks an order.
func (uc *MatchingUseCase) checkPriceBand(ctx context.Context, asset string, price decimal.Decimal) error {
	if uc.oracle == nil || !uc.priceBand.IsPositive() {
		return nil
	}

	ref, err := uc.oracle.GetPrice(ctx, asset)
	if err != nil {
		if uc.metrics != nil {
			uc.metrics.OracleErrors.Inc()
		}
		uc.logger.Warn().Err(err).Str("asset", asset).Msg("reference price unavailable, skipping price band check")
		return nil
	}
	if !ref.IsPositive() {
		return nil
	}

	one := decimal.NewFromInt(1)
	lower := ref.Mul(one.Sub(uc.priceBand))
	upper := ref.Mul(one.Add(uc.priceBand))
	if price.LessThan(lower) || price.GreaterThan(upper) {
		return fmt.Errorf("%w: price %s outside band [%s, %s] around reference %s",
			domain.ErrInvalidAmount, price, lower, upper, ref)
	}

	return nil
}

func (uc *MatchingUseCase) rejected(err error) {
	if uc.metrics != nil {
		uc.metrics.OrdersRejected.WithLabelValues(errorReason(err)).Inc()
	}
}

func bookKey(asset, quoteAsset string) string {
	return asset + "/" + quoteAsset
}
