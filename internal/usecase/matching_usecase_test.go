package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
	"github.com/iho/goexchange/internal/usecase/mocks"
)

func TestMatching_SellerMakerSettlesAtMakerPrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.deposit(t, "x", "BTC", "10")
	env.deposit(t, "y", "USD", "100")

	sell := env.submit(t, "x", domain.SideSell, "10", "5")
	assert.Equal(t, domain.OrderOpen, sell.Order.Status)
	assert.Empty(t, sell.Settlements)
	env.requireBalance(t, "x", "BTC", "10", "10")

	buy := env.submit(t, "y", domain.SideBuy, "10", "6")
	require.Len(t, buy.Settlements, 1)

	fill := buy.Settlements[0]
	assert.True(t, fill.Price.Equal(dec("5")), "fill price %s", fill.Price)
	assert.True(t, fill.Quantity.Equal(dec("10")))
	assert.True(t, fill.QuoteAmount.Equal(dec("50")))
	assert.Equal(t, sell.Order.ID, fill.MakerOrderID)
	assert.Equal(t, "y", fill.BuyerID)
	assert.Equal(t, "x", fill.SellerID)
	assert.Equal(t, domain.OrderFilled, buy.Order.Status)

	soldOrder, err := env.matching.GetOrder(ctx, "x", sell.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, soldOrder.Status)

	env.requireBalance(t, "x", "BTC", "0", "0")
	env.requireBalance(t, "y", "BTC", "10", "0")
	env.requireBalance(t, "y", "USD", "50", "0")
	env.requireBalance(t, "x", "USD", "50", "0")

	entries, err := env.entries.GetEntriesByCause(ctx, domain.CauseSettlement, fill.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	fills, err := env.matching.ListSettlements(ctx, "x", sell.Order.ID)
	require.NoError(t, err)
	assert.Len(t, fills, 1)

	env.requireReconciled(t)
}

func TestMatching_BuyerMakerSettlesAtBidPrice(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "x", "BTC", "4")
	env.deposit(t, "y", "USD", "100")

	buy := env.submit(t, "y", domain.SideBuy, "4", "7")
	env.requireBalance(t, "y", "USD", "100", "28")

	sell := env.submit(t, "x", domain.SideSell, "4", "5")
	require.Len(t, sell.Settlements, 1)
	assert.True(t, sell.Settlements[0].Price.Equal(dec("7")))
	assert.Equal(t, buy.Order.ID, sell.Settlements[0].MakerOrderID)

	env.requireBalance(t, "y", "USD", "72", "0")
	env.requireBalance(t, "x", "USD", "28", "0")
	env.requireBalance(t, "y", "BTC", "4", "0")
	env.requireReconciled(t)
}

func TestMatching_PriceTimePriority(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, u := range []string{"a", "b", "c"} {
		env.deposit(t, u, "BTC", "10")
	}
	env.deposit(t, "buyer", "USD", "1000")

	first := env.submit(t, "a", domain.SideSell, "3", "5")
	second := env.submit(t, "b", domain.SideSell, "3", "5")
	better := env.submit(t, "c", domain.SideSell, "3", "4")

	res := env.submit(t, "buyer", domain.SideBuy, "5", "5")
	require.Len(t, res.Settlements, 2)

	// Best price first, then the earlier of two equal prices.
	assert.Equal(t, better.Order.ID, res.Settlements[0].SellOrderID)
	assert.True(t, res.Settlements[0].Price.Equal(dec("4")))
	assert.Equal(t, first.Order.ID, res.Settlements[1].SellOrderID)
	assert.True(t, res.Settlements[1].Quantity.Equal(dec("2")))

	a, err := env.matching.GetOrder(ctx, "a", first.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPartiallyFilled, a.Status)
	assert.True(t, a.Remaining().Equal(dec("1")))

	b, err := env.matching.GetOrder(ctx, "b", second.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderOpen, b.Status)

	// 3*4 + 2*5 = 22 spent, nothing left on hold.
	env.requireBalance(t, "buyer", "USD", "978", "0")
	env.requireBalance(t, "buyer", "BTC", "5", "0")
	env.requireBalance(t, "a", "BTC", "8", "1")
	env.requireReconciled(t)
}

func TestMatching_PartialFillRestsRemainder(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "x", "BTC", "2")
	env.deposit(t, "y", "USD", "100")

	env.submit(t, "x", domain.SideSell, "2", "5")
	res := env.submit(t, "y", domain.SideBuy, "5", "6")

	require.Len(t, res.Settlements, 1)
	assert.Equal(t, domain.OrderPartiallyFilled, res.Order.Status)
	assert.True(t, res.Order.FilledQuantity.Equal(dec("2")))

	// Paid 10 for 2; 3 remaining at the limit price of 6 stay held.
	env.requireBalance(t, "y", "USD", "90", "18")
	env.requireReconciled(t)
}

func TestMatching_NoCrossNoFill(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.deposit(t, "x", "BTC", "1")
	env.deposit(t, "y", "USD", "100")

	env.submit(t, "x", domain.SideSell, "1", "10")
	res := env.submit(t, "y", domain.SideBuy, "1", "9")
	assert.Empty(t, res.Settlements)

	book, err := env.matching.OrderBook(ctx, "btc", 10)
	require.NoError(t, err)
	require.Len(t, book.Bids, 1)
	require.Len(t, book.Asks, 1)
	assert.True(t, book.Bids[0].Price.Equal(dec("9")))
	assert.True(t, book.Asks[0].Price.Equal(dec("10")))
	assert.Equal(t, "USD", book.QuoteAsset)
}

func TestMatching_SelfTradePrevention(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "x", "BTC", "1")
	env.deposit(t, "x", "USD", "100")

	env.submit(t, "x", domain.SideSell, "1", "5")
	res := env.submit(t, "x", domain.SideBuy, "1", "6")

	assert.Empty(t, res.Settlements)
	assert.Equal(t, domain.OrderOpen, res.Order.Status)
	env.requireBalance(t, "x", "BTC", "1", "1")
	env.requireBalance(t, "x", "USD", "100", "6")
}

func TestMatching_SubmitRejections(t *testing.T) {
	tests := []struct {
		name    string
		input   usecase.SubmitOrderInput
		wantErr error
	}{
		{
			name:    "zero quantity",
			input:   usecase.SubmitOrderInput{UserID: "x", Asset: "BTC", Side: domain.SideSell, Price: dec("5"), Quantity: dec("0")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "negative price",
			input:   usecase.SubmitOrderInput{UserID: "x", Asset: "BTC", Side: domain.SideSell, Price: dec("-5"), Quantity: dec("1")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "bad side",
			input:   usecase.SubmitOrderInput{UserID: "x", Asset: "BTC", Side: "hold", Price: dec("5"), Quantity: dec("1")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "unknown asset",
			input:   usecase.SubmitOrderInput{UserID: "x", Asset: "XRP", Side: domain.SideSell, Price: dec("5"), Quantity: dec("1")},
			wantErr: domain.ErrUnknownAsset,
		},
		{
			name:    "quote asset as base",
			input:   usecase.SubmitOrderInput{UserID: "x", Asset: "USD", Side: domain.SideSell, Price: dec("1"), Quantity: dec("1")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "price finer than quote scale",
			input:   usecase.SubmitOrderInput{UserID: "x", Asset: "BTC", Side: domain.SideSell, Price: dec("5.001"), Quantity: dec("1")},
			wantErr: domain.ErrInvalidAmount,
		},
		{
			name:    "sell without balance",
			input:   usecase.SubmitOrderInput{UserID: "x", Asset: "BTC", Side: domain.SideSell, Price: dec("5"), Quantity: dec("11")},
			wantErr: domain.ErrInsufficientFunds,
		},
		{
			name:    "buy without quote balance",
			input:   usecase.SubmitOrderInput{UserID: "x", Asset: "BTC", Side: domain.SideBuy, Price: dec("5"), Quantity: dec("1")},
			wantErr: domain.ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.deposit(t, "x", "BTC", "10")

			res, err := env.matching.SubmitOrder(context.Background(), tt.input)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)

			orders, err := env.matching.ListOrders(context.Background(), usecase.ListOrdersInput{UserID: "x"})
			require.NoError(t, err)
			assert.Empty(t, orders)
			env.requireBalance(t, "x", "BTC", "10", "0")
		})
	}
}

func TestMatching_SettlementIsAtomic(t *testing.T) {
	for failOn := 1; failOn <= 4; failOn++ {
		poster := &failingPoster{}
		env := newTestEnv(t, withPoster(func(p usecase.Poster) usecase.Poster {
			poster.Poster = p
			return poster
		}))
		ctx := context.Background()
		env.deposit(t, "x", "BTC", "10")
		env.deposit(t, "y", "USD", "100")

		sell := env.submit(t, "x", domain.SideSell, "10", "5")

		poster.arm(failOn)
		res, err := env.matching.SubmitOrder(ctx, usecase.SubmitOrderInput{
			UserID: "y", Asset: "BTC", Side: domain.SideBuy, Price: dec("6"), Quantity: dec("10"),
		})
		require.ErrorIs(t, err, mocks.ErrInjected, "leg %d", failOn)
		require.NotNil(t, res)
		assert.Empty(t, res.Settlements)

		// Both orders and all four wallets are exactly as before the fill.
		for _, o := range []struct{ user, id string }{{"x", sell.Order.ID}, {"y", res.Order.ID}} {
			order, err := env.matching.GetOrder(ctx, o.user, o.id)
			require.NoError(t, err)
			assert.Equal(t, domain.OrderOpen, order.Status)
			assert.True(t, order.FilledQuantity.IsZero())
		}
		env.requireBalance(t, "x", "BTC", "10", "10")
		env.requireBalance(t, "x", "USD", "0", "0")
		env.requireBalance(t, "y", "USD", "100", "60")
		env.requireBalance(t, "y", "BTC", "0", "0")

		fills, err := env.matching.ListSettlements(ctx, "x", sell.Order.ID)
		require.NoError(t, err)
		assert.Empty(t, fills)
		env.requireReconciled(t)

		// The book is intact and a later pass settles normally.
		settled, err := env.matching.Match(ctx, res.Order.ID)
		require.NoError(t, err)
		require.Len(t, settled, 1)
		env.requireBalance(t, "y", "BTC", "10", "0")
		env.requireReconciled(t)
	}
}

func TestMatching_RecoverableFailureStopsSweepAndIsReported(t *testing.T) {
	poster := &failingPoster{err: fmt.Errorf("%w: maker wallet drained", domain.ErrInsufficientFunds)}
	env := newTestEnv(t, withPoster(func(p usecase.Poster) usecase.Poster {
		poster.Poster = p
		return poster
	}))
	ctx := context.Background()
	env.deposit(t, "x", "BTC", "10")
	env.deposit(t, "y", "USD", "100")

	env.submit(t, "x", domain.SideSell, "1", "5")
	second := env.submit(t, "x", domain.SideSell, "1", "5")

	// The first fill posts four legs; the second fill fails on its first leg.
	poster.arm(5)
	res, err := env.matching.SubmitOrder(ctx, usecase.SubmitOrderInput{
		UserID: "y", Asset: "BTC", Side: domain.SideBuy, Price: dec("5"), Quantity: dec("2"),
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	require.NotNil(t, res)
	require.Len(t, res.Settlements, 1)
	assert.Equal(t, domain.OrderPartiallyFilled, res.Order.Status)
	assert.True(t, res.Order.FilledQuantity.Equal(dec("1")))

	env.requireBalance(t, "y", "BTC", "1", "0")
	env.requireBalance(t, "y", "USD", "95", "5")
	env.requireBalance(t, "x", "BTC", "9", "1")
	env.requireBalance(t, "x", "USD", "5", "0")
	env.requireReconciled(t)

	resting, err := env.matching.GetOrder(ctx, "x", second.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderOpen, resting.Status)

	settled, err := env.matching.Match(ctx, res.Order.ID)
	require.NoError(t, err)
	require.Len(t, settled, 1)
	env.requireBalance(t, "y", "BTC", "2", "0")
	env.requireReconciled(t)
}

func TestMatching_SettleRevalidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.deposit(t, "x", "BTC", "10")
	env.deposit(t, "y", "USD", "100")

	sell := env.submit(t, "x", domain.SideSell, "2", "5")
	buy := env.submit(t, "y", domain.SideBuy, "1", "4")

	tests := []struct {
		name    string
		input   usecase.SettleInput
		wantErr error
	}{
		{
			name:    "price outside both limits",
			input:   usecase.SettleInput{BuyOrderID: buy.Order.ID, SellOrderID: sell.Order.ID, Price: dec("5"), Quantity: dec("1")},
			wantErr: domain.ErrInvalidState,
		},
		{
			name:    "price below the seller's limit",
			input:   usecase.SettleInput{BuyOrderID: buy.Order.ID, SellOrderID: sell.Order.ID, Price: dec("3"), Quantity: dec("1")},
			wantErr: domain.ErrInvalidState,
		},
		{
			name:    "sides swapped",
			input:   usecase.SettleInput{BuyOrderID: sell.Order.ID, SellOrderID: buy.Order.ID, Price: dec("4"), Quantity: dec("1")},
			wantErr: domain.ErrInvalidState,
		},
		{
			name:    "unknown order",
			input:   usecase.SettleInput{BuyOrderID: "missing", SellOrderID: sell.Order.ID, Price: dec("5"), Quantity: dec("1")},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "zero quantity",
			input:   usecase.SettleInput{BuyOrderID: buy.Order.ID, SellOrderID: sell.Order.ID, Price: dec("4"), Quantity: decimal.Zero},
			wantErr: domain.ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.matching.Settle(ctx, tt.input)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	env.requireBalance(t, "x", "BTC", "10", "2")
	env.requireBalance(t, "y", "USD", "100", "4")
}

func TestMatching_CancelTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.deposit(t, "x", "BTC", "10")

	res := env.submit(t, "x", domain.SideSell, "10", "5")

	cancelled, err := env.matching.CancelOrder(ctx, "x", res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)
	env.requireBalance(t, "x", "BTC", "10", "0")

	_, err = env.matching.CancelOrder(ctx, "x", res.Order.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	env.requireBalance(t, "x", "BTC", "10", "0")
}

func TestMatching_CancelPartiallyFilledKeepsFills(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.deposit(t, "x", "BTC", "10")
	env.deposit(t, "y", "USD", "100")

	sell := env.submit(t, "x", domain.SideSell, "10", "5")
	env.submit(t, "y", domain.SideBuy, "4", "5")

	cancelled, err := env.matching.CancelOrder(ctx, "x", sell.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)
	assert.True(t, cancelled.FilledQuantity.Equal(dec("4")))

	env.requireBalance(t, "x", "BTC", "6", "0")
	env.requireBalance(t, "x", "USD", "20", "0")
	env.requireBalance(t, "y", "BTC", "4", "0")
	env.requireReconciled(t)
}

func TestMatching_CancelFilledOrder(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "x", "BTC", "1")
	env.deposit(t, "y", "USD", "10")

	sell := env.submit(t, "x", domain.SideSell, "1", "5")
	env.submit(t, "y", domain.SideBuy, "1", "5")

	_, err := env.matching.CancelOrder(context.Background(), "x", sell.Order.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotLive)
}

func TestMatching_OtherUsersOrderIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.deposit(t, "x", "BTC", "1")
	res := env.submit(t, "x", domain.SideSell, "1", "5")

	_, err := env.matching.CancelOrder(ctx, "mallory", res.Order.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.matching.GetOrder(ctx, "mallory", res.Order.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)

	env.requireBalance(t, "x", "BTC", "1", "1")
}

func TestMatching_PriceBand(t *testing.T) {
	ctrl := gomock.NewController(t)
	oracle := mocks.NewMockPriceOracle(ctrl)
	oracle.EXPECT().GetPrice(gomock.Any(), "BTC").Return(dec("100"), nil).AnyTimes()

	env := newTestEnv(t, withOracle(oracle, "0.1"))
	env.deposit(t, "x", "BTC", "10")

	_, err := env.matching.SubmitOrder(context.Background(), usecase.SubmitOrderInput{
		UserID: "x", Asset: "BTC", Side: domain.SideSell, Price: dec("120"), Quantity: dec("1"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	res := env.submit(t, "x", domain.SideSell, "1", "95")
	// The oracle never overrides the order price.
	assert.True(t, res.Order.Price.Equal(dec("95")))
}

func TestMatching_OracleUnavailableDoesNotBlock(t *testing.T) {
	ctrl := gomock.NewController(t)
	oracle := mocks.NewMockPriceOracle(ctrl)
	oracle.EXPECT().GetPrice(gomock.Any(), "BTC").Return(decimal.Zero, errors.New("feed down"))

	env := newTestEnv(t, withOracle(oracle, "0.1"))
	env.deposit(t, "x", "BTC", "10")

	res := env.submit(t, "x", domain.SideSell, "1", "500")
	assert.Equal(t, domain.OrderOpen, res.Order.Status)
}

func TestMatching_ConcurrentSubmissionsConserveAssets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	users := []string{"u1", "u2", "u3", "u4"}
	for _, u := range users {
		env.deposit(t, u, "BTC", "20")
		env.deposit(t, u, "USD", "1000")
	}

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			side := domain.SideBuy
			if i%2 == 0 {
				side = domain.SideSell
			}
			for j := 0; j < 5; j++ {
				_, _ = env.matching.SubmitOrder(ctx, usecase.SubmitOrderInput{
					UserID:   u,
					Asset:    "BTC",
					Side:     side,
					Price:    dec("10").Add(decimal.NewFromInt(int64(j % 3))),
					Quantity: dec("1.5"),
				})
			}
		}(i, u)
	}
	wg.Wait()

	totalBTC, totalUSD := decimal.Zero, decimal.Zero
	for _, u := range users {
		b, err := env.ledger.GetBalance(ctx, u, "BTC")
		require.NoError(t, err)
		q, err := env.ledger.GetBalance(ctx, u, "USD")
		require.NoError(t, err)
		totalBTC = totalBTC.Add(b)
		totalUSD = totalUSD.Add(q)
	}

	assert.True(t, totalBTC.Equal(dec("80")), "BTC total %s", totalBTC)
	assert.True(t, totalUSD.Equal(dec("4000")), "USD total %s", totalUSD)
	env.requireReconciled(t)
}
