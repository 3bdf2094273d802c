package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
	"github.com/iho/goexchange/internal/usecase/mocks"
)

func TestAssetUseCase_UpsertAsset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	asset, err := env.assets.UpsertAsset(ctx, usecase.UpsertAssetInput{Symbol: " sol ", Scale: 9})
	require.NoError(t, err)
	assert.Equal(t, "SOL", asset.Symbol)
	assert.Equal(t, "SOL", asset.Name)

	got, err := env.assets.GetAsset(ctx, "sol")
	require.NoError(t, err)
	assert.Equal(t, int32(9), got.Scale)

	// Upsert updates in place.
	_, err = env.assets.UpsertAsset(ctx, usecase.UpsertAssetInput{Symbol: "SOL", Name: "Solana", Scale: 9, ReferencePrice: dec("150")})
	require.NoError(t, err)
	got, err = env.assets.GetAsset(ctx, "SOL")
	require.NoError(t, err)
	assert.Equal(t, "Solana", got.Name)
	assert.True(t, got.ReferencePrice.Equal(dec("150")))

	all, err := env.assets.ListAssets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestAssetUseCase_UpsertAsset_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		input usecase.UpsertAssetInput
	}{
		{name: "bad symbol", input: usecase.UpsertAssetInput{Symbol: "b!", Scale: 2}},
		{name: "negative scale", input: usecase.UpsertAssetInput{Symbol: "ABC", Scale: -1}},
		{name: "scale too large", input: usecase.UpsertAssetInput{Symbol: "ABC", Scale: domain.MaxAssetScale + 1}},
		{name: "negative price", input: usecase.UpsertAssetInput{Symbol: "ABC", Scale: 2, ReferencePrice: dec("-1")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.assets.UpsertAsset(context.Background(), tt.input)
			require.ErrorIs(t, err, domain.ErrInvalidAmount)
		})
	}
}

func TestAssetUseCase_GetPrice(t *testing.T) {
	ctrl := gomock.NewController(t)
	oracle := mocks.NewMockPriceOracle(ctrl)
	oracle.EXPECT().GetPrice(gomock.Any(), "BTC").Return(dec("42000"), nil)

	env := newTestEnv(t, withOracle(oracle, "0"))

	price, err := env.assets.GetPrice(context.Background(), "btc")
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("42000")))

	_, err = env.assets.GetPrice(context.Background(), "DOGE")
	require.ErrorIs(t, err, domain.ErrAssetNotFound)
}

func TestAssetUseCase_GetPrice_NoOracle(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.assets.GetPrice(context.Background(), "BTC")
	require.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestAssetOracle(t *testing.T) {
	env := newTestEnv(t)
	oracle := usecase.NewAssetOracle(env.store.Assets())
	ctx := context.Background()

	price, err := oracle.GetPrice(ctx, "btc")
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("5")))

	// ETH is registered without a reference price.
	_, err = oracle.GetPrice(ctx, "ETH")
	require.ErrorIs(t, err, domain.ErrPriceUnavailable)

	_, err = oracle.GetPrice(ctx, "DOGE")
	require.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestMatching_PriceBandWithAssetOracle(t *testing.T) {
	// The registry environment seeds the same assets as the banded one.
	registry := newTestEnv(t)
	banded := newTestEnv(t, withOracle(usecase.NewAssetOracle(registry.store.Assets()), "0.1"))

	banded.deposit(t, "x", "USD", "100")

	// BTC reference is 5: a 10% band accepts 5.5 and rejects 6.
	_, err := banded.matching.SubmitOrder(context.Background(), usecase.SubmitOrderInput{
		UserID: "x", Asset: "BTC", Side: domain.SideBuy, Price: dec("6"), Quantity: dec("1"),
	})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = banded.matching.SubmitOrder(context.Background(), usecase.SubmitOrderInput{
		UserID: "x", Asset: "BTC", Side: domain.SideBuy, Price: dec("5.5"), Quantity: dec("1"),
	})
	require.NoError(t, err)
}
