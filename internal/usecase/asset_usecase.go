package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
)

// AssetUseCase manages the recognized assets and exposes reference prices.
type AssetUseCase struct {
	assetRepo AssetRepository
	oracle    PriceOracle
}

// NewAssetUseCase creates a new AssetUseCase.
func NewAssetUseCase(assetRepo AssetRepository, oracle PriceOracle) *AssetUseCase {
	return &AssetUseCase{
		assetRepo: assetRepo,
		oracle:    oracle,
	}
}

// UpsertAssetInput represents input for registering or updating an asset.
type UpsertAssetInput struct {
	Symbol         string
	Name           string
	Scale          int32
	ReferencePrice decimal.Decimal
}

// UpsertAsset registers an asset or updates its name, scale and reference price.
func (uc *AssetUseCase) UpsertAsset(ctx context.Context, input UpsertAssetInput) (*domain.Asset, error) {
	symbol := domain.NormalizeAsset(input.Symbol)
	if err := domain.ValidateAssetSymbol(symbol); err != nil {
		return nil, err
	}
	if input.Scale < 0 || input.Scale > domain.MaxAssetScale {
		return nil, fmt.Errorf("%w: scale must be between 0 and %d", domain.ErrInvalidAmount, domain.MaxAssetScale)
	}
	if input.ReferencePrice.IsNegative() {
		return nil, fmt.Errorf("%w: reference price must not be negative", domain.ErrInvalidAmount)
	}

	name := input.Name
	if name == "" {
		name = symbol
	}

	now := time.Now().UTC()
	asset := &domain.Asset{
		Symbol:         symbol,
		Name:           name,
		Scale:          input.Scale,
		ReferencePrice: input.ReferencePrice,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := uc.assetRepo.Upsert(ctx, asset); err != nil {
		return nil, err
	}

	return asset, nil
}

// GetAsset retrieves an asset by symbol.
func (uc *AssetUseCase) GetAsset(ctx context.Context, symbol string) (*domain.Asset, error) {
	return uc.assetRepo.GetBySymbol(ctx, domain.NormalizeAsset(symbol))
}

// ListAssets lists every recognized asset.
func (uc *AssetUseCase) ListAssets(ctx context.Context) ([]*domain.Asset, error) {
	return uc.assetRepo.List(ctx)
}

// GetPrice returns the oracle's reference price for display.
func (uc *AssetUseCase) GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	asset, err := uc.GetAsset(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if uc.oracle == nil {
		return decimal.Zero, domain.ErrPriceUnavailable
	}
	return uc.oracle.GetPrice(ctx, asset.Symbol)
}
