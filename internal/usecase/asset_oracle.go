package usecase

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
)

// AssetOracle serves the reference prices published in the asset registry.
type AssetOracle struct {
	assetRepo AssetRepository
}

// NewAssetOracle creates a PriceOracle backed by the asset registry.
func NewAssetOracle(assetRepo AssetRepository) *AssetOracle {
	return &AssetOracle{assetRepo: assetRepo}
}

// GetPrice returns the asset's reference price, or ErrPriceUnavailable when none is published.
func (o *AssetOracle) GetPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	a, err := o.assetRepo.GetBySymbol(ctx, domain.NormalizeAsset(asset))
	if err != nil {
		if errors.Is(err, domain.ErrAssetNotFound) {
			return decimal.Zero, domain.ErrPriceUnavailable
		}
		return decimal.Zero, err
	}

	if !a.HasReferencePrice() {
		return decimal.Zero, domain.ErrPriceUnavailable
	}

	return a.ReferencePrice, nil
}
