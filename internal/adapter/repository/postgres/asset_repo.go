package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/goexchange/internal/domain"
)

const assetColumns = `symbol, name, scale, reference_price, created_at, updated_at`

// AssetRepository implements usecase.AssetRepository.
type AssetRepository struct {
	db DBTX
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(db DBTX) *AssetRepository {
	return &AssetRepository{db: db}
}

// Upsert inserts an asset or updates its name, scale and reference price.
func (r *AssetRepository) Upsert(ctx context.Context, asset *domain.Asset) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO assets (`+assetColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol) DO UPDATE
		SET name = EXCLUDED.name,
		    scale = EXCLUDED.scale,
		    reference_price = EXCLUDED.reference_price,
		    updated_at = EXCLUDED.updated_at`,
		asset.Symbol,
		asset.Name,
		asset.Scale,
		decimalToNumeric(asset.ReferencePrice),
		timeToPgTimestamptz(asset.CreatedAt),
		timeToPgTimestamptz(asset.UpdatedAt),
	)

	return err
}

// GetBySymbol retrieves an asset.
func (r *AssetRepository) GetBySymbol(ctx context.Context, symbol string) (*domain.Asset, error) {
	row := r.db.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE symbol = $1`, symbol)

	asset, err := scanAsset(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAssetNotFound
		}
		return nil, err
	}

	return asset, nil
}

// List lists every asset ordered by symbol.
func (r *AssetRepository) List(ctx context.Context) ([]*domain.Asset, error) {
	rows, err := r.db.Query(ctx, `SELECT `+assetColumns+` FROM assets ORDER BY symbol`)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanAsset)
}

func scanAsset(row rowScanner) (*domain.Asset, error) {
	var (
		a                    domain.Asset
		price                pgtype.Numeric
		createdAt, updatedAt pgtype.Timestamptz
	)

	if err := row.Scan(&a.Symbol, &a.Name, &a.Scale, &price, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	a.ReferencePrice = numericToDecimal(price)
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updatedAt.Time

	return &a, nil
}
