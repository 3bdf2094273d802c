package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/adapter/http/dto"
	"github.com/iho/goexchange/internal/domain"
)

// AssetService defines the asset reads needed by AssetHandler.
type AssetService interface {
	ListAssets(ctx context.Context) ([]*domain.Asset, error)
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// AssetHandler serves the asset registry and reference prices.
type AssetHandler struct {
	assetUC    AssetService
	quoteAsset string
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(assetUC AssetService, quoteAsset string) *AssetHandler {
	return &AssetHandler{assetUC: assetUC, quoteAsset: quoteAsset}
}

// List lists the recognized assets.
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	assets, err := h.assetUC.ListAssets(r.Context())
	if err != nil {
		writeDomainError(w, r, "failed to list assets", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AssetsFromDomain(assets))
}

// GetPrice returns the reference price of an asset in the quote asset.
func (h *AssetHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := domain.NormalizeAsset(chi.URLParam(r, "symbol"))

	price, err := h.assetUC.GetPrice(r.Context(), symbol)
	if err != nil {
		writeDomainError(w, r, "failed to get price", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PriceResponse{
		Asset:      symbol,
		QuoteAsset: h.quoteAsset,
		Price:      price.String(),
	})
}
