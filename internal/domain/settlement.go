package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settlement is one executed fill between a buy and a sell order.
type Settlement struct {
	ID           string
	Asset        string
	QuoteAsset   string
	BuyOrderID   string
	SellOrderID  string
	BuyerID      string
	SellerID     string
	MakerOrderID string
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	QuoteAmount  decimal.Decimal
	CreatedAt    time.Time
}
