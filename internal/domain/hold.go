package domain

import "github.com/shopspring/decimal"

// Hold is a soft reservation of funds against a live order.
// Holds are not ledger entries; they only raise Account.Held.
type Hold struct {
	UserID string
	Asset  string
	Amount decimal.Decimal
}

// Key returns the account the hold applies to.
func (h Hold) Key() AccountKey {
	return AccountKey{UserID: h.UserID, Asset: h.Asset}
}

// Validate checks if hold is valid.
func (h Hold) Validate() error {
	if h.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	return nil
}

// HoldFor returns the reservation needed for qty of the order:
// sellers reserve the base asset, buyers reserve price * qty of the quote asset.
func HoldFor(o *Order, qty decimal.Decimal) Hold {
	if o.Side == SideSell {
		return Hold{UserID: o.UserID, Asset: o.Asset, Amount: qty}
	}
	return Hold{UserID: o.UserID, Asset: o.QuoteAsset, Amount: o.Price.Mul(qty)}
}

// OutstandingHold returns the reservation still backing the unfilled quantity.
func OutstandingHold(o *Order) Hold {
	return HoldFor(o, o.Remaining())
}
