package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// IsValid reports whether s is buy or sell.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side an order of side s matches against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderOpen            OrderStatus = "open"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
)

// IsLive reports whether the order can still be matched or cancelled.
func (s OrderStatus) IsLive() bool {
	return s == OrderOpen || s == OrderPartiallyFilled
}

// CanTransitionTo reports whether s may move to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderOpen:
		return next == OrderPartiallyFilled || next == OrderFilled || next == OrderCancelled
	case OrderPartiallyFilled:
		return next == OrderPartiallyFilled || next == OrderFilled || next == OrderCancelled
	case OrderFilled, OrderCancelled:
		return false
	}
	return false
}

// Order is a limit order to buy or sell Asset priced in QuoteAsset.
type Order struct {
	ID             string
	UserID         string
	Asset          string
	QuoteAsset     string
	Side           Side
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// Crosses reports whether o accepts an execution at price: at or below its
// limit for a buy, at or above it for a sell.
func (o *Order) Crosses(price decimal.Decimal) bool {
	if o.Side == SideBuy {
		return o.Price.GreaterThanOrEqual(price)
	}
	return o.Price.LessThanOrEqual(price)
}

// HasPriorityOver reports whether o ranks ahead of other on the same side of a book:
// better price first, then earlier creation, then lower id.
func (o *Order) HasPriorityOver(other *Order) bool {
	if !o.Price.Equal(other.Price) {
		if o.Side == SideBuy {
			return o.Price.GreaterThan(other.Price)
		}
		return o.Price.LessThan(other.Price)
	}
	if !o.CreatedAt.Equal(other.CreatedAt) {
		return o.CreatedAt.Before(other.CreatedAt)
	}
	return o.ID < other.ID
}

// Fill records an execution of qty and advances the status.
func (o *Order) Fill(qty decimal.Decimal, at time.Time) error {
	if qty.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	filled := o.FilledQuantity.Add(qty)
	next := OrderPartiallyFilled
	if filled.Equal(o.Quantity) {
		next = OrderFilled
	}
	if !o.Status.CanTransitionTo(next) {
		return ErrOrderNotLive
	}
	if filled.GreaterThan(o.Quantity) {
		return ErrInvalidState
	}

	o.FilledQuantity = filled
	o.Status = next
	o.UpdatedAt = at
	return nil
}

// Cancel moves a live order to cancelled.
func (o *Order) Cancel(at time.Time) error {
	if !o.Status.CanTransitionTo(OrderCancelled) {
		return ErrOrderNotLive
	}
	o.Status = OrderCancelled
	o.UpdatedAt = at
	return nil
}
