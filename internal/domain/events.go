package domain

import "time"

// Event types
const (
	EventTypeOrderSubmitted       = "order.submitted"
	EventTypeOrderCancelled       = "order.cancelled"
	EventTypeTradeSettled         = "trade.settled"
	EventTypeTransactionCompleted = "transaction.completed"
	EventTypeTransactionFailed    = "transaction.failed"
	EventTypeUserArchived         = "user.archived"
)

// Aggregate types
const (
	AggregateTypeOrder       = "order"
	AggregateTypeSettlement  = "settlement"
	AggregateTypeTransaction = "transaction"
	AggregateTypeUser        = "user"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// OrderEventPayload builds the payload shared by order events.
func OrderEventPayload(o *Order) map[string]any {
	return map[string]any{
		"order_id":        o.ID,
		"user_id":         o.UserID,
		"asset":           o.Asset,
		"quote_asset":     o.QuoteAsset,
		"side":            string(o.Side),
		"price":           o.Price.String(),
		"quantity":        o.Quantity.String(),
		"filled_quantity": o.FilledQuantity.String(),
		"status":          string(o.Status),
	}
}

// SettlementEventPayload builds the trade.settled payload.
func SettlementEventPayload(s *Settlement) map[string]any {
	return map[string]any{
		"settlement_id":  s.ID,
		"asset":          s.Asset,
		"quote_asset":    s.QuoteAsset,
		"buy_order_id":   s.BuyOrderID,
		"sell_order_id":  s.SellOrderID,
		"buyer_id":       s.BuyerID,
		"seller_id":      s.SellerID,
		"maker_order_id": s.MakerOrderID,
		"price":          s.Price.String(),
		"quantity":       s.Quantity.String(),
		"quote_amount":   s.QuoteAmount.String(),
	}
}

// TransactionEventPayload builds the payload for transaction events.
func TransactionEventPayload(t *Transaction) map[string]any {
	payload := map[string]any{
		"transaction_id": t.ID,
		"type":           string(t.Type),
		"user_id":        t.UserID,
		"asset":          t.Asset,
		"amount":         t.Amount.String(),
		"status":         string(t.Status),
	}
	if t.CounterpartyUserID != "" {
		payload["counterparty_user_id"] = t.CounterpartyUserID
	}
	if t.FailureReason != "" {
		payload["failure_reason"] = t.FailureReason
	}
	return payload
}
