package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

// BalanceResponse represents a wallet balance in API responses.
type BalanceResponse struct {
	UserID    string     `json:"user_id"`
	Asset     string     `json:"asset"`
	Balance   string     `json:"balance"`
	Held      string     `json:"held,omitempty"`
	Available string     `json:"available,omitempty"`
	At        *time.Time `json:"at,omitempty"`
}

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Asset      string     `json:"asset"`
	Balance    string     `json:"balance"`
	Held       string     `json:"held"`
	Available  string     `json:"available"`
	Version    int64      `json:"version"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// AccountFromDomain converts domain account to response.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	return &AccountResponse{
		ID:         a.ID,
		UserID:     a.UserID,
		Asset:      a.Asset,
		Balance:    a.Balance.String(),
		Held:       a.Held.String(),
		Available:  a.Available().String(),
		Version:    a.Version,
		ArchivedAt: a.ArchivedAt,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// AccountsFromDomain converts domain accounts to responses.
func AccountsFromDomain(accounts []*domain.Account) []*AccountResponse {
	result := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountFromDomain(a)
	}
	return result
}

// ListAccountsResponse represents a list of accounts.
type ListAccountsResponse struct {
	Accounts []*AccountResponse `json:"accounts"`
	Total    int64              `json:"total"`
}

// ArchiveResponse reports how many wallets were archived.
type ArchiveResponse struct {
	UserID   string `json:"user_id"`
	Archived int    `json:"archived"`
}

// EntryResponse represents an entry in API responses.
type EntryResponse struct {
	ID                     string    `json:"id"`
	AccountID              string    `json:"account_id"`
	CauseType              string    `json:"cause_type"`
	CauseID                string    `json:"cause_id"`
	Amount                 string    `json:"amount"`
	AccountPreviousBalance string    `json:"account_previous_balance"`
	AccountCurrentBalance  string    `json:"account_current_balance"`
	AccountVersion         int64     `json:"account_version"`
	CreatedAt              time.Time `json:"created_at"`
}

// EntryFromDomain converts domain entry to response.
func EntryFromDomain(e *domain.Entry) *EntryResponse {
	return &EntryResponse{
		ID:                     e.ID,
		AccountID:              e.AccountID,
		CauseType:              string(e.CauseType),
		CauseID:                e.CauseID,
		Amount:                 e.Amount.String(),
		AccountPreviousBalance: e.AccountPreviousBalance.String(),
		AccountCurrentBalance:  e.AccountCurrentBalance.String(),
		AccountVersion:         e.AccountVersion,
		CreatedAt:              e.CreatedAt,
	}
}

// EntriesFromDomain converts domain entries to responses.
func EntriesFromDomain(entries []*domain.Entry) []*EntryResponse {
	result := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		result[i] = EntryFromDomain(e)
	}
	return result
}

// TransactionResponse represents a journal record in API responses.
type TransactionResponse struct {
	ID                 string    `json:"id"`
	Type               string    `json:"type"`
	UserID             string    `json:"user_id"`
	CounterpartyUserID string    `json:"counterparty_user_id,omitempty"`
	Asset              string    `json:"asset"`
	Amount             string    `json:"amount"`
	Status             string    `json:"status"`
	FailureReason      string    `json:"failure_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TransactionFromDomain converts a journal record to response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:                 t.ID,
		Type:               string(t.Type),
		UserID:             t.UserID,
		CounterpartyUserID: t.CounterpartyUserID,
		Asset:              t.Asset,
		Amount:             t.Amount.String(),
		Status:             string(t.Status),
		FailureReason:      t.FailureReason,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

// TransactionsFromDomain converts journal records to responses.
func TransactionsFromDomain(records []*domain.Transaction) []*TransactionResponse {
	result := make([]*TransactionResponse, len(records))
	for i, t := range records {
		result[i] = TransactionFromDomain(t)
	}
	return result
}

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Asset          string    `json:"asset"`
	QuoteAsset     string    `json:"quote_asset"`
	Side           string    `json:"side"`
	Price          string    `json:"price"`
	Quantity       string    `json:"quantity"`
	FilledQuantity string    `json:"filled_quantity"`
	Remaining      string    `json:"remaining"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// OrderFromDomain converts domain order to response.
func OrderFromDomain(o *domain.Order) *OrderResponse {
	return &OrderResponse{
		ID:             o.ID,
		UserID:         o.UserID,
		Asset:          o.Asset,
		QuoteAsset:     o.QuoteAsset,
		Side:           string(o.Side),
		Price:          o.Price.String(),
		Quantity:       o.Quantity.String(),
		FilledQuantity: o.FilledQuantity.String(),
		Remaining:      o.Remaining().String(),
		Status:         string(o.Status),
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// OrdersFromDomain converts domain orders to responses.
func OrdersFromDomain(orders []*domain.Order) []*OrderResponse {
	result := make([]*OrderResponse, len(orders))
	for i, o := range orders {
		result[i] = OrderFromDomain(o)
	}
	return result
}

// SettlementResponse represents a settled fill in API responses.
type SettlementResponse struct {
	ID           string    `json:"id"`
	Asset        string    `json:"asset"`
	QuoteAsset   string    `json:"quote_asset"`
	BuyOrderID   string    `json:"buy_order_id"`
	SellOrderID  string    `json:"sell_order_id"`
	BuyerID      string    `json:"buyer_id"`
	SellerID     string    `json:"seller_id"`
	MakerOrderID string    `json:"maker_order_id"`
	Price        string    `json:"price"`
	Quantity     string    `json:"quantity"`
	QuoteAmount  string    `json:"quote_amount"`
	CreatedAt    time.Time `json:"created_at"`
}

// SettlementFromDomain converts a settlement to response.
func SettlementFromDomain(s *domain.Settlement) *SettlementResponse {
	return &SettlementResponse{
		ID:           s.ID,
		Asset:        s.Asset,
		QuoteAsset:   s.QuoteAsset,
		BuyOrderID:   s.BuyOrderID,
		SellOrderID:  s.SellOrderID,
		BuyerID:      s.BuyerID,
		SellerID:     s.SellerID,
		MakerOrderID: s.MakerOrderID,
		Price:        s.Price.String(),
		Quantity:     s.Quantity.String(),
		QuoteAmount:  s.QuoteAmount.String(),
		CreatedAt:    s.CreatedAt,
	}
}

// SettlementsFromDomain converts settlements to responses.
func SettlementsFromDomain(settlements []*domain.Settlement) []*SettlementResponse {
	result := make([]*SettlementResponse, len(settlements))
	for i, s := range settlements {
		result[i] = SettlementFromDomain(s)
	}
	return result
}

// SubmitOrderResponse is the order after its matching pass plus its fills.
// MatchError is set when matching stopped early; the order itself is persisted.
type SubmitOrderResponse struct {
	Order       *OrderResponse        `json:"order"`
	Settlements []*SettlementResponse `json:"settlements"`
	MatchError  string                `json:"match_error,omitempty"`
}

// SubmitOrderFromResult converts a submit result to response.
func SubmitOrderFromResult(r *usecase.SubmitOrderResult) *SubmitOrderResponse {
	return &SubmitOrderResponse{
		Order:       OrderFromDomain(r.Order),
		Settlements: SettlementsFromDomain(r.Settlements),
	}
}

// PriceLevelResponse is one aggregated price level.
type PriceLevelResponse struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Orders   int    `json:"orders"`
}

// OrderBookResponse is the depth of one book.
type OrderBookResponse struct {
	Asset      string                `json:"asset"`
	QuoteAsset string                `json:"quote_asset"`
	Bids       []*PriceLevelResponse `json:"bids"`
	Asks       []*PriceLevelResponse `json:"asks"`
}

// OrderBookFromUseCase converts book depth to response.
func OrderBookFromUseCase(b *usecase.OrderBook) *OrderBookResponse {
	return &OrderBookResponse{
		Asset:      b.Asset,
		QuoteAsset: b.QuoteAsset,
		Bids:       levels(b.Bids),
		Asks:       levels(b.Asks),
	}
}

func levels(in []usecase.PriceLevel) []*PriceLevelResponse {
	out := make([]*PriceLevelResponse, len(in))
	for i, l := range in {
		out[i] = &PriceLevelResponse{Price: l.Price.String(), Quantity: l.Quantity.String(), Orders: l.Orders}
	}
	return out
}

// AssetResponse represents an asset in API responses.
type AssetResponse struct {
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	Scale          int32  `json:"scale"`
	ReferencePrice string `json:"reference_price,omitempty"`
}

// AssetFromDomain converts domain asset to response.
func AssetFromDomain(a *domain.Asset) *AssetResponse {
	resp := &AssetResponse{Symbol: a.Symbol, Name: a.Name, Scale: a.Scale}
	if a.HasReferencePrice() {
		resp.ReferencePrice = a.ReferencePrice.String()
	}
	return resp
}

// AssetsFromDomain converts domain assets to responses.
func AssetsFromDomain(assets []*domain.Asset) []*AssetResponse {
	result := make([]*AssetResponse, len(assets))
	for i, a := range assets {
		result[i] = AssetFromDomain(a)
	}
	return result
}

// PriceResponse is a reference price.
type PriceResponse struct {
	Asset      string `json:"asset"`
	QuoteAsset string `json:"quote_asset"`
	Price      string `json:"price"`
}

// ConsistencyResponse reports the ledger-wide balance check.
type ConsistencyResponse struct {
	Consistent bool   `json:"consistent"`
	Status     string `json:"status"`
}

// ReconciliationResultResponse is one account's reconciliation result.
type ReconciliationResultResponse struct {
	AccountID         string `json:"account_id"`
	UserID            string `json:"user_id"`
	Asset             string `json:"asset"`
	RecordedBalance   string `json:"recorded_balance"`
	CalculatedBalance string `json:"calculated_balance"`
	Held              string `json:"held"`
	Difference        string `json:"difference"`
}

// ReconciliationReportResponse is a full reconciliation report.
type ReconciliationReportResponse struct {
	TotalAccounts      int                             `json:"total_accounts"`
	ReconciledAccounts int                             `json:"reconciled_accounts"`
	LedgerConsistent   bool                            `json:"ledger_consistent"`
	Discrepancies      []*ReconciliationResultResponse `json:"discrepancies"`
	CheckedAt          time.Time                       `json:"checked_at"`
}

// ReconciliationReportFromUseCase converts a report to response.
func ReconciliationReportFromUseCase(r *usecase.ReconciliationReport) *ReconciliationReportResponse {
	resp := &ReconciliationReportResponse{
		TotalAccounts:      r.TotalAccounts,
		ReconciledAccounts: r.ReconciledAccounts,
		LedgerConsistent:   r.LedgerConsistent,
		Discrepancies:      make([]*ReconciliationResultResponse, len(r.Discrepancies)),
		CheckedAt:          r.CheckedAt,
	}
	for i, d := range r.Discrepancies {
		resp.Discrepancies[i] = &ReconciliationResultResponse{
			AccountID:         d.AccountID,
			UserID:            d.UserID,
			Asset:             d.Asset,
			RecordedBalance:   d.RecordedBalance.String(),
			CalculatedBalance: d.CalculatedBalance.String(),
			Held:              d.Held.String(),
			Difference:        d.Difference.String(),
		}
	}
	return resp
}

// BalanceFromAccount builds a balance response from an account.
func BalanceFromAccount(a *domain.Account) *BalanceResponse {
	return &BalanceResponse{
		UserID:    a.UserID,
		Asset:     a.Asset,
		Balance:   a.Balance.String(),
		Held:      a.Held.String(),
		Available: a.Available().String(),
	}
}

// HistoricalBalance builds a balance response for a point in time.
func HistoricalBalance(userID, asset string, balance decimal.Decimal, at time.Time) *BalanceResponse {
	return &BalanceResponse{
		UserID:  userID,
		Asset:   asset,
		Balance: balance.String(),
		At:      &at,
	}
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`

	// TransactionID points at the failed journal record of a rejected request.
	TransactionID string `json:"transaction_id,omitempty"`
}
