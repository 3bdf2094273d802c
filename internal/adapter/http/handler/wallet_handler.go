package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/adapter/http/dto"
	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

// BalanceService defines the ledger reads needed by WalletHandler.
type BalanceService interface {
	GetAccount(ctx context.Context, userID, asset string) (*domain.Account, error)
}

// AccountService defines the account operations needed by WalletHandler.
type AccountService interface {
	ListAccountsByUser(ctx context.Context, userID string) ([]*domain.Account, error)
	ArchiveUser(ctx context.Context, userID string) (int, error)
}

// EntryService defines the entry reads needed by WalletHandler.
type EntryService interface {
	GetEntries(ctx context.Context, input usecase.GetEntriesInput) ([]*domain.Entry, error)
	GetHistoricalBalance(ctx context.Context, userID, asset string, at time.Time) (decimal.Decimal, error)
}

// WalletHandler serves the caller's balances, wallets and entries.
type WalletHandler struct {
	ledger   BalanceService
	accounts AccountService
	entries  EntryService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledger BalanceService, accounts AccountService, entries EntryService) *WalletHandler {
	return &WalletHandler{ledger: ledger, accounts: accounts, entries: entries}
}

// GetBalance returns the caller's balance in an asset. With ?at=RFC3339 it
// returns the balance as of that time. A wallet that does not exist has zero balance.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	asset := domain.NormalizeAsset(chi.URLParam(r, "asset"))

	if raw := r.URL.Query().Get("at"); raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid at parameter", "expected RFC3339 time")
			return
		}
		balance, err := h.entries.GetHistoricalBalance(r.Context(), userID, asset, at)
		if err != nil {
			writeDomainError(w, r, "failed to get balance", err)
			return
		}
		writeJSON(w, http.StatusOK, dto.HistoricalBalance(userID, asset, balance, at.UTC()))
		return
	}

	account, err := h.ledger.GetAccount(r.Context(), userID, asset)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			writeJSON(w, http.StatusOK, dto.BalanceFromAccount(&domain.Account{UserID: userID, Asset: asset}))
			return
		}
		writeDomainError(w, r, "failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceFromAccount(account))
}

// ListAccounts lists the caller's wallets.
func (h *WalletHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	accounts, err := h.accounts.ListAccountsByUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, "failed to list accounts", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListAccountsResponse{
		Accounts: dto.AccountsFromDomain(accounts),
		Total:    int64(len(accounts)),
	})
}

// Archive archives all of the caller's wallets.
func (h *WalletHandler) Archive(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	archived, err := h.accounts.ArchiveUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, "failed to archive user", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ArchiveResponse{UserID: userID, Archived: archived})
}

// ListEntries lists the entries of the caller's wallet in an asset, newest first.
func (h *WalletHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	entries, err := h.entries.GetEntries(r.Context(), usecase.GetEntriesInput{
		UserID: userID,
		Asset:  chi.URLParam(r, "asset"),
		Limit:  parseIntQuery(r, "limit", 20),
		Offset: parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, r, "failed to list entries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntriesFromDomain(entries))
}
