package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/goexchange/internal/adapter/http/dto"
	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

// JournalService defines the journal operations needed by JournalHandler.
type JournalService interface {
	RecordDeposit(ctx context.Context, input usecase.RecordDepositInput) (*domain.Transaction, error)
	RecordWithdrawal(ctx context.Context, input usecase.RecordWithdrawalInput) (*domain.Transaction, error)
	RecordTransfer(ctx context.Context, input usecase.RecordTransferInput) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, input usecase.ListTransactionsInput) ([]*domain.Transaction, error)
}

// JournalHandler handles deposits, withdrawals and transfers.
type JournalHandler struct {
	journalUC JournalService
}

// NewJournalHandler creates a new JournalHandler.
func NewJournalHandler(journalUC JournalService) *JournalHandler {
	return &JournalHandler{journalUC: journalUC}
}

// Deposit credits the caller.
func (h *JournalHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.DepositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(userID)
	if err != nil {
		writeDomainError(w, r, "invalid deposit", err)
		return
	}

	record, err := h.journalUC.RecordDeposit(r.Context(), input)
	h.respond(w, r, "failed to record deposit", record, err)
}

// Withdraw debits the caller.
func (h *JournalHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.WithdrawalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(userID)
	if err != nil {
		writeDomainError(w, r, "invalid withdrawal", err)
		return
	}

	record, err := h.journalUC.RecordWithdrawal(r.Context(), input)
	h.respond(w, r, "failed to record withdrawal", record, err)
}

// Transfer moves funds from the caller to another user.
func (h *JournalHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req dto.TransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(userID)
	if err != nil {
		writeDomainError(w, r, "invalid transfer", err)
		return
	}

	record, err := h.journalUC.RecordTransfer(r.Context(), input)
	h.respond(w, r, "failed to record transfer", record, err)
}

// Get returns a journal record the caller is a party to.
func (h *JournalHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	record, err := h.journalUC.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, "failed to get transaction", err)
		return
	}
	if record.UserID != userID && record.CounterpartyUserID != userID {
		writeDomainError(w, r, "failed to get transaction", domain.ErrTransactionNotFound)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(record))
}

// List lists the caller's journal records, newest first.
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	records, err := h.journalUC.ListTransactions(r.Context(), usecase.ListTransactionsInput{
		UserID: userID,
		Limit:  parseIntQuery(r, "limit", 20),
		Offset: parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, r, "failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionsFromDomain(records))
}

// respond writes the record. A rejection that left a failed record behind
// names it in the error body.
func (h *JournalHandler) respond(w http.ResponseWriter, r *http.Request, message string, record *domain.Transaction, err error) {
	if err != nil {
		status := mapDomainError(err)
		if record != nil && record.Status == domain.TransactionFailed && status != http.StatusInternalServerError {
			writeJSON(w, status, dto.ErrorResponse{Error: message, Message: err.Error(), TransactionID: record.ID})
			return
		}
		writeDomainError(w, r, message, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(record))
}
