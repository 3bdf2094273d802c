package dto

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

// DepositRequest represents a request to credit the caller's wallet.
type DepositRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// ToUseCaseInput converts to use case input.
func (r *DepositRequest) ToUseCaseInput(userID string) (usecase.RecordDepositInput, error) {
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return usecase.RecordDepositInput{}, err
	}

	return usecase.RecordDepositInput{
		UserID: userID,
		Asset:  r.Asset,
		Amount: amount,
	}, nil
}

// WithdrawalRequest represents a request to debit the caller's wallet.
type WithdrawalRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// ToUseCaseInput converts to use case input.
func (r *WithdrawalRequest) ToUseCaseInput(userID string) (usecase.RecordWithdrawalInput, error) {
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return usecase.RecordWithdrawalInput{}, err
	}

	return usecase.RecordWithdrawalInput{
		UserID: userID,
		Asset:  r.Asset,
		Amount: amount,
	}, nil
}

// TransferRequest represents a transfer from the caller to another user.
type TransferRequest struct {
	ToUserID string `json:"to_user_id"`
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`
}

// ToUseCaseInput converts to use case input.
func (r *TransferRequest) ToUseCaseInput(userID string) (usecase.RecordTransferInput, error) {
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return usecase.RecordTransferInput{}, err
	}

	return usecase.RecordTransferInput{
		FromUserID: userID,
		ToUserID:   r.ToUserID,
		Asset:      r.Asset,
		Amount:     amount,
	}, nil
}

// SubmitOrderRequest represents a new limit order.
type SubmitOrderRequest struct {
	Asset    string `json:"asset"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// ToUseCaseInput converts to use case input.
func (r *SubmitOrderRequest) ToUseCaseInput(userID string) (usecase.SubmitOrderInput, error) {
	side := domain.Side(strings.ToLower(strings.TrimSpace(r.Side)))
	if side != domain.SideBuy && side != domain.SideSell {
		return usecase.SubmitOrderInput{}, fmt.Errorf("%w: side must be buy or sell", domain.ErrInvalidAmount)
	}

	price, err := parseAmount("price", r.Price)
	if err != nil {
		return usecase.SubmitOrderInput{}, err
	}

	quantity, err := parseAmount("quantity", r.Quantity)
	if err != nil {
		return usecase.SubmitOrderInput{}, err
	}

	return usecase.SubmitOrderInput{
		UserID:   userID,
		Asset:    r.Asset,
		Side:     side,
		Price:    price,
		Quantity: quantity,
	}, nil
}

// parseAmount parses a decimal field. Sign and scale are checked by the use cases.
func parseAmount(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q is not a decimal", domain.ErrInvalidAmount, field, value)
	}
	return d, nil
}
