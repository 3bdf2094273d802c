package dto

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

func TestDepositRequest_ToUseCaseInput(t *testing.T) {
	req := &DepositRequest{Asset: "USD", Amount: "12.34"}

	got, err := req.ToUseCaseInput("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.UserID != "alice" || got.Asset != "USD" || !got.Amount.Equal(decimal.RequireFromString("12.34")) {
		t.Fatalf("ToUseCaseInput() = %+v", got)
	}
}

func TestWithdrawalRequest_ToUseCaseInput(t *testing.T) {
	req := &WithdrawalRequest{Asset: "BTC", Amount: " 0.5 "}

	got, err := req.ToUseCaseInput("bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UserID != "bob" || !got.Amount.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("ToUseCaseInput() = %+v", got)
	}

	if _, err := (&WithdrawalRequest{Asset: "BTC", Amount: "lots"}).ToUseCaseInput("bob"); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestTransferRequest_ToUseCaseInput(t *testing.T) {
	tests := []struct {
		name        string
		request     *TransferRequest
		want        usecase.RecordTransferInput
		expectError bool
	}{
		{
			name:    "valid amount",
			request: &TransferRequest{ToUserID: "bob", Asset: "USD", Amount: "10"},
			want: usecase.RecordTransferInput{
				FromUserID: "alice",
				ToUserID:   "bob",
				Asset:      "USD",
				Amount:     decimal.NewFromInt(10),
			},
		},
		{
			name:        "invalid amount",
			request:     &TransferRequest{ToUserID: "bob", Asset: "USD", Amount: "ten"},
			expectError: true,
		},
		{
			name:        "empty amount",
			request:     &TransferRequest{ToUserID: "bob", Asset: "USD"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.request.ToUseCaseInput("alice")
			if tt.expectError {
				if !errors.Is(err, domain.ErrInvalidAmount) {
					t.Fatalf("expected ErrInvalidAmount, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.FromUserID != tt.want.FromUserID || got.ToUserID != tt.want.ToUserID ||
				got.Asset != tt.want.Asset || !got.Amount.Equal(tt.want.Amount) {
				t.Fatalf("ToUseCaseInput() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSubmitOrderRequest_ToUseCaseInput(t *testing.T) {
	tests := []struct {
		name        string
		request     *SubmitOrderRequest
		wantSide    domain.Side
		expectError bool
	}{
		{
			name:     "buy",
			request:  &SubmitOrderRequest{Asset: "BTC", Side: "buy", Price: "100", Quantity: "2"},
			wantSide: domain.SideBuy,
		},
		{
			name:     "side is case insensitive",
			request:  &SubmitOrderRequest{Asset: "BTC", Side: " SELL ", Price: "100", Quantity: "2"},
			wantSide: domain.SideSell,
		},
		{
			name:        "unknown side",
			request:     &SubmitOrderRequest{Asset: "BTC", Side: "hold", Price: "100", Quantity: "2"},
			expectError: true,
		},
		{
			name:        "bad price",
			request:     &SubmitOrderRequest{Asset: "BTC", Side: "buy", Price: "x", Quantity: "2"},
			expectError: true,
		},
		{
			name:        "bad quantity",
			request:     &SubmitOrderRequest{Asset: "BTC", Side: "buy", Price: "100", Quantity: ""},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.request.ToUseCaseInput("alice")
			if tt.expectError {
				if !errors.Is(err, domain.ErrInvalidAmount) {
					t.Fatalf("expected ErrInvalidAmount, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.UserID != "alice" || got.Side != tt.wantSide ||
				!got.Price.Equal(decimal.NewFromInt(100)) || !got.Quantity.Equal(decimal.NewFromInt(2)) {
				t.Fatalf("ToUseCaseInput() = %+v", got)
			}
		})
	}
}
