package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
)

func TestLedgerUseCase_CheckConsistency(t *testing.T) {
	tests := []struct {
		name        string
		repo        *fakeLedgerRepository
		want        bool
		expectedErr error
	}{
		{
			name: "happy path balanced ledger",
			repo: &fakeLedgerRepository{
				totalBalance: decimal.NewFromInt(150),
				totalAmount:  decimal.NewFromInt(150),
			},
			want: true,
		},
		{
			name: "empty ledger",
			repo: &fakeLedgerRepository{
				totalBalance: decimal.Zero,
				totalAmount:  decimal.Zero,
			},
			want: true,
		},
		{
			name: "repo error surfaces",
			repo: &fakeLedgerRepository{
				err: errors.New("db down"),
			},
			want:        false,
			expectedErr: errors.New("db down"),
		},
		{
			name: "balances exceed entries",
			repo: &fakeLedgerRepository{
				totalBalance: decimal.NewFromInt(10),
				totalAmount:  decimal.Zero,
			},
			want:        false,
			expectedErr: domain.ErrLedgerInconsistency,
		},
		{
			name: "entries exceed balances",
			repo: &fakeLedgerRepository{
				totalBalance: decimal.Zero,
				totalAmount:  decimal.NewFromInt(1),
			},
			want:        false,
			expectedErr: domain.ErrLedgerInconsistency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := NewLedgerUseCase(nil, nil, nil, tt.repo, nil, nil, nil, zerolog.Nop())
			got, err := uc.CheckConsistency(context.Background())

			if tt.expectedErr != nil {
				if err == nil {
					t.Fatalf("expected error %v, got nil", tt.expectedErr)
				}
				if !errors.Is(err, tt.expectedErr) && err.Error() != tt.expectedErr.Error() {
					t.Fatalf("expected error %v, got %v", tt.expectedErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got != tt.want {
				t.Fatalf("CheckConsistency() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLedgerUseCase_RepositoryInvoked(t *testing.T) {
	repo := &fakeLedgerRepository{}
	uc := NewLedgerUseCase(nil, nil, nil, repo, nil, nil, nil, zerolog.Nop())

	if _, err := uc.CheckConsistency(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if repo.calls != 1 {
		t.Fatalf("expected CheckConsistency to call repository once, got %d", repo.calls)
	}
}

func TestLedgerUseCase_RequireAsset(t *testing.T) {
	assets := &fakeAssetRepository{assets: map[string]*domain.Asset{
		"BTC": {Symbol: "BTC", Scale: 8},
	}}
	uc := NewLedgerUseCase(nil, nil, nil, nil, assets, nil, nil, zerolog.Nop())

	tests := []struct {
		symbol  string
		wantErr error
	}{
		{symbol: "btc"},
		{symbol: " BTC "},
		{symbol: "ETH", wantErr: domain.ErrUnknownAsset},
		{symbol: "b", wantErr: domain.ErrInvalidAmount},
		{symbol: "", wantErr: domain.ErrInvalidAmount},
	}

	for _, tt := range tests {
		asset, err := uc.RequireAsset(context.Background(), tt.symbol)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("RequireAsset(%q) error = %v, want %v", tt.symbol, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("RequireAsset(%q) unexpected error: %v", tt.symbol, err)
			continue
		}
		if asset.Symbol != "BTC" {
			t.Errorf("RequireAsset(%q) = %s, want BTC", tt.symbol, asset.Symbol)
		}
	}
}

func TestErrorReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{domain.ErrInsufficientFunds, "insufficient_funds"},
		{domain.ErrUnknownAsset, "invalid_amount"},
		{domain.ErrOrderNotLive, "invalid_state"},
		{domain.ErrOrderNotFound, "not_found"},
		{domain.ErrLedgerInconsistency, "ledger_inconsistency"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		if got := errorReason(tt.err); got != tt.want {
			t.Errorf("errorReason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestLocalBookLocker(t *testing.T) {
	locker := NewLocalBookLocker()
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "BTC/USD")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	// A different book is independent.
	other, err := locker.Lock(ctx, "ETH/USD")
	if err != nil {
		t.Fatalf("Lock other book failed: %v", err)
	}
	other()

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(timeoutCtx, "BTC/USD"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while book is held, got %v", err)
	}

	unlock()
	unlock() // releasing twice is harmless

	again, err := locker.Lock(ctx, "BTC/USD")
	if err != nil {
		t.Fatalf("Lock after release failed: %v", err)
	}
	again()
}

type fakeLedgerRepository struct {
	totalBalance decimal.Decimal
	totalAmount  decimal.Decimal
	err          error
	calls        int
}

func (f *fakeLedgerRepository) CheckConsistency(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	f.calls++
	return f.totalBalance, f.totalAmount, f.err
}

type fakeAssetRepository struct {
	assets map[string]*domain.Asset
}

func (f *fakeAssetRepository) Upsert(ctx context.Context, asset *domain.Asset) error {
	f.assets[asset.Symbol] = asset
	return nil
}

func (f *fakeAssetRepository) GetBySymbol(ctx context.Context, symbol string) (*domain.Asset, error) {
	a, ok := f.assets[symbol]
	if !ok {
		return nil, domain.ErrAssetNotFound
	}
	return a, nil
}

func (f *fakeAssetRepository) List(ctx context.Context) ([]*domain.Asset, error) {
	out := make([]*domain.Asset, 0, len(f.assets))
	for _, a := range f.assets {
		out = append(out, a)
	}
	return out, nil
}
