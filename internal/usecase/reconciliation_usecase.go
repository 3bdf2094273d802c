package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
)

// reconcilePageSize is how many accounts one reconciliation page loads.
const reconcilePageSize = 500

// ReconciliationUseCase handles balance reconciliation operations
type ReconciliationUseCase struct {
	accountRepo AccountRepository
	entryRepo   EntryRepository
	ledger      *LedgerUseCase
}

// NewReconciliationUseCase creates a new reconciliation use case
func NewReconciliationUseCase(
	accountRepo AccountRepository,
	entryRepo EntryRepository,
	ledger *LedgerUseCase,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		ledger:      ledger,
	}
}

// ReconciliationResult represents the result of a reconciliation check
type ReconciliationResult struct {
	AccountID         string
	UserID            string
	Asset             string
	RecordedBalance   decimal.Decimal
	CalculatedBalance decimal.Decimal
	Held              decimal.Decimal
	Difference        decimal.Decimal
	IsReconciled      bool
	LastChecked       time.Time
}

// ReconcileAccount compares an account's cached balance with the sum of its entries.
func (uc *ReconciliationUseCase) ReconcileAccount(ctx context.Context, account *domain.Account) (*ReconciliationResult, error) {
	sum, err := uc.entryRepo.SumByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	diff := account.Balance.Sub(sum)
	heldOK := !account.Held.IsNegative() && account.Held.LessThanOrEqual(account.Balance)

	return &ReconciliationResult{
		AccountID:         account.ID,
		UserID:            account.UserID,
		Asset:             account.Asset,
		RecordedBalance:   account.Balance,
		CalculatedBalance: sum,
		Held:              account.Held,
		Difference:        diff,
		IsReconciled:      diff.IsZero() && heldOK,
		LastChecked:       time.Now().UTC(),
	}, nil
}

// ReconcileAllAccounts reconciles all accounts in the system
func (uc *ReconciliationUseCase) ReconcileAllAccounts(ctx context.Context) ([]*ReconciliationResult, error) {
	var results []*ReconciliationResult

	for offset := 0; ; offset += reconcilePageSize {
		accounts, err := uc.accountRepo.List(ctx, reconcilePageSize, offset)
		if err != nil {
			return nil, err
		}

		for _, account := range accounts {
			result, err := uc.ReconcileAccount(ctx, account)
			if err != nil {
				return nil, fmt.Errorf("failed to reconcile account %s: %w", account.ID, err)
			}
			results = append(results, result)
		}

		if len(accounts) < reconcilePageSize {
			break
		}
	}

	return results, nil
}

// ReconciliationReport represents a full reconciliation report
type ReconciliationReport struct {
	TotalAccounts      int
	ReconciledAccounts int
	Discrepancies      []*ReconciliationResult
	LedgerConsistent   bool
	CheckedAt          time.Time
}

// GenerateReport reconciles every account and checks ledger-wide totals.
// Discrepancies are reported, never corrected.
func (uc *ReconciliationUseCase) GenerateReport(ctx context.Context) (*ReconciliationReport, error) {
	results, err := uc.ReconcileAllAccounts(ctx)
	if err != nil {
		return nil, err
	}

	consistent, err := uc.ledger.CheckConsistency(ctx)
	if err != nil && !errors.Is(err, domain.ErrLedgerInconsistency) {
		return nil, err
	}

	report := &ReconciliationReport{
		TotalAccounts:    len(results),
		Discrepancies:    make([]*ReconciliationResult, 0),
		LedgerConsistent: consistent,
		CheckedAt:        time.Now().UTC(),
	}

	for _, result := range results {
		if result.IsReconciled {
			report.ReconciledAccounts++
			continue
		}
		report.Discrepancies = append(report.Discrepancies, result)
		uc.ledger.reportInconsistency(&domain.Account{
			ID:      result.AccountID,
			UserID:  result.UserID,
			Asset:   result.Asset,
			Balance: result.RecordedBalance,
			Held:    result.Held,
		}, "reconciliation discrepancy")
	}

	return report, nil
}
