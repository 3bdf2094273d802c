package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/infrastructure/metrics"
)

// Poster is the narrow posting interface the journal and matching use inside
// their own transactions. Only the ledger writes entries and holds.
type Poster interface {
	RequireAsset(ctx context.Context, symbol string) (*domain.Asset, error)
	LockAccountsTx(ctx context.Context, tx Transaction, keys []domain.AccountKey) error
	PostTx(ctx context.Context, tx Transaction, input PostInput) (*domain.Entry, error)
	HoldTx(ctx context.Context, tx Transaction, hold domain.Hold) error
	ReleaseTx(ctx context.Context, tx Transaction, hold domain.Hold) error
}

// LedgerUseCase owns per-user, per-asset balances and their entries.
type LedgerUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	entryRepo   EntryRepository
	ledgerRepo  LedgerRepository
	assetRepo   AssetRepository
	idGen       IDGenerator
	retrier     Retrier
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewLedgerUseCase creates a new LedgerUseCase.
func NewLedgerUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	entryRepo EntryRepository,
	ledgerRepo LedgerRepository,
	assetRepo AssetRepository,
	idGen IDGenerator,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *LedgerUseCase {
	return &LedgerUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
		ledgerRepo:  ledgerRepo,
		assetRepo:   assetRepo,
		idGen:       idGen,
		metrics:     m,
		logger:      logger.With().Str("component", "ledger").Logger(),
	}
}

// WithRetrier enables transaction retries on transient storage conflicts.
func (uc *LedgerUseCase) WithRetrier(r Retrier) *LedgerUseCase {
	uc.retrier = r
	return uc
}

// PostInput describes one signed balance change.
type PostInput struct {
	UserID    string
	Asset     string
	Amount    decimal.Decimal
	CauseType domain.CauseType
	CauseID   string
}

// GetBalance returns the cached balance, or zero when the account does not exist.
func (uc *LedgerUseCase) GetBalance(ctx context.Context, userID, asset string) (decimal.Decimal, error) {
	account, err := uc.accountRepo.GetByUserAsset(ctx, userID, domain.NormalizeAsset(asset))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}

	return account.Balance, nil
}

// GetAccount returns the account with its held and available amounts.
func (uc *LedgerUseCase) GetAccount(ctx context.Context, userID, asset string) (*domain.Account, error) {
	return uc.accountRepo.GetByUserAsset(ctx, userID, domain.NormalizeAsset(asset))
}

// Post applies one entry in its own transaction.
func (uc *LedgerUseCase) Post(ctx context.Context, input PostInput) (*domain.Entry, error) {
	var entry *domain.Entry

	err := runInTx(ctx, uc.txManager, uc.retrier, func(txCtx context.Context, tx Transaction) error {
		var err error
		entry, err = uc.PostTx(txCtx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// RequireAsset returns the asset or ErrUnknownAsset.
func (uc *LedgerUseCase) RequireAsset(ctx context.Context, symbol string) (*domain.Asset, error) {
	symbol = domain.NormalizeAsset(symbol)
	if err := domain.ValidateAssetSymbol(symbol); err != nil {
		return nil, err
	}

	asset, err := uc.assetRepo.GetBySymbol(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrAssetNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownAsset, symbol)
		}
		return nil, err
	}

	return asset, nil
}

// LockAccountsTx locks the existing accounts among keys in a stable order.
// Accounts created later in the same transaction are locked by their insert.
func (uc *LedgerUseCase) LockAccountsTx(ctx context.Context, tx Transaction, keys []domain.AccountKey) error {
	seen := make(map[domain.AccountKey]bool, len(keys))
	unique := make([]domain.AccountKey, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			unique = append(unique, k)
		}
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].Less(unique[j]) })

	_, err := uc.accountRepo.LockForUpdate(ctx, tx, unique)
	return err
}

// PostTx applies one entry inside the caller's transaction. The account is
// created on its first credit.
func (uc *LedgerUseCase) PostTx(ctx context.Context, tx Transaction, input PostInput) (*domain.Entry, error) {
	entry, err := uc.postTx(ctx, tx, input)
	if err != nil {
		if uc.metrics != nil {
			uc.metrics.PostingRejections.WithLabelValues(errorReason(err)).Inc()
		}
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.EntriesPosted.WithLabelValues(string(input.CauseType)).Inc()
	}

	return entry, nil
}

func (uc *LedgerUseCase) postTx(ctx context.Context, tx Transaction, input PostInput) (*domain.Entry, error) {
	if err := domain.ValidateUserID(input.UserID); err != nil {
		return nil, err
	}
	if input.Amount.IsZero() {
		return nil, fmt.Errorf("%w: posting amount must be non-zero", domain.ErrInvalidAmount)
	}
	if !input.CauseType.IsValid() || input.CauseID == "" {
		return nil, fmt.Errorf("%w: posting requires a cause", domain.ErrInvalidAmount)
	}

	// Scale is enforced where amounts enter the system; settlement legs carry
	// the exact price * quantity product.
	asset, err := uc.RequireAsset(ctx, input.Asset)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	account, err := uc.accountRepo.GetByUserAssetForUpdate(ctx, tx, input.UserID, asset.Symbol)
	if err != nil {
		if !errors.Is(err, domain.ErrAccountNotFound) {
			return nil, err
		}
		if input.Amount.IsNegative() {
			return nil, domain.ErrInsufficientFunds
		}

		account = &domain.Account{
			ID:        uc.idGen.Generate(),
			UserID:    input.UserID,
			Asset:     asset.Symbol,
			Balance:   decimal.Zero,
			Held:      decimal.Zero,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := uc.accountRepo.CreateTx(ctx, tx, account); err != nil {
			return nil, err
		}
	}

	newBalance, err := account.ValidatePosting(input.Amount)
	if err != nil {
		return nil, err
	}

	entry := &domain.Entry{
		ID:                     uc.idGen.Generate(),
		AccountID:              account.ID,
		CauseType:              input.CauseType,
		CauseID:                input.CauseID,
		Amount:                 input.Amount,
		AccountPreviousBalance: account.Balance,
		AccountCurrentBalance:  newBalance,
		AccountVersion:         account.Version + 1,
		CreatedAt:              now,
	}

	if err := uc.entryRepo.Create(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := uc.accountRepo.UpdateBalance(ctx, tx, account.ID, newBalance, entry.AccountVersion, now); err != nil {
		return nil, err
	}

	return entry, nil
}

// HoldTx reserves funds from the available balance.
func (uc *LedgerUseCase) HoldTx(ctx context.Context, tx Transaction, hold domain.Hold) error {
	if err := hold.Validate(); err != nil {
		return err
	}

	account, err := uc.accountRepo.GetByUserAssetForUpdate(ctx, tx, hold.UserID, hold.Asset)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.ErrInsufficientFunds
		}
		return err
	}

	if err := account.ValidateHold(hold.Amount); err != nil {
		return err
	}

	return uc.accountRepo.UpdateHeld(ctx, tx, account.ID, account.Held.Add(hold.Amount), time.Now().UTC())
}

// ReleaseTx returns held funds to the available balance.
func (uc *LedgerUseCase) ReleaseTx(ctx context.Context, tx Transaction, hold domain.Hold) error {
	if hold.Amount.IsZero() {
		return nil
	}

	account, err := uc.accountRepo.GetByUserAssetForUpdate(ctx, tx, hold.UserID, hold.Asset)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return fmt.Errorf("%w: hold on missing account %s", domain.ErrLedgerInconsistency, hold.Key())
		}
		return err
	}

	if err := account.ValidateRelease(hold.Amount); err != nil {
		if errors.Is(err, domain.ErrLedgerInconsistency) {
			uc.reportInconsistency(account, "release exceeds held amount")
			return fmt.Errorf("%w: release of %s exceeds held %s on %s", err, hold.Amount, account.Held, hold.Key())
		}
		return err
	}

	return uc.accountRepo.UpdateHeld(ctx, tx, account.ID, account.Held.Sub(hold.Amount), time.Now().UTC())
}

// Reconcile recomputes the balance from entries. A mismatch with the cached
// balance is reported, never corrected.
func (uc *LedgerUseCase) Reconcile(ctx context.Context, userID, asset string) (decimal.Decimal, error) {
	account, err := uc.accountRepo.GetByUserAsset(ctx, userID, domain.NormalizeAsset(asset))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}

	sum, err := uc.entryRepo.SumByAccount(ctx, account.ID)
	if err != nil {
		return decimal.Zero, err
	}

	if !sum.Equal(account.Balance) {
		uc.reportInconsistency(account, "cached balance differs from entry sum")
		return sum, fmt.Errorf("%w: account %s balance %s, entries sum to %s",
			domain.ErrLedgerInconsistency, account.ID, account.Balance, sum)
	}

	if account.Held.IsNegative() || account.Held.GreaterThan(account.Balance) {
		uc.reportInconsistency(account, "held amount outside balance")
		return sum, fmt.Errorf("%w: account %s held %s outside balance %s",
			domain.ErrLedgerInconsistency, account.ID, account.Held, account.Balance)
	}

	return sum, nil
}

// CheckConsistency verifies that the sum of all cached balances equals the
// sum of all entries.
func (uc *LedgerUseCase) CheckConsistency(ctx context.Context) (bool, error) {
	totalBalance, totalAmount, err := uc.ledgerRepo.CheckConsistency(ctx)
	if err != nil {
		return false, err
	}

	if !totalBalance.Equal(totalAmount) {
		uc.logger.Error().
			Str("total_balance", totalBalance.String()).
			Str("total_entries", totalAmount.String()).
			Msg("ledger totals diverge")
		if uc.metrics != nil {
			uc.metrics.LedgerInconsistencies.Inc()
		}
		return false, fmt.Errorf("%w: balances=%s entries=%s", domain.ErrLedgerInconsistency, totalBalance, totalAmount)
	}

	return true, nil
}

func (uc *LedgerUseCase) reportInconsistency(account *domain.Account, reason string) {
	uc.logger.Error().
		Str("account_id", account.ID).
		Str("user_id", account.UserID).
		Str("asset", account.Asset).
		Str("balance", account.Balance.String()).
		Str("held", account.Held.String()).
		Msg(reason)

	if uc.metrics != nil {
		uc.metrics.LedgerInconsistencies.Inc()
	}
}
