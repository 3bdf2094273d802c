package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
)

// EntryUseCase handles entry business logic.
type EntryUseCase struct {
	accountRepo AccountRepository
	entryRepo   EntryRepository
}

// NewEntryUseCase creates a new EntryUseCase.
func NewEntryUseCase(accountRepo AccountRepository, entryRepo EntryRepository) *EntryUseCase {
	return &EntryUseCase{
		accountRepo: accountRepo,
		entryRepo:   entryRepo,
	}
}

// GetEntriesInput represents input for listing a wallet's entries.
type GetEntriesInput struct {
	UserID string
	Asset  string
	Limit  int
	Offset int
}

// GetEntries lists the entries of a user's wallet, newest first. A wallet that
// does not exist yet has no entries.
func (uc *EntryUseCase) GetEntries(ctx context.Context, input GetEntriesInput) ([]*domain.Entry, error) {
	limit, offset, err := domain.ValidatePagination(input.Limit, input.Offset)
	if err != nil {
		return nil, err
	}

	account, err := uc.accountRepo.GetByUserAsset(ctx, input.UserID, domain.NormalizeAsset(input.Asset))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return []*domain.Entry{}, nil
		}
		return nil, err
	}

	return uc.entryRepo.GetByAccount(ctx, account.ID, limit, offset)
}

// GetEntriesByCause lists the entries posted for one transaction or settlement.
func (uc *EntryUseCase) GetEntriesByCause(ctx context.Context, causeType domain.CauseType, causeID string) ([]*domain.Entry, error) {
	return uc.entryRepo.GetByCause(ctx, causeType, causeID)
}

// GetHistoricalBalance returns the balance of a user's wallet at a point in time.
func (uc *EntryUseCase) GetHistoricalBalance(ctx context.Context, userID, asset string, at time.Time) (decimal.Decimal, error) {
	account, err := uc.accountRepo.GetByUserAsset(ctx, userID, domain.NormalizeAsset(asset))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}

	return uc.entryRepo.GetBalanceAtTime(ctx, account.ID, at)
}
