package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/goexchange/internal/domain"
)

// AccountUseCase handles account business logic.
type AccountUseCase struct {
	txManager   TransactionManager
	accountRepo AccountRepository
	orderRepo   OrderRepository
	outboxRepo  OutboxRepository
	auditRepo   AuditRepository
	idGen       IDGenerator
	logger      zerolog.Logger
}

// NewAccountUseCase creates a new AccountUseCase.
func NewAccountUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	orderRepo OrderRepository,
	outboxRepo OutboxRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
	logger zerolog.Logger,
) *AccountUseCase {
	return &AccountUseCase{
		txManager:   txManager,
		accountRepo: accountRepo,
		orderRepo:   orderRepo,
		outboxRepo:  outboxRepo,
		auditRepo:   auditRepo,
		idGen:       idGen,
		logger:      logger.With().Str("component", "accounts").Logger(),
	}
}

// ListAccountsByUser returns every wallet of a user.
func (uc *AccountUseCase) ListAccountsByUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	return uc.accountRepo.ListByUser(ctx, userID)
}

// ArchiveUser archives every account of a user. Archived accounts keep their
// entries and reject further postings. A user with held funds or live orders
// cannot be archived.
func (uc *AccountUseCase) ArchiveUser(ctx context.Context, userID string) (int, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return 0, err
	}

	var archived int
	err := runInTx(ctx, uc.txManager, nil, func(txCtx context.Context, tx Transaction) error {
		accounts, err := uc.accountRepo.ListByUserForUpdate(txCtx, tx, userID)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			return domain.ErrAccountNotFound
		}

		for _, a := range accounts {
			if a.Held.IsPositive() {
				return fmt.Errorf("%w: %s has %s on hold", domain.ErrInvalidState, a.Key(), a.Held)
			}
		}

		live, err := uc.orderRepo.CountLiveByUser(txCtx, tx, userID)
		if err != nil {
			return err
		}
		if live > 0 {
			return fmt.Errorf("%w: user has %d live orders", domain.ErrInvalidState, live)
		}

		now := time.Now().UTC()
		archived, err = uc.accountRepo.ArchiveByUser(txCtx, tx, userID, now)
		if err != nil {
			return err
		}

		payload := map[string]any{"user_id": userID, "accounts": archived}
		if err := emitEvent(txCtx, tx, uc.outboxRepo, uc.idGen, domain.AggregateTypeUser, userID,
			domain.EventTypeUserArchived, payload, now); err != nil {
			return err
		}

		return writeAudit(txCtx, tx, uc.auditRepo, uc.idGen, userID, domain.AuditActionUserArchive,
			domain.AggregateTypeUser, userID, payload, now)
	})
	if err != nil {
		return 0, err
	}

	uc.logger.Info().Str("user_id", userID).Int("accounts", archived).Msg("user archived")

	return archived, nil
}
