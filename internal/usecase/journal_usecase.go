package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/infrastructure/metrics"
)

// JournalConfig holds the journal's collaborators.
type JournalConfig struct {
	TxManager       TransactionManager
	Ledger          Poster
	TransactionRepo TransactionRepository
	OutboxRepo      OutboxRepository
	AuditRepo       AuditRepository
	IDGen           IDGenerator
	Retrier         Retrier
	Metrics         *metrics.Metrics
	Logger          zerolog.Logger
}

// JournalUseCase records deposits, withdrawals and transfers and posts them
// to the ledger.
type JournalUseCase struct {
	txManager       TransactionManager
	ledger          Poster
	transactionRepo TransactionRepository
	outboxRepo      OutboxRepository
	auditRepo       AuditRepository
	idGen           IDGenerator
	retrier         Retrier
	metrics         *metrics.Metrics
	logger          zerolog.Logger
}

// NewJournalUseCase creates a new JournalUseCase.
func NewJournalUseCase(cfg JournalConfig) *JournalUseCase {
	return &JournalUseCase{
		txManager:       cfg.TxManager,
		ledger:          cfg.Ledger,
		transactionRepo: cfg.TransactionRepo,
		outboxRepo:      cfg.OutboxRepo,
		auditRepo:       cfg.AuditRepo,
		idGen:           cfg.IDGen,
		retrier:         cfg.Retrier,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger.With().Str("component", "journal").Logger(),
	}
}

// RecordDepositInput represents input for a deposit.
type RecordDepositInput struct {
	UserID string
	Asset  string
	Amount decimal.Decimal
}

// RecordWithdrawalInput represents input for a withdrawal.
type RecordWithdrawalInput struct {
	UserID string
	Asset  string
	Amount decimal.Decimal
}

// RecordTransferInput represents input for a user-to-user transfer.
type RecordTransferInput struct {
	FromUserID string
	ToUserID   string
	Asset      string
	Amount     decimal.Decimal
}

// RecordDeposit credits the user and records a completed deposit.
func (uc *JournalUseCase) RecordDeposit(ctx context.Context, input RecordDepositInput) (*domain.Transaction, error) {
	record, err := uc.newRecord(ctx, domain.TransactionDeposit, input.UserID, "", input.Asset, input.Amount)
	if err != nil {
		return nil, err
	}

	return uc.execute(ctx, record, domain.AuditActionDeposit, func(txCtx context.Context, tx Transaction) error {
		_, err := uc.ledger.PostTx(txCtx, tx, PostInput{
			UserID:    record.UserID,
			Asset:     record.Asset,
			Amount:    record.Amount,
			CauseType: domain.CauseTransaction,
			CauseID:   record.ID,
		})
		return err
	})
}

// RecordWithdrawal debits the user's available balance. A rejected withdrawal
// is kept as a failed record and the rejection is returned.
func (uc *JournalUseCase) RecordWithdrawal(ctx context.Context, input RecordWithdrawalInput) (*domain.Transaction, error) {
	record, err := uc.newRecord(ctx, domain.TransactionWithdrawal, input.UserID, "", input.Asset, input.Amount)
	if err != nil {
		return nil, err
	}

	return uc.execute(ctx, record, domain.AuditActionWithdrawal, func(txCtx context.Context, tx Transaction) error {
		_, err := uc.ledger.PostTx(txCtx, tx, PostInput{
			UserID:    record.UserID,
			Asset:     record.Asset,
			Amount:    record.Amount.Neg(),
			CauseType: domain.CauseTransaction,
			CauseID:   record.ID,
		})
		return err
	})
}

// RecordTransfer moves funds between two users with two entries in one
// transaction.
func (uc *JournalUseCase) RecordTransfer(ctx context.Context, input RecordTransferInput) (*domain.Transaction, error) {
	if err := domain.ValidateUserID(input.ToUserID); err != nil {
		return nil, err
	}
	if input.FromUserID == input.ToUserID {
		return nil, domain.ErrSameAccount
	}

	record, err := uc.newRecord(ctx, domain.TransactionTransfer, input.FromUserID, input.ToUserID, input.Asset, input.Amount)
	if err != nil {
		return nil, err
	}

	return uc.execute(ctx, record, domain.AuditActionTransfer, func(txCtx context.Context, tx Transaction) error {
		if err := uc.ledger.LockAccountsTx(txCtx, tx, []domain.AccountKey{
			{UserID: record.UserID, Asset: record.Asset},
			{UserID: record.CounterpartyUserID, Asset: record.Asset},
		}); err != nil {
			return err
		}

		if _, err := uc.ledger.PostTx(txCtx, tx, PostInput{
			UserID:    record.UserID,
			Asset:     record.Asset,
			Amount:    record.Amount.Neg(),
			CauseType: domain.CauseTransaction,
			CauseID:   record.ID,
		}); err != nil {
			return err
		}

		_, err := uc.ledger.PostTx(txCtx, tx, PostInput{
			UserID:    record.CounterpartyUserID,
			Asset:     record.Asset,
			Amount:    record.Amount,
			CauseType: domain.CauseTransaction,
			CauseID:   record.ID,
		})
		return err
	})
}

// GetTransaction retrieves a journal record by ID.
func (uc *JournalUseCase) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return uc.transactionRepo.GetByID(ctx, id)
}

// ListTransactionsInput represents input for listing a user's records.
type ListTransactionsInput struct {
	UserID string
	Limit  int
	Offset int
}

// ListTransactions lists a user's journal records, newest first.
func (uc *JournalUseCase) ListTransactions(ctx context.Context, input ListTransactionsInput) ([]*domain.Transaction, error) {
	limit, offset, err := domain.ValidatePagination(input.Limit, input.Offset)
	if err != nil {
		return nil, err
	}

	return uc.transactionRepo.ListByUser(ctx, input.UserID, limit, offset)
}

// newRecord validates the request and persists a pending record. Requests
// rejected here leave no record behind.
func (uc *JournalUseCase) newRecord(ctx context.Context, txType domain.TransactionType, userID, counterpartyID, asset string, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := domain.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	a, err := uc.ledger.RequireAsset(ctx, asset)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateScale(amount, a.Scale); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record := &domain.Transaction{
		ID:                 uc.idGen.Generate(),
		Type:               txType,
		UserID:             userID,
		CounterpartyUserID: counterpartyID,
		Asset:              a.Symbol,
		Amount:             amount,
		Status:             domain.TransactionPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	err = runInTx(ctx, uc.txManager, uc.retrier, func(txCtx context.Context, tx Transaction) error {
		return uc.transactionRepo.Create(txCtx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// execute posts the record's entries and completes it in one transaction.
// If posting fails, the record is marked failed in a separate transaction.
func (uc *JournalUseCase) execute(ctx context.Context, record *domain.Transaction, action domain.AuditAction, post func(ctx context.Context, tx Transaction) error) (*domain.Transaction, error) {
	start := time.Now()

	var completed *domain.Transaction
	err := runInTx(ctx, uc.txManager, uc.retrier, func(txCtx context.Context, tx Transaction) error {
		current, err := uc.transactionRepo.GetByIDForUpdate(txCtx, tx, record.ID)
		if err != nil {
			return err
		}

		if err := post(txCtx, tx); err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := current.Transition(domain.TransactionCompleted, "", now); err != nil {
			return err
		}
		if err := uc.transactionRepo.UpdateStatus(txCtx, tx, current); err != nil {
			return err
		}

		if err := emitEvent(txCtx, tx, uc.outboxRepo, uc.idGen, domain.AggregateTypeTransaction, current.ID,
			domain.EventTypeTransactionCompleted, domain.TransactionEventPayload(current), now); err != nil {
			return err
		}

		if err := writeAudit(txCtx, tx, uc.auditRepo, uc.idGen, current.UserID, action,
			domain.AggregateTypeTransaction, current.ID, current, now); err != nil {
			return err
		}

		completed = current
		return nil
	})

	if uc.metrics != nil {
		uc.metrics.TransactionDuration.WithLabelValues(string(record.Type)).Observe(time.Since(start).Seconds())
	}

	if err != nil {
		uc.markFailed(ctx, record, err)
		return record, err
	}

	if uc.metrics != nil {
		uc.metrics.TransactionsRecorded.WithLabelValues(string(record.Type), string(domain.TransactionCompleted)).Inc()
	}

	return completed, nil
}

// markFailed retains the record with the rejection reason. It runs in its own
// transaction so the failed posting leaves nothing else behind.
func (uc *JournalUseCase) markFailed(ctx context.Context, record *domain.Transaction, cause error) {
	reason := domain.TruncateReason(cause.Error())

	err := runInTx(context.WithoutCancel(ctx), uc.txManager, uc.retrier, func(txCtx context.Context, tx Transaction) error {
		current, err := uc.transactionRepo.GetByIDForUpdate(txCtx, tx, record.ID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := current.Transition(domain.TransactionFailed, reason, now); err != nil {
			return err
		}
		if err := uc.transactionRepo.UpdateStatus(txCtx, tx, current); err != nil {
			return err
		}

		*record = *current

		return emitEvent(txCtx, tx, uc.outboxRepo, uc.idGen, domain.AggregateTypeTransaction, current.ID,
			domain.EventTypeTransactionFailed, domain.TransactionEventPayload(current), now)
	})
	if err != nil {
		uc.logger.Error().
			Err(err).
			Str("transaction_id", record.ID).
			Str("cause", reason).
			Msg("failed to mark transaction failed")
		return
	}

	event := uc.logger.Warn()
	if !domain.IsRecoverable(cause) {
		event = uc.logger.Error()
	}
	event.
		Str("transaction_id", record.ID).
		Str("type", string(record.Type)).
		Str("user_id", record.UserID).
		Str("reason", reason).
		Msg("transaction failed")

	if uc.metrics != nil {
		uc.metrics.TransactionsRecorded.WithLabelValues(string(record.Type), string(domain.TransactionFailed)).Inc()
	}
}
