package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

func TestAccountUseCase_ListAccountsByUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.deposit(t, "x", "BTC", "1")
	env.deposit(t, "x", "USD", "10")
	env.deposit(t, "y", "USD", "10")

	accounts, err := env.accounts.ListAccountsByUser(ctx, "x")
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	for _, a := range accounts {
		assert.Equal(t, "x", a.UserID)
	}

	_, err = env.accounts.ListAccountsByUser(ctx, " ")
	require.ErrorIs(t, err, domain.ErrMissingUser)
}

func TestAccountUseCase_ArchiveUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.deposit(t, "x", "BTC", "1")
	env.deposit(t, "x", "USD", "10")

	n, err := env.accounts.ArchiveUser(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	accounts, err := env.accounts.ListAccountsByUser(ctx, "x")
	require.NoError(t, err)
	for _, a := range accounts {
		assert.True(t, a.IsArchived(), a.Key().String())
	}

	// Entries are kept and the ledger still reconciles.
	env.requireBalance(t, "x", "USD", "10", "0")
	env.requireReconciled(t)

	_, err = env.journal.RecordDeposit(ctx, usecase.RecordDepositInput{UserID: "x", Asset: "USD", Amount: dec("1")})
	require.ErrorIs(t, err, domain.ErrAccountArchived)

	_, err = env.journal.RecordWithdrawal(ctx, usecase.RecordWithdrawalInput{UserID: "x", Asset: "USD", Amount: dec("1")})
	require.ErrorIs(t, err, domain.ErrAccountArchived)

	logs, err := env.store.Audit().List(ctx, domain.AuditFilter{Action: string(domain.AuditActionUserArchive)})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "x", logs[0].ResourceID)

	events, err := env.store.Outbox().GetUnpublished(ctx, 100)
	require.NoError(t, err)
	var archivedEvents int
	for _, e := range events {
		if e.EventType == domain.EventTypeUserArchived {
			archivedEvents++
		}
	}
	assert.Equal(t, 1, archivedEvents)
}

func TestAccountUseCase_ArchiveUser_Rejections(t *testing.T) {
	t.Run("unknown user", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.accounts.ArchiveUser(context.Background(), "ghost")
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("live order holds funds", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()
		env.deposit(t, "x", "BTC", "2")
		res := env.submit(t, "x", domain.SideSell, "1", "5")

		_, err := env.accounts.ArchiveUser(ctx, "x")
		require.ErrorIs(t, err, domain.ErrInvalidState)

		accounts, err := env.accounts.ListAccountsByUser(ctx, "x")
		require.NoError(t, err)
		for _, a := range accounts {
			assert.False(t, a.IsArchived())
		}

		// Once the order is gone the user can be archived.
		_, err = env.matching.CancelOrder(ctx, "x", res.Order.ID)
		require.NoError(t, err)
		_, err = env.accounts.ArchiveUser(ctx, "x")
		require.NoError(t, err)
	})
}
