package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
	"github.com/iho/goexchange/tests/testutil"
)

func TestJournal(t *testing.T) {
	ctx := context.Background()

	testDB := testutil.NewTestDB(t)
	stack := testDB.NewStack()

	reset := func(t *testing.T) {
		testDB.TruncateAll(ctx)
		stack.SeedAsset(t, "USD", 2, "1")
	}

	t.Run("deposit withdrawal and transfer keep the ledger consistent", func(t *testing.T) {
		reset(t)
		alice, bob := testutil.UserID("alice"), testutil.UserID("bob")

		stack.Fund(t, alice, "USD", "100")

		withdrawal, err := stack.Journal.RecordWithdrawal(ctx, usecase.RecordWithdrawalInput{
			UserID: alice, Asset: "USD", Amount: decimal.RequireFromString("30.25"),
		})
		if err != nil {
			t.Fatalf("withdrawal failed: %v", err)
		}
		if withdrawal.Status != domain.TransactionCompleted {
			t.Errorf("expected completed withdrawal, got %s", withdrawal.Status)
		}

		transfer, err := stack.Journal.RecordTransfer(ctx, usecase.RecordTransferInput{
			FromUserID: alice, ToUserID: bob, Asset: "usd", Amount: decimal.RequireFromString("19.75"),
		})
		if err != nil {
			t.Fatalf("transfer failed: %v", err)
		}

		if got := stack.Balance(t, alice, "USD"); !got.Equal(decimal.NewFromInt(50)) {
			t.Errorf("expected alice balance 50, got %s", got)
		}
		if got := stack.Balance(t, bob, "USD"); !got.Equal(decimal.RequireFromString("19.75")) {
			t.Errorf("expected bob balance 19.75, got %s", got)
		}

		entries, err := stack.Entries.GetByCause(ctx, domain.CauseTransaction, transfer.ID)
		if err != nil {
			t.Fatalf("failed to load transfer entries: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 transfer entries, got %d", len(entries))
		}
		if sum := entries[0].Amount.Add(entries[1].Amount); !sum.IsZero() {
			t.Errorf("expected transfer entries to net to zero, got %s", sum)
		}

		stack.AssertConsistent(t)
	})

	t.Run("overdraft leaves a failed record and no entries", func(t *testing.T) {
		reset(t)
		alice := testutil.UserID("alice")
		stack.Fund(t, alice, "USD", "10")

		record, err := stack.Journal.RecordWithdrawal(ctx, usecase.RecordWithdrawalInput{
			UserID: alice, Asset: "USD", Amount: decimal.NewFromInt(11),
		})
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
		if record == nil || record.Status != domain.TransactionFailed {
			t.Fatalf("expected failed record, got %+v", record)
		}

		stored, err := stack.Journal.GetTransaction(ctx, record.ID)
		if err != nil {
			t.Fatalf("failed to reload record: %v", err)
		}
		if stored.Status != domain.TransactionFailed || stored.FailureReason == "" {
			t.Errorf("expected failed record with reason, got %s %q", stored.Status, stored.FailureReason)
		}

		entries, err := stack.Entries.GetByCause(ctx, domain.CauseTransaction, record.ID)
		if err != nil {
			t.Fatalf("failed to load entries: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("expected no entries for failed withdrawal, got %d", len(entries))
		}

		if got := stack.Balance(t, alice, "USD"); !got.Equal(decimal.NewFromInt(10)) {
			t.Errorf("expected balance unchanged at 10, got %s", got)
		}
		stack.AssertConsistent(t)
	})

	t.Run("amounts beyond the asset scale are rejected", func(t *testing.T) {
		reset(t)

		_, err := stack.Journal.RecordDeposit(ctx, usecase.RecordDepositInput{
			UserID: testutil.UserID("alice"), Asset: "USD", Amount: decimal.RequireFromString("0.001"),
		})
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("unknown asset is rejected", func(t *testing.T) {
		reset(t)

		_, err := stack.Journal.RecordDeposit(ctx, usecase.RecordDepositInput{
			UserID: testutil.UserID("alice"), Asset: "DOGE", Amount: decimal.NewFromInt(1),
		})
		if !errors.Is(err, domain.ErrUnknownAsset) {
			t.Fatalf("expected ErrUnknownAsset, got %v", err)
		}
	})

	t.Run("historical balance follows entry snapshots", func(t *testing.T) {
		reset(t)
		alice := testutil.UserID("alice")
		entriesUC := usecase.NewEntryUseCase(stack.Accounts, stack.Entries)

		before := time.Now().UTC()
		stack.Fund(t, alice, "USD", "40")
		time.Sleep(10 * time.Millisecond)
		middle := time.Now().UTC()
		time.Sleep(10 * time.Millisecond)
		stack.Fund(t, alice, "USD", "2")

		cases := map[time.Time]decimal.Decimal{
			before.Add(-time.Second): decimal.Zero,
			middle:                   decimal.NewFromInt(40),
			time.Now().UTC():         decimal.NewFromInt(42),
		}
		for at, want := range cases {
			got, err := entriesUC.GetHistoricalBalance(ctx, alice, "USD", at)
			if err != nil {
				t.Fatalf("historical balance at %s: %v", at, err)
			}
			if !got.Equal(want) {
				t.Errorf("at %s: expected %s, got %s", at, want, got)
			}
		}
	})

	t.Run("archived users cannot receive funds", func(t *testing.T) {
		reset(t)
		alice, bob := testutil.UserID("alice"), testutil.UserID("bob")
		stack.Fund(t, alice, "USD", "5")
		stack.Fund(t, bob, "USD", "5")

		if _, err := stack.Account.ArchiveUser(ctx, bob); err != nil {
			t.Fatalf("archive failed: %v", err)
		}

		_, err := stack.Journal.RecordTransfer(ctx, usecase.RecordTransferInput{
			FromUserID: alice, ToUserID: bob, Asset: "USD", Amount: decimal.NewFromInt(1),
		})
		if !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
		if got := stack.Balance(t, alice, "USD"); !got.Equal(decimal.NewFromInt(5)) {
			t.Errorf("expected alice balance 5, got %s", got)
		}
	})
}
