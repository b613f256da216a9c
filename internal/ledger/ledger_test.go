package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
	"github.com/honeynil/JobEscrowService/internal/repository"
	"github.com/honeynil/JobEscrowService/internal/repository/memory"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, store *memory.Store, balance int64) uuid.UUID {
	t.Helper()
	u := &models.User{Role: models.RoleClient, WalletBalance: decimal.NewFromInt(balance)}
	require.NoError(t, store.Repos().Users.Create(context.Background(), u))
	return u.ID
}

func TestLedger_CreditAndDebit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	userID := newUser(t, store, 0)
	jobID := uuid.New()

	err := store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		l := New(r)
		if _, err := l.Credit(ctx, Entry{UserID: userID, Amount: decimal.NewFromInt(300), Type: models.TypeWalletFunding, Description: "top up"}); err != nil {
			return err
		}
		_, err := l.Debit(ctx, Entry{UserID: userID, Amount: decimal.NewFromInt(120), Type: models.TypeJobPayment, RelatedJobID: &jobID, Description: "escrow"})
		return err
	})
	require.NoError(t, err)

	txs, err := store.Repos().Transactions.ListByUser(ctx, userID, repository.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txs, 2)

	// newest first
	assert.Equal(t, models.TypeJobPayment, txs[0].Type)
	assert.Equal(t, "-120", txs[0].Amount.String())
	assert.Equal(t, "180", txs[0].BalanceAfter.String())
	assert.Equal(t, &jobID, txs[0].RelatedJobID)
	assert.Equal(t, "300", txs[1].BalanceAfter.String())

	balance, err := store.Repos().Users.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(txs[0].BalanceAfter))
}

func TestLedger_DebitInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	userID := newUser(t, store, 100)
	jobID := uuid.New()

	err := store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		_, err := New(r).Debit(ctx, Entry{UserID: userID, Amount: decimal.NewFromInt(500), Type: models.TypeJobPayment, RelatedJobID: &jobID})
		return err
	})

	var insufficient *pkgerrors.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Required.Equal(decimal.NewFromInt(500)))
	assert.True(t, insufficient.Current.Equal(decimal.NewFromInt(100)))
	assert.True(t, insufficient.Shortfall().Equal(decimal.NewFromInt(400)))

	txs, err := store.Repos().Transactions.ListByUser(ctx, userID, repository.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestLedger_Validation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	userID := newUser(t, store, 100)
	l := New(store.Repos())

	tests := []struct {
		name  string
		entry Entry
	}{
		{"zero amount", Entry{UserID: userID, Amount: decimal.Zero, Type: models.TypeWalletFunding}},
		{"negative amount", Entry{UserID: userID, Amount: decimal.NewFromInt(-5), Type: models.TypeWalletFunding}},
		{"sub-cent amount", Entry{UserID: userID, Amount: decimal.RequireFromString("1.005"), Type: models.TypeWalletFunding}},
		{"unknown type", Entry{UserID: userID, Amount: decimal.NewFromInt(5), Type: "bonus"}},
		{"missing user", Entry{Amount: decimal.NewFromInt(5), Type: models.TypeWalletFunding}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Credit(ctx, tt.entry)
			assert.ErrorIs(t, err, pkgerrors.ErrValidation)
		})
	}
}

func TestLedger_ExternalFundIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	userID := newUser(t, store, 0)
	amount := decimal.NewFromInt(250)

	fund := func() (*models.Transaction, bool, error) {
		var (
			tx      *models.Transaction
			applied bool
		)
		err := store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
			var err error
			tx, applied, err = New(r).ExternalFund(ctx, userID, amount, "pi_123", "card payment")
			return err
		})
		return tx, applied, err
	}

	first, applied, err := fund()
	require.NoError(t, err)
	assert.True(t, applied)

	second, applied, err := fund()
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, first.ID, second.ID)

	balance, err := store.Repos().Users.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(amount))

	t.Run("replay with another amount", func(t *testing.T) {
		err := store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
			_, _, err := New(r).ExternalFund(ctx, userID, decimal.NewFromInt(999), "pi_123", "tampered")
			return err
		})
		assert.ErrorIs(t, err, pkgerrors.ErrConflict)
	})

	t.Run("missing reference", func(t *testing.T) {
		_, _, err := New(store.Repos()).ExternalFund(ctx, userID, amount, "", "")
		assert.ErrorIs(t, err, pkgerrors.ErrValidation)
	})
}
