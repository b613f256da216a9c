// Package ledger moves money between wallets. Every balance change goes through ChangeBalance and
// is recorded as one append-only entry whose BalanceAfter is the balance ChangeBalance returned,
// so a user's balance always equals the BalanceAfter of their latest entry.
package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
	"github.com/honeynil/JobEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
)

// Entry describes a balance change. Amount is always positive; Debit negates it.
type Entry struct {
	UserID       uuid.UUID
	Amount       decimal.Decimal
	Type         models.TransactionType
	RelatedJobID *uuid.UUID
	ExternalRef  string
	Description  string
}

func (e Entry) validate() error {
	if e.UserID == uuid.Nil {
		return fmt.Errorf("%w: user id is required", pkgerrors.ErrValidation)
	}
	if !e.Amount.IsPositive() {
		return pkgerrors.ErrInvalidAmount
	}
	if !e.Amount.Equal(e.Amount.Round(2)) {
		return fmt.Errorf("%w: amount has more than two decimal places", pkgerrors.ErrValidation)
	}
	if !e.Type.Valid() {
		return pkgerrors.ErrInvalidTransactionType
	}
	return nil
}

// Ledger must be built from repositories bound to the caller's transaction so the balance update
// and the entry commit together.
type Ledger struct {
	users        repository.UserRepository
	transactions repository.TransactionRepository
}

func New(r repository.Repositories) *Ledger {
	return &Ledger{users: r.Users, transactions: r.Transactions}
}

func (l *Ledger) Credit(ctx context.Context, e Entry) (*models.Transaction, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	return l.apply(ctx, e, e.Amount)
}

// Debit fails with *errors.InsufficientFundsError when the balance is below the amount and then
// writes nothing.
func (l *Ledger) Debit(ctx context.Context, e Entry) (*models.Transaction, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	return l.apply(ctx, e, e.Amount.Neg())
}

func (l *Ledger) apply(ctx context.Context, e Entry, signed decimal.Decimal) (*models.Transaction, error) {
	balance, err := l.users.ChangeBalance(ctx, e.UserID, signed)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		ID:           uuid.New(),
		UserID:       e.UserID,
		Type:         e.Type,
		Amount:       signed,
		BalanceAfter: balance,
		RelatedJobID: e.RelatedJobID,
		ExternalRef:  e.ExternalRef,
		Status:       models.TxStatusCompleted,
		Description:  e.Description,
	}
	if err := l.transactions.Create(ctx, tx); err != nil {
		return nil, err
	}

	slog.Info("ledger entry appended", "user_id", e.UserID, "type", e.Type, "amount", signed, "balance_after", balance)
	return tx, nil
}

// ExternalFund credits a confirmed gateway payment once per external reference. A replayed
// reference returns the entry recorded the first time and applied=false.
func (l *Ledger) ExternalFund(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, externalRef, description string) (tx *models.Transaction, applied bool, err error) {
	if externalRef == "" {
		return nil, false, fmt.Errorf("%w: external reference is required", pkgerrors.ErrValidation)
	}

	existing, err := l.transactions.GetByExternalRef(ctx, externalRef)
	switch {
	case err == nil:
		if existing.UserID != userID || !existing.Amount.Equal(amount) {
			slog.Error("external reference replayed with different payload",
				"external_ref", externalRef, "user_id", userID, "recorded_user_id", existing.UserID)
			return nil, false, pkgerrors.ErrDuplicateExternalRef
		}
		slog.Info("funding already applied", "external_ref", externalRef, "transaction_id", existing.ID)
		return existing, false, nil
	case !stderrors.Is(err, pkgerrors.ErrTransactionNotFound):
		return nil, false, err
	}

	tx, err = l.Credit(ctx, Entry{
		UserID:      userID,
		Amount:      amount,
		Type:        models.TypeWalletFunding,
		ExternalRef: externalRef,
		Description: description,
	})
	if err != nil {
		return nil, false, err
	}
	return tx, true, nil
}
