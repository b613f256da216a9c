package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/infrastructure/observability"
	"github.com/honeynil/JobEscrowService/internal/infrastructure/redis"
	"github.com/honeynil/JobEscrowService/internal/ledger"
	"github.com/honeynil/JobEscrowService/internal/models"
	"github.com/honeynil/JobEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

var (
	MinFunding = decimal.NewFromInt(1)
	MaxFunding = decimal.NewFromInt(1_000_000)
)

type FundResult struct {
	WalletBalance decimal.Decimal     `json:"wallet_balance"`
	Transaction   *models.Transaction `json:"transaction"`
}

// RegisterUser creates the wallet owner for an authenticated caller. Calling it again returns the
// existing user.
func (s *marketplaceService) RegisterUser(ctx context.Context, p models.Principal, name string) (*models.User, error) {
	ctx, span := s.start(ctx, "RegisterUser")
	defer span.End()

	if !p.Role.Valid() {
		return nil, s.fail(span, "RegisterUser", pkgerrors.ErrInvalidRole)
	}
	if strings.TrimSpace(name) == "" {
		return nil, s.fail(span, "RegisterUser", fmt.Errorf("%w: name is required", pkgerrors.ErrValidation))
	}

	users := s.store.Repos().Users
	existing, err := users.GetByID(ctx, p.UserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pkgerrors.ErrUserNotFound) {
		return nil, s.fail(span, "RegisterUser", err)
	}

	user := &models.User{ID: p.UserID, Name: strings.TrimSpace(name), Role: p.Role, WalletBalance: decimal.Zero}
	err = users.Create(ctx, user)
	if errors.Is(err, pkgerrors.ErrDuplicateUser) {
		// registered concurrently; the stored wallet wins
		if existing, err = users.GetByID(ctx, p.UserID); err == nil {
			return existing, nil
		}
	}
	if err != nil {
		return nil, s.fail(span, "RegisterUser", err)
	}
	slog.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// FundWallet captures amount through the funding gateway and credits the confirmed payment.
func (s *marketplaceService) FundWallet(ctx context.Context, p models.Principal, amount decimal.Decimal) (*FundResult, error) {
	ctx, span := s.start(ctx, "FundWallet")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", p.UserID.String()), attribute.String("amount", amount.String()))

	if !validMoney(amount) {
		return nil, s.fail(span, "FundWallet", pkgerrors.ErrInvalidAmount)
	}
	if amount.LessThan(MinFunding) || amount.GreaterThan(MaxFunding) {
		return nil, s.fail(span, "FundWallet",
			fmt.Errorf("%w: amount must be between %s and %s", pkgerrors.ErrValidation, MinFunding, MaxFunding))
	}
	if _, err := s.store.Repos().Users.GetByID(ctx, p.UserID); err != nil {
		return nil, s.fail(span, "FundWallet", err)
	}

	ref, err := s.gateway.Capture(ctx, p.UserID, amount)
	if err != nil {
		observability.WalletFunding.WithLabelValues("failed").Inc()
		return nil, s.fail(span, "FundWallet", fmt.Errorf("funding gateway: %w", err))
	}

	tx, _, err := s.ConfirmFunding(ctx, p.UserID, amount, ref)
	if err != nil {
		return nil, s.fail(span, "FundWallet", err)
	}
	return &FundResult{WalletBalance: tx.BalanceAfter, Transaction: tx}, nil
}

// ConfirmFunding credits a captured payment once per external reference. A replay, even one racing
// the first delivery, returns the recorded entry with applied=false.
func (s *marketplaceService) ConfirmFunding(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, externalRef string) (*models.Transaction, bool, error) {
	ctx, span := s.start(ctx, "ConfirmFunding")
	defer span.End()
	span.SetAttributes(attribute.String("external_ref", externalRef))

	var (
		tx      *models.Transaction
		applied bool
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		var err error
		tx, applied, err = ledger.New(r).ExternalFund(ctx, userID, amount, externalRef, "Wallet funding")
		return err
	})
	if errors.Is(err, pkgerrors.ErrDuplicateExternalRef) {
		// a concurrent delivery of the same reference committed first
		existing, getErr := s.store.Repos().Transactions.GetByExternalRef(ctx, externalRef)
		if getErr == nil && existing.UserID == userID && existing.Amount.Equal(amount) {
			tx, applied, err = existing, false, nil
		}
	}
	if err != nil {
		observability.WalletFunding.WithLabelValues("failed").Inc()
		return nil, false, s.fail(span, "ConfirmFunding", err)
	}

	if !applied {
		observability.WalletFunding.WithLabelValues("replayed").Inc()
		slog.Info("funding confirmation already applied", "user_id", userID, "external_ref", externalRef, "transaction_id", tx.ID)
		return tx, false, nil
	}

	observability.WalletFunding.WithLabelValues("applied").Inc()
	s.invalidateBalance(ctx, userID)
	slog.Info("wallet funded", "user_id", userID, "amount", amount, "balance", tx.BalanceAfter, "external_ref", externalRef)
	s.publish(ctx, userID, models.Event{Type: models.EventWalletFunded, UserID: userID, Amount: amountPtr(amount),
		Status: string(tx.Status)})
	return tx, true, nil
}

// GetBalance reads through a five minute cache. Entries are stamped with the balance generation
// read before the store, and every committed balance change bumps the generation.
func (s *marketplaceService) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	ctx, span := s.start(ctx, "GetBalance")
	defer span.End()

	key := balanceKey(userID)
	gen, cacheOK := s.balanceGeneration(ctx, userID)
	if cacheOK {
		cached, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			if balance, ok := parseCachedBalance(cached, gen); ok {
				slog.Info("balance fetched from Redis", "user_id", userID, "balance", balance)
				return balance, nil
			}
			slog.Info("cached balance is stale", "user_id", userID, "generation", gen)
		case !errors.Is(err, redis.ErrKeyNotFound):
			slog.Error("failed to read cached balance", "user_id", userID, "error", err)
		}
	}

	balance, err := s.store.Repos().Users.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, s.fail(span, "GetBalance", err)
	}

	if cacheOK {
		if err := s.cache.Set(ctx, key, gen+":"+balance.StringFixed(2), balanceTTL); err != nil {
			slog.Error("failed to cache balance", "user_id", userID, "error", err)
		}
	}
	slog.Info("balance fetched from store", "user_id", userID, "balance", balance)
	return balance, nil
}

// balanceGeneration returns the user's current balance generation, "0" before the first change.
// ok is false when there is no cache or it cannot be read.
func (s *marketplaceService) balanceGeneration(ctx context.Context, userID uuid.UUID) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	gen, err := s.cache.Get(ctx, balanceGenKey(userID))
	switch {
	case err == nil:
		return gen, true
	case errors.Is(err, redis.ErrKeyNotFound):
		return "0", true
	default:
		slog.Error("failed to read balance generation", "user_id", userID, "error", err)
		return "", false
	}
}

func parseCachedBalance(cached, gen string) (decimal.Decimal, bool) {
	stamp, value, found := strings.Cut(cached, ":")
	if !found || stamp != gen {
		return decimal.Zero, false
	}
	balance, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, false
	}
	return balance, true
}

// ListTransactions returns the user's ledger, newest first.
func (s *marketplaceService) ListTransactions(ctx context.Context, userID uuid.UUID, filter repository.TransactionFilter) ([]models.Transaction, error) {
	ctx, span := s.start(ctx, "ListTransactions")
	defer span.End()

	if filter.Type != "" && !filter.Type.Valid() {
		return nil, s.fail(span, "ListTransactions", pkgerrors.ErrInvalidTransactionType)
	}

	txs, err := s.store.Repos().Transactions.ListByUser(ctx, userID, filter.Normalize())
	if err != nil {
		return nil, s.fail(span, "ListTransactions", err)
	}
	slog.Info("transaction history retrieved", "user_id", userID, "count", len(txs))
	return txs, nil
}
