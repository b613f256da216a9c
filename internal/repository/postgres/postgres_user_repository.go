package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const userTracer = "user-repository"

type PostgresUserRepository struct {
	db DBTX
}

func NewPostgresUserRepository(db DBTX) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *models.User) (err error) {
	ctx, done := observe(ctx, userTracer, "CreateUser")
	defer func() { done(err) }()

	if user == nil {
		err = pkgerrors.ErrNilUser
		return err
	}
	if !user.Role.Valid() {
		err = pkgerrors.ErrInvalidRole
		slog.Error("invalid role", "method", "Create", "role", user.Role, "error", err)
		return err
	}
	if user.WalletBalance.IsNegative() {
		err = fmt.Errorf("%w: wallet balance cannot be negative", pkgerrors.ErrValidation)
		return err
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	query := `
	INSERT INTO users (id, name, role, wallet_balance)
	VALUES ($1, $2, $3, $4)
	RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query, user.ID, user.Name, user.Role, user.WalletBalance).Scan(&user.CreatedAt)
	if isUniqueViolation(err) {
		err = pkgerrors.ErrDuplicateUser
		slog.Warn("user already exists", "method", "Create", "user_id", user.ID)
		return err
	}
	if err != nil {
		slog.Error("failed to create user", "method", "Create", "user_id", user.ID, "error", err)
		return fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created", "method", "Create", "user_id", user.ID, "role", user.Role)
	return nil
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (_ *models.User, err error) {
	ctx, done := observe(ctx, userTracer, "GetUserByID")
	defer func() { done(err) }()

	query := `SELECT id, name, role, wallet_balance, created_at FROM users WHERE id = $1`
	var user models.User
	err = r.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Name, &user.Role, &user.WalletBalance, &user.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = pkgerrors.ErrUserNotFound
		return nil, err
	case err != nil:
		slog.Error("failed to get user by id", "method", "GetByID", "user_id", id, "error", err)
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

func (r *PostgresUserRepository) ChangeBalance(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) (newBalance decimal.Decimal, err error) {
	ctx, done := observe(ctx, userTracer, "ChangeBalance")
	defer func() { done(err) }()
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("user_id", userID.String()),
		attribute.String("delta", delta.String()),
	)

	query := `
		UPDATE users
		SET wallet_balance = wallet_balance + $1
		WHERE id = $2
		AND (wallet_balance + $1) >= 0
		RETURNING wallet_balance
		`
	err = r.db.QueryRowContext(ctx, query, delta, userID).Scan(&newBalance)
	if err == nil {
		return newBalance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		slog.Error("failed to change balance", "method", "ChangeBalance", "user_id", userID, "error", err)
		return decimal.Zero, fmt.Errorf("failed to change balance: %w", err)
	}

	current, getErr := r.GetBalance(ctx, userID)
	if getErr != nil {
		err = getErr
		return decimal.Zero, err
	}
	err = pkgerrors.NewInsufficientFunds(delta.Neg(), current)
	slog.Warn("balance change rejected", "method", "ChangeBalance", "user_id", userID, "delta", delta, "balance", current)
	return decimal.Zero, err
}

func (r *PostgresUserRepository) GetBalance(ctx context.Context, userID uuid.UUID) (balance decimal.Decimal, err error) {
	ctx, done := observe(ctx, userTracer, "GetBalance")
	defer func() { done(err) }()

	query := `SELECT wallet_balance FROM users WHERE id = $1`
	err = r.db.QueryRowContext(ctx, query, userID).Scan(&balance)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = pkgerrors.ErrUserNotFound
		return decimal.Zero, err
	case err != nil:
		slog.Error("failed to get balance", "method", "GetBalance", "user_id", userID, "error", err)
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance, nil
}
