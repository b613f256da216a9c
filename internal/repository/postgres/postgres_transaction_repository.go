package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
	"github.com/honeynil/JobEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const transactionTracer = "transaction-repository"

const transactionColumns = `id, user_id, type, amount, balance_after, related_job_id, external_ref, status, description, created_at`

type PostgresTransactionRepository struct {
	db DBTX
}

func NewPostgresTransactionRepository(db DBTX) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

// ValidateEntry checks the invariants of a ledger entry before it is appended.
func ValidateEntry(tx *models.Transaction) error {
	if tx == nil {
		return pkgerrors.ErrNilTransaction
	}
	if !tx.Type.Valid() {
		return pkgerrors.ErrInvalidTransactionType
	}
	if !tx.Status.Valid() {
		return pkgerrors.ErrInvalidTransactionStatus
	}
	if tx.Amount.IsZero() {
		return fmt.Errorf("%w: amount must not be zero", pkgerrors.ErrValidation)
	}
	switch tx.Type {
	case models.TypeJobPayment, models.TypeWithdrawal:
		if tx.Amount.IsPositive() {
			return fmt.Errorf("%w: %s must be a debit", pkgerrors.ErrValidation, tx.Type)
		}
	case models.TypeWalletFunding, models.TypeJobEarning, models.TypeRefund:
		if tx.Amount.IsNegative() {
			return fmt.Errorf("%w: %s must be a credit", pkgerrors.ErrValidation, tx.Type)
		}
	}
	if tx.BalanceAfter.IsNegative() {
		return fmt.Errorf("%w: balance after cannot be negative", pkgerrors.ErrValidation)
	}
	if (tx.Type == models.TypeJobPayment || tx.Type == models.TypeJobEarning) && tx.RelatedJobID == nil {
		return fmt.Errorf("%w: %s must reference a job", pkgerrors.ErrValidation, tx.Type)
	}
	return nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var (
		tx          models.Transaction
		relatedJob  uuid.NullUUID
		externalRef sql.NullString
	)
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Amount, &tx.BalanceAfter, &relatedJob, &externalRef,
		&tx.Status, &tx.Description, &tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	if relatedJob.Valid {
		id := relatedJob.UUID
		tx.RelatedJobID = &id
	}
	tx.ExternalRef = externalRef.String
	return &tx, nil
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *models.Transaction) (err error) {
	ctx, done := observe(ctx, transactionTracer, "CreateTransaction")
	defer func() { done(err) }()

	if err = ValidateEntry(tx); err != nil {
		slog.Error("invalid ledger entry", "method", "Create", "error", err)
		return err
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("user_id", tx.UserID.String()),
		attribute.String("amount", tx.Amount.String()),
		attribute.String("type", string(tx.Type)),
		attribute.String("status", string(tx.Status)),
	)

	var relatedJob uuid.NullUUID
	if tx.RelatedJobID != nil {
		relatedJob = uuid.NullUUID{UUID: *tx.RelatedJobID, Valid: true}
	}
	externalRef := sql.NullString{String: tx.ExternalRef, Valid: tx.ExternalRef != ""}

	query := `INSERT INTO transactions (id, user_id, type, amount, balance_after, related_job_id, external_ref, status, description) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at`
	err = r.db.QueryRowContext(ctx, query, tx.ID, tx.UserID, tx.Type, tx.Amount, tx.BalanceAfter, relatedJob,
		externalRef, tx.Status, tx.Description).Scan(&tx.CreatedAt)
	if isUniqueViolation(err) {
		err = pkgerrors.ErrDuplicateExternalRef
		slog.Warn("duplicate external reference", "method", "Create", "external_ref", tx.ExternalRef)
		return err
	}
	if err != nil {
		slog.Error("failed to create transaction", "method", "Create", "user_id", tx.UserID, "type", tx.Type, "status", tx.Status, "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	slog.Info("transaction created", "method", "Create", "id", tx.ID, "user_id", tx.UserID, "type", tx.Type,
		"amount", tx.Amount, "balance_after", tx.BalanceAfter)
	return nil
}

func (r *PostgresTransactionRepository) getOne(ctx context.Context, method, query string, arg any) (_ *models.Transaction, err error) {
	ctx, done := observe(ctx, transactionTracer, method)
	defer func() { done(err) }()

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, query, arg))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTransactionNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get transaction", "method", method, "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return r.getOne(ctx, "GetTransactionByID", `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
}

func (r *PostgresTransactionRepository) GetByExternalRef(ctx context.Context, ref string) (*models.Transaction, error) {
	return r.getOne(ctx, "GetTransactionByExternalRef", `SELECT `+transactionColumns+` FROM transactions WHERE external_ref = $1`, ref)
}

func (r *PostgresTransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, filter repository.TransactionFilter) (_ []models.Transaction, err error) {
	ctx, done := observe(ctx, transactionTracer, "ListTransactionsByUser")
	defer func() { done(err) }()

	limit := filter.Normalize().Limit

	var rows *sql.Rows
	if filter.Type != "" {
		rows, err = r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 AND type = $2 ORDER BY seq DESC LIMIT $3`,
			userID, filter.Type, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY seq DESC LIMIT $2`,
			userID, limit)
	}
	if err != nil {
		slog.Error("failed to list transactions", "method", "ListByUser", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (r *PostgresTransactionRepository) ListByJob(ctx context.Context, jobID uuid.UUID) (_ []models.Transaction, err error) {
	ctx, done := observe(ctx, transactionTracer, "ListTransactionsByJob")
	defer func() { done(err) }()

	rows, err := r.db.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE related_job_id = $1 ORDER BY seq ASC`, jobID)
	if err != nil {
		slog.Error("failed to list job transactions", "method", "ListByJob", "job_id", jobID, "error", err)
		return nil, fmt.Errorf("failed to list job transactions: %w", err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()

	txs := make([]models.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}
