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
)

const bidTracer = "bid-repository"

const bidColumns = `id, job_id, provider_id, amount, proposal, status, created_at`

type PostgresBidRepository struct {
	db DBTX
}

func NewPostgresBidRepository(db DBTX) *PostgresBidRepository {
	return &PostgresBidRepository{db: db}
}

func scanBid(row rowScanner) (*models.Bid, error) {
	var bid models.Bid
	if err := row.Scan(&bid.ID, &bid.JobID, &bid.ProviderID, &bid.Amount, &bid.Proposal, &bid.Status, &bid.CreatedAt); err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *PostgresBidRepository) Create(ctx context.Context, bid *models.Bid) (err error) {
	ctx, done := observe(ctx, bidTracer, "CreateBid")
	defer func() { done(err) }()

	if bid == nil {
		err = pkgerrors.ErrNilBid
		return err
	}
	if bid.ID == uuid.Nil {
		bid.ID = uuid.New()
	}
	if bid.Status == "" {
		bid.Status = models.BidStatusPending
	}

	query := `
	INSERT INTO bids (id, job_id, provider_id, amount, proposal, status)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING created_at
	`
	err = r.db.QueryRowContext(ctx, query, bid.ID, bid.JobID, bid.ProviderID, bid.Amount, bid.Proposal, bid.Status).
		Scan(&bid.CreatedAt)
	if isUniqueViolation(err) {
		err = pkgerrors.ErrDuplicateBid
		slog.Warn("duplicate bid", "method", "Create", "job_id", bid.JobID, "provider_id", bid.ProviderID)
		return err
	}
	if err != nil {
		slog.Error("failed to create bid", "method", "Create", "job_id", bid.JobID, "provider_id", bid.ProviderID, "error", err)
		return fmt.Errorf("failed to create bid: %w", err)
	}

	slog.Info("bid created", "method", "Create", "bid_id", bid.ID, "job_id", bid.JobID, "provider_id", bid.ProviderID)
	return nil
}

func (r *PostgresBidRepository) getOne(ctx context.Context, method, query string, args ...any) (_ *models.Bid, err error) {
	ctx, done := observe(ctx, bidTracer, method)
	defer func() { done(err) }()

	bid, err := scanBid(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrBidNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get bid", "method", method, "error", err)
		return nil, fmt.Errorf("failed to get bid: %w", err)
	}
	return bid, nil
}

func (r *PostgresBidRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	return r.getOne(ctx, "GetBidByID", `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id)
}

func (r *PostgresBidRepository) GetByJobAndProvider(ctx context.Context, jobID, providerID uuid.UUID) (*models.Bid, error) {
	return r.getOne(ctx, "GetBidByJobAndProvider",
		`SELECT `+bidColumns+` FROM bids WHERE job_id = $1 AND provider_id = $2`, jobID, providerID)
}

func (r *PostgresBidRepository) GetAccepted(ctx context.Context, jobID uuid.UUID) (*models.Bid, error) {
	return r.getOne(ctx, "GetAcceptedBid",
		`SELECT `+bidColumns+` FROM bids WHERE job_id = $1 AND status = $2`, jobID, models.BidStatusAccepted)
}

func (r *PostgresBidRepository) ListByJob(ctx context.Context, jobID uuid.UUID) (_ []models.Bid, err error) {
	ctx, done := observe(ctx, bidTracer, "ListBidsByJob")
	defer func() { done(err) }()

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE job_id = $1 ORDER BY amount ASC, created_at ASC`, jobID)
	if err != nil {
		slog.Error("failed to list bids", "method", "ListByJob", "job_id", jobID, "error", err)
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	bids := make([]models.Bid, 0)
	for rows.Next() {
		bid, scanErr := scanBid(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan bid: %w", scanErr)
			return nil, err
		}
		bids = append(bids, *bid)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bids: %w", err)
	}
	return bids, nil
}

func (r *PostgresBidRepository) Accept(ctx context.Context, jobID, bidID uuid.UUID) (rejected int64, err error) {
	ctx, done := observe(ctx, bidTracer, "AcceptBid")
	defer func() { done(err) }()

	query := `
	UPDATE bids
	SET status = CASE WHEN id = $2 THEN 'Accepted' ELSE 'Rejected' END
	WHERE job_id = $1 AND status = 'Pending'
	`
	res, err := r.db.ExecContext(ctx, query, jobID, bidID)
	if err != nil {
		slog.Error("failed to accept bid", "method", "Accept", "job_id", jobID, "bid_id", bidID, "error", err)
		return 0, fmt.Errorf("failed to accept bid: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		err = pkgerrors.ErrBidNotPending
		return 0, err
	}

	slog.Info("bid accepted", "method", "Accept", "job_id", jobID, "bid_id", bidID, "rejected", affected-1)
	return affected - 1, nil
}

func (r *PostgresBidRepository) RejectPending(ctx context.Context, jobID uuid.UUID) (_ int64, err error) {
	ctx, done := observe(ctx, bidTracer, "RejectPendingBids")
	defer func() { done(err) }()

	res, err := r.db.ExecContext(ctx, `UPDATE bids SET status = 'Rejected' WHERE job_id = $1 AND status = 'Pending'`, jobID)
	if err != nil {
		slog.Error("failed to reject bids", "method", "RejectPending", "job_id", jobID, "error", err)
		return 0, fmt.Errorf("failed to reject bids: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}
