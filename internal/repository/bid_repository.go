package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
)

type BidRepository interface {
	// Create fails with errors.ErrDuplicateBid if the provider already bid on the job.
	Create(ctx context.Context, bid *models.Bid) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	GetByJobAndProvider(ctx context.Context, jobID, providerID uuid.UUID) (*models.Bid, error)
	GetAccepted(ctx context.Context, jobID uuid.UUID) (*models.Bid, error)
	// ListByJob returns the job's bids, lowest amount first.
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Bid, error)
	// Accept marks bidID accepted and every other pending bid of the job rejected in one statement.
	Accept(ctx context.Context, jobID, bidID uuid.UUID) (rejected int64, err error)
	RejectPending(ctx context.Context, jobID uuid.UUID) (int64, error)
}
