package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
	"github.com/honeynil/JobEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// PlaceBid records a provider's offer on an open job. The job row stays locked while the bid is
// inserted so a concurrent accept cannot close the job in between.
func (s *marketplaceService) PlaceBid(ctx context.Context, p models.Principal, jobID uuid.UUID, amount decimal.Decimal, proposal string) (*models.Bid, error) {
	ctx, span := s.start(ctx, "PlaceBid")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", jobID.String()))

	if err := requireRole(p, models.RoleProvider); err != nil {
		return nil, s.fail(span, "PlaceBid", err)
	}
	if !validMoney(amount) {
		return nil, s.fail(span, "PlaceBid", pkgerrors.ErrInvalidAmount)
	}
	if strings.TrimSpace(proposal) == "" {
		return nil, s.fail(span, "PlaceBid", fmt.Errorf("%w: proposal is required", pkgerrors.ErrValidation))
	}

	bid := &models.Bid{
		JobID:      jobID,
		ProviderID: p.UserID,
		Amount:     amount,
		Proposal:   strings.TrimSpace(proposal),
		Status:     models.BidStatusPending,
	}
	err := s.mutateJob(ctx, jobID, func(ctx context.Context, r repository.Repositories, job *models.Job) error {
		if job.Status != models.JobStatusOpen {
			return pkgerrors.ErrJobNotOpen
		}
		if _, err := r.Users.GetByID(ctx, p.UserID); err != nil {
			return err
		}
		return r.Bids.Create(ctx, bid)
	})
	if err != nil {
		return nil, s.fail(span, "PlaceBid", err)
	}

	slog.Info("bid placed", "bid_id", bid.ID, "job_id", jobID, "provider_id", p.UserID, "amount", amount)
	s.publish(ctx, jobID, models.Event{Type: models.EventBidPlaced, JobID: idPtr(jobID), BidID: idPtr(bid.ID),
		UserID: p.UserID, Amount: amountPtr(amount), Status: string(bid.Status)})
	return bid, nil
}

// ListBids shows a job's bids, cheapest first, to the client who posted it. Providers never see
// competing bids.
func (s *marketplaceService) ListBids(ctx context.Context, p models.Principal, jobID uuid.UUID) ([]models.Bid, error) {
	ctx, span := s.start(ctx, "ListBids")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", jobID.String()))

	switch p.Role {
	case models.RoleClient:
	case models.RoleProvider:
		return nil, s.fail(span, "ListBids", pkgerrors.ErrBidsHiddenToProvider)
	case models.RoleAdmin:
		return nil, s.fail(span, "ListBids", pkgerrors.ErrNotJobOwner)
	default:
		return nil, s.fail(span, "ListBids", pkgerrors.ErrInvalidRole)
	}

	r := s.store.Repos()
	job, err := r.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, s.fail(span, "ListBids", err)
	}
	if err := requireOwner(p, job); err != nil {
		return nil, s.fail(span, "ListBids", err)
	}

	bids, err := r.Bids.ListByJob(ctx, jobID)
	if err != nil {
		return nil, s.fail(span, "ListBids", err)
	}
	return bids, nil
}

// CanChat reports whether userID may message otherUserID about the job: one of them must be the
// job's client and the other a provider whose bid is still pending or accepted.
func (s *marketplaceService) CanChat(ctx context.Context, jobID, userID, otherUserID uuid.UUID) (bool, error) {
	ctx, span := s.start(ctx, "CanChat")
	defer span.End()

	r := s.store.Repos()
	job, err := r.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return false, s.fail(span, "CanChat", err)
	}

	var provider uuid.UUID
	switch {
	case userID == otherUserID:
		return false, nil
	case userID == job.ClientID:
		provider = otherUserID
	case otherUserID == job.ClientID:
		provider = userID
	default:
		return false, nil
	}

	bid, err := r.Bids.GetByJobAndProvider(ctx, jobID, provider)
	if errors.Is(err, pkgerrors.ErrBidNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.fail(span, "CanChat", err)
	}
	return bid.Active(), nil
}
