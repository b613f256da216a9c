package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/infrastructure/observability"
	"github.com/honeynil/JobEscrowService/internal/ledger"
	"github.com/honeynil/JobEscrowService/internal/lifecycle"
	"github.com/honeynil/JobEscrowService/internal/models"
	"github.com/honeynil/JobEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type AcceptResult struct {
	Bid              *models.Bid     `json:"bid"`
	Job              *models.Job     `json:"job"`
	NewWalletBalance decimal.Decimal `json:"new_wallet_balance"`
}

type ApproveResult struct {
	Job            *models.Job     `json:"job"`
	ReleasedAmount decimal.Decimal `json:"released_amount"`
	IsFinal        bool            `json:"is_final"`
}

// AcceptBid contracts the job: the chosen bid is accepted, its siblings rejected and the full
// budget moved from the client's wallet into escrow, all in one transaction.
func (s *marketplaceService) AcceptBid(ctx context.Context, p models.Principal, bidID uuid.UUID) (*AcceptResult, error) {
	ctx, span := s.start(ctx, "AcceptBid")
	defer span.End()
	span.SetAttributes(attribute.String("bid_id", bidID.String()))

	if err := requireRole(p, models.RoleClient); err != nil {
		return nil, s.fail(span, "AcceptBid", err)
	}

	target, err := s.store.Repos().Bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, s.fail(span, "AcceptBid", err)
	}
	jobID := target.JobID
	span.SetAttributes(attribute.String("job_id", jobID.String()))

	var (
		result   AcceptResult
		rejected int64
	)
	err = s.mutateJob(ctx, jobID, func(ctx context.Context, r repository.Repositories, job *models.Job) error {
		if err := requireOwner(p, job); err != nil {
			return err
		}
		next, err := lifecycle.Next(job.Status, lifecycle.EventAcceptBid, job.AmountPaid)
		if err != nil {
			return fmt.Errorf("%w: %v", pkgerrors.ErrJobNotOpen, err)
		}

		bid, err := r.Bids.GetByID(ctx, bidID)
		if err != nil {
			return err
		}
		if bid.JobID != job.ID {
			return pkgerrors.ErrBidNotForJob
		}
		if bid.Status != models.BidStatusPending {
			return pkgerrors.ErrBidNotPending
		}

		escrow, err := ledger.New(r).Debit(ctx, ledger.Entry{
			UserID:       job.ClientID,
			Amount:       job.Budget,
			Type:         models.TypeJobPayment,
			RelatedJobID: idPtr(job.ID),
			Description:  fmt.Sprintf("Escrow for job: %s", job.Title),
		})
		if err != nil {
			return err
		}

		if rejected, err = r.Bids.Accept(ctx, job.ID, bid.ID); err != nil {
			return err
		}
		bid.Status = models.BidStatusAccepted

		job.Status = next
		if err := saveJob(ctx, r, job); err != nil {
			return err
		}

		result = AcceptResult{Bid: bid, Job: job, NewWalletBalance: escrow.BalanceAfter}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, "AcceptBid", err)
	}

	observability.EscrowHeld.Add(result.Job.Budget.InexactFloat64())
	s.invalidateBalance(ctx, p.UserID)

	slog.Info("bid accepted", "job_id", jobID, "bid_id", bidID, "provider_id", result.Bid.ProviderID,
		"escrow", result.Job.Budget, "rejected_bids", rejected, "client_balance", result.NewWalletBalance)
	s.publish(ctx, jobID, models.Event{Type: models.EventJobContracted, JobID: idPtr(jobID), BidID: idPtr(bidID),
		UserID: p.UserID, Amount: amountPtr(result.Job.Budget), Status: string(result.Job.Status)})
	return &result, nil
}

// ApproveWork releases the next share of the escrow to the contracted provider: half of the budget
// on the first approval, the remainder on the final one.
func (s *marketplaceService) ApproveWork(ctx context.Context, p models.Principal, jobID uuid.UUID) (*ApproveResult, error) {
	ctx, span := s.start(ctx, "ApproveWork")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", jobID.String()))

	if err := requireRole(p, models.RoleClient); err != nil {
		return nil, s.fail(span, "ApproveWork", err)
	}

	var (
		result   ApproveResult
		provider uuid.UUID
	)
	err := s.mutateJob(ctx, jobID, func(ctx context.Context, r repository.Repositories, job *models.Job) error {
		if err := requireOwner(p, job); err != nil {
			return err
		}
		next, err := lifecycle.Next(job.Status, lifecycle.EventApprove, job.AmountPaid)
		if err != nil {
			return err
		}
		release, err := lifecycle.PlanRelease(job.Budget, job.AmountPaid)
		if err != nil {
			return err
		}
		if release.Final != (next == models.JobStatusCompleted) {
			return fmt.Errorf("%w: release stage does not match status %s", pkgerrors.ErrEscrowInconsistency, next)
		}

		entries, err := r.Transactions.ListByJob(ctx, job.ID)
		if err != nil {
			return err
		}
		if held := models.EscrowHeld(entries); held.LessThan(release.Amount) {
			slog.Error("escrow does not cover release", "job_id", job.ID, "held", held, "release", release.Amount)
			return pkgerrors.NewInsufficientFunds(release.Amount, held)
		}

		accepted, err := r.Bids.GetAccepted(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", pkgerrors.ErrNoAcceptedBid, err)
		}
		provider = accepted.ProviderID

		if _, err := ledger.New(r).Credit(ctx, ledger.Entry{
			UserID:       provider,
			Amount:       release.Amount,
			Type:         models.TypeJobEarning,
			RelatedJobID: idPtr(job.ID),
			Description:  fmt.Sprintf("Payment (%s) for job: %s", releaseStage(release.Final), job.Title),
		}); err != nil {
			return err
		}

		job.AmountPaid = release.AmountPaid
		job.Status = next
		if err := saveJob(ctx, r, job); err != nil {
			return err
		}

		result = ApproveResult{Job: job, ReleasedAmount: release.Amount, IsFinal: release.Final}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, "ApproveWork", err)
	}

	observability.EscrowReleased.WithLabelValues(releaseStage(result.IsFinal)).Add(result.ReleasedAmount.InexactFloat64())
	s.invalidateBalance(ctx, provider)

	slog.Info("payment released", "job_id", jobID, "provider_id", provider, "amount", result.ReleasedAmount,
		"amount_paid", result.Job.AmountPaid, "final", result.IsFinal, "status", result.Job.Status)
	s.publish(ctx, jobID, models.Event{Type: models.EventPaymentReleased, JobID: idPtr(jobID), UserID: provider,
		Amount: amountPtr(result.ReleasedAmount), Status: string(result.Job.Status)})
	return &result, nil
}

func releaseStage(final bool) string {
	if final {
		return "final"
	}
	return "first"
}
