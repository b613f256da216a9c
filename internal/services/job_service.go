package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/lifecycle"
	"github.com/honeynil/JobEscrowService/internal/models"
	"github.com/honeynil/JobEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// MinBudget keeps the first release strictly below the budget.
var MinBudget = decimal.NewFromInt(1)

type PlaceJobInput struct {
	Title       string
	Description string
	Category    models.Category
	Budget      decimal.Decimal
	Location    string
}

func (in PlaceJobInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", pkgerrors.ErrValidation)
	}
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("%w: description is required", pkgerrors.ErrValidation)
	}
	if !in.Category.Valid() {
		return pkgerrors.ErrInvalidCategory
	}
	if !validMoney(in.Budget) {
		return pkgerrors.ErrInvalidAmount
	}
	if in.Budget.LessThan(MinBudget) {
		return fmt.Errorf("%w: budget must be at least %s", pkgerrors.ErrValidation, MinBudget)
	}
	return nil
}

// JobQuery filters ListJobs. An empty Status means the caller's default view.
type JobQuery struct {
	Status   models.JobStatus
	Category models.Category
}

func (s *marketplaceService) PlaceJob(ctx context.Context, p models.Principal, in PlaceJobInput) (*models.Job, error) {
	ctx, span := s.start(ctx, "PlaceJob")
	defer span.End()

	if err := requireRole(p, models.RoleClient); err != nil {
		return nil, s.fail(span, "PlaceJob", err)
	}
	if err := in.validate(); err != nil {
		return nil, s.fail(span, "PlaceJob", err)
	}

	location := strings.TrimSpace(in.Location)
	if location == "" {
		location = models.DefaultLocation
	}
	job := &models.Job{
		ClientID:    p.UserID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    in.Category,
		Budget:      in.Budget,
		Location:    location,
		Status:      models.JobStatusOpen,
		AmountPaid:  decimal.Zero,
	}
	if _, err := s.store.Repos().Users.GetByID(ctx, p.UserID); err != nil {
		return nil, s.fail(span, "PlaceJob", err)
	}
	if err := s.store.Repos().Jobs.Create(ctx, job); err != nil {
		return nil, s.fail(span, "PlaceJob", err)
	}
	job.ApplyLedger(nil)

	span.SetAttributes(attribute.String("job_id", job.ID.String()))
	slog.Info("job posted", "job_id", job.ID, "client_id", p.UserID, "budget", job.Budget, "category", job.Category)
	s.publish(ctx, job.ID, models.Event{Type: models.EventJobPosted, JobID: idPtr(job.ID), UserID: p.UserID,
		Amount: amountPtr(job.Budget), Status: string(job.Status)})
	return job, nil
}

func (s *marketplaceService) GetJob(ctx context.Context, p models.Principal, jobID uuid.UUID) (*models.Job, error) {
	ctx, span := s.start(ctx, "GetJob")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", jobID.String()))

	if err := requireRole(p, models.RoleClient, models.RoleProvider, models.RoleAdmin); err != nil {
		return nil, s.fail(span, "GetJob", err)
	}
	r := s.store.Repos()
	job, err := r.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, s.fail(span, "GetJob", err)
	}
	if err := loadLedger(ctx, r, job); err != nil {
		return nil, s.fail(span, "GetJob", err)
	}
	return job, nil
}

// ListJobs scopes the listing by role: clients see their own jobs, providers the open market,
// admins everything.
func (s *marketplaceService) ListJobs(ctx context.Context, p models.Principal, q JobQuery) ([]models.Job, error) {
	ctx, span := s.start(ctx, "ListJobs")
	defer span.End()

	if q.Status != "" && !q.Status.Valid() {
		return nil, s.fail(span, "ListJobs", fmt.Errorf("%w: unknown status %q", pkgerrors.ErrValidation, q.Status))
	}
	if q.Category != "" && !q.Category.Valid() {
		return nil, s.fail(span, "ListJobs", pkgerrors.ErrInvalidCategory)
	}

	filter := repository.JobFilter{Category: q.Category}
	if q.Status != "" {
		filter.Statuses = []models.JobStatus{q.Status}
	}
	switch p.Role {
	case models.RoleClient:
		filter.ClientID = &p.UserID
	case models.RoleProvider:
		if q.Status == "" {
			filter.Statuses = []models.JobStatus{models.JobStatusOpen, models.JobStatusContracted}
		}
	case models.RoleAdmin:
	default:
		return nil, s.fail(span, "ListJobs", pkgerrors.ErrInvalidRole)
	}

	jobs, err := s.store.Repos().Jobs.List(ctx, filter)
	if err != nil {
		return nil, s.fail(span, "ListJobs", err)
	}
	slog.Info("jobs listed", "user_id", p.UserID, "role", p.Role, "count", len(jobs))
	return jobs, nil
}

// CancelJob withdraws an open job and rejects every pending bid on it.
func (s *marketplaceService) CancelJob(ctx context.Context, p models.Principal, jobID uuid.UUID) (*models.Job, error) {
	ctx, span := s.start(ctx, "CancelJob")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", jobID.String()))

	if err := requireRole(p, models.RoleClient); err != nil {
		return nil, s.fail(span, "CancelJob", err)
	}

	var (
		result   *models.Job
		rejected int64
	)
	err := s.mutateJob(ctx, jobID, func(ctx context.Context, r repository.Repositories, job *models.Job) error {
		if err := requireOwner(p, job); err != nil {
			return err
		}
		next, err := lifecycle.Next(job.Status, lifecycle.EventCancel, job.AmountPaid)
		if err != nil {
			return err
		}
		if rejected, err = r.Bids.RejectPending(ctx, job.ID); err != nil {
			return err
		}
		job.Status = next
		if err := saveJob(ctx, r, job); err != nil {
			return err
		}
		result = job
		return nil
	})
	if err != nil {
		return nil, s.fail(span, "CancelJob", err)
	}

	slog.Info("job cancelled", "job_id", jobID, "client_id", p.UserID, "rejected_bids", rejected)
	s.publish(ctx, jobID, models.Event{Type: models.EventJobCancelled, JobID: idPtr(jobID), UserID: p.UserID,
		Status: string(result.Status)})
	return result, nil
}

// SubmitWork moves a contracted or in-progress job to review. Only the provider whose bid was
// accepted may submit.
func (s *marketplaceService) SubmitWork(ctx context.Context, p models.Principal, jobID uuid.UUID, ws models.WorkSubmission) (*models.Job, error) {
	ctx, span := s.start(ctx, "SubmitWork")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", jobID.String()))

	if err := requireRole(p, models.RoleProvider); err != nil {
		return nil, s.fail(span, "SubmitWork", err)
	}
	if strings.TrimSpace(ws.FileURL) == "" {
		return nil, s.fail(span, "SubmitWork", fmt.Errorf("%w: submitted artifact reference is required", pkgerrors.ErrValidation))
	}

	var result *models.Job
	err := s.mutateJob(ctx, jobID, func(ctx context.Context, r repository.Repositories, job *models.Job) error {
		next, err := lifecycle.Next(job.Status, lifecycle.EventSubmitWork, job.AmountPaid)
		if err != nil {
			return err
		}
		accepted, err := r.Bids.GetAccepted(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", pkgerrors.ErrNoAcceptedBid, err)
		}
		if accepted.ProviderID != p.UserID {
			return pkgerrors.ErrNotContractedParty
		}

		if ws.SubmittedAt.IsZero() {
			ws.SubmittedAt = s.now().UTC()
		}
		job.WorkSubmission = &ws
		job.Status = next
		if err := saveJob(ctx, r, job); err != nil {
			return err
		}
		result = job
		return nil
	})
	if err != nil {
		return nil, s.fail(span, "SubmitWork", err)
	}

	slog.Info("work submitted", "job_id", jobID, "provider_id", p.UserID, "file_url", ws.FileURL)
	s.publish(ctx, jobID, models.Event{Type: models.EventWorkSubmitted, JobID: idPtr(jobID), UserID: p.UserID,
		Status: string(result.Status)})
	return result, nil
}

// RejectWork sends a reviewed job back to the provider without moving money.
func (s *marketplaceService) RejectWork(ctx context.Context, p models.Principal, jobID uuid.UUID) (*models.Job, error) {
	ctx, span := s.start(ctx, "RejectWork")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", jobID.String()))

	if err := requireRole(p, models.RoleClient); err != nil {
		return nil, s.fail(span, "RejectWork", err)
	}

	var result *models.Job
	err := s.mutateJob(ctx, jobID, func(ctx context.Context, r repository.Repositories, job *models.Job) error {
		if err := requireOwner(p, job); err != nil {
			return err
		}
		next, err := lifecycle.Next(job.Status, lifecycle.EventReject, job.AmountPaid)
		if err != nil {
			return err
		}
		job.Status = next
		if err := saveJob(ctx, r, job); err != nil {
			return err
		}
		result = job
		return nil
	})
	if err != nil {
		return nil, s.fail(span, "RejectWork", err)
	}

	slog.Info("work rejected", "job_id", jobID, "client_id", p.UserID)
	s.publish(ctx, jobID, models.Event{Type: models.EventWorkRejected, JobID: idPtr(jobID), UserID: p.UserID,
		Status: string(result.Status)})
	return result, nil
}

// ListJobTransactions returns the job's payment history to its client, its contracted provider
// and admins.
func (s *marketplaceService) ListJobTransactions(ctx context.Context, p models.Principal, jobID uuid.UUID) ([]models.Transaction, error) {
	ctx, span := s.start(ctx, "ListJobTransactions")
	defer span.End()
	span.SetAttributes(attribute.String("job_id", jobID.String()))

	r := s.store.Repos()
	job, err := r.Jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, s.fail(span, "ListJobTransactions", err)
	}

	switch p.Role {
	case models.RoleAdmin:
	case models.RoleClient:
		if err := requireOwner(p, job); err != nil {
			return nil, s.fail(span, "ListJobTransactions", err)
		}
	case models.RoleProvider:
		accepted, err := r.Bids.GetAccepted(ctx, jobID)
		if err != nil && !errors.Is(err, pkgerrors.ErrBidNotFound) {
			return nil, s.fail(span, "ListJobTransactions", err)
		}
		if accepted == nil || accepted.ProviderID != p.UserID {
			return nil, s.fail(span, "ListJobTransactions", pkgerrors.ErrNotContractedParty)
		}
	default:
		return nil, s.fail(span, "ListJobTransactions", pkgerrors.ErrInvalidRole)
	}

	txs, err := r.Transactions.ListByJob(ctx, jobID)
	if err != nil {
		return nil, s.fail(span, "ListJobTransactions", err)
	}
	return txs, nil
}
