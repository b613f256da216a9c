package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
)

type JobFilter struct {
	ClientID *uuid.UUID
	Statuses []models.JobStatus
	Category models.Category
}

type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// GetForUpdate reads the job and locks it until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// Update writes the job if its stored version still equals job.Version and bumps the version.
	// A lost race returns errors.ErrStaleJob.
	Update(ctx context.Context, job *models.Job) error
	List(ctx context.Context, filter JobFilter) ([]models.Job, error)
}
