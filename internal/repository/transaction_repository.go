package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// TransactionFilter narrows a user's history. Limit is clamped to [1, MaxHistoryLimit] and
// defaults to DefaultHistoryLimit.
type TransactionFilter struct {
	Type  models.TransactionType
	Limit int
}

// TransactionRepository is append-only: entries are never updated or deleted.
type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetByExternalRef(ctx context.Context, ref string) (*models.Transaction, error)
	// ListByUser returns the user's entries newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, filter TransactionFilter) ([]models.Transaction, error)
	// ListByJob returns entries referencing the job oldest first.
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]models.Transaction, error)
}

func (f TransactionFilter) Normalize() TransactionFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	return f
}
