package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
	"github.com/shopspring/decimal"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// ChangeBalance adds delta to the balance unless the result would be negative, in which case
	// it returns *errors.InsufficientFundsError. Inside a transaction the user row stays locked.
	ChangeBalance(ctx context.Context, userID uuid.UUID, delta decimal.Decimal) (newBalance decimal.Decimal, err error)
	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}
