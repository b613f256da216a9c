package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BidStatus string

const (
	BidStatusPending  BidStatus = "Pending"
	BidStatusAccepted BidStatus = "Accepted"
	BidStatusRejected BidStatus = "Rejected"
)

type Bid struct {
	ID         uuid.UUID       `json:"id"`
	JobID      uuid.UUID       `json:"job_id"`
	ProviderID uuid.UUID       `json:"provider_id"`
	Amount     decimal.Decimal `json:"amount"`
	Proposal   string          `json:"proposal"`
	Status     BidStatus       `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Active bids keep a provider in the job's conversation.
func (b *Bid) Active() bool {
	return b.Status == BidStatusPending || b.Status == BidStatusAccepted
}
