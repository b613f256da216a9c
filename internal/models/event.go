package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventJobPosted       EventType = "job_posted"
	EventBidPlaced       EventType = "bid_placed"
	EventJobContracted   EventType = "job_contracted"
	EventWorkSubmitted   EventType = "work_submitted"
	EventWorkRejected    EventType = "work_rejected"
	EventPaymentReleased EventType = "payment_released"
	EventJobCancelled    EventType = "job_cancelled"
	EventWalletFunded    EventType = "wallet_funded"
)

// Event is published after a state change commits.
type Event struct {
	Type      EventType        `json:"event_type"`
	JobID     *uuid.UUID       `json:"job_id,omitempty"`
	BidID     *uuid.UUID       `json:"bid_id,omitempty"`
	UserID    uuid.UUID        `json:"user_id"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Status    string           `json:"status,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// FundingConfirmation is delivered by the funding gateway once a payment is captured.
type FundingConfirmation struct {
	EventType   string          `json:"event_type"`
	UserID      uuid.UUID       `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	ExternalRef string          `json:"external_ref"`
	CreatedAt   string          `json:"created_at"`
}

const (
	FundingSucceeded = "payment_succeeded"
	FundingFailed    = "payment_failed"
)
