package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type JobStatus string

const (
	JobStatusOpen       JobStatus = "Open"
	JobStatusContracted JobStatus = "Contracted"
	JobStatusInProgress JobStatus = "In-Progress"
	JobStatusReviewing  JobStatus = "Reviewing"
	JobStatusCompleted  JobStatus = "Completed"
	JobStatusCancelled  JobStatus = "Cancelled"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusOpen, JobStatusContracted, JobStatusInProgress, JobStatusReviewing, JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

type Category string

const (
	CategoryLegal      Category = "Legal"
	CategoryFinancial  Category = "Financial"
	CategoryTechnology Category = "Technology"
	CategoryConsulting Category = "Consulting"
	CategoryOther      Category = "Other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryLegal, CategoryFinancial, CategoryTechnology, CategoryConsulting, CategoryOther:
		return true
	}
	return false
}

const DefaultLocation = "Remote"

// WorkSubmission is metadata of the artifact stored by the file upload collaborator.
type WorkSubmission struct {
	FileURL     string    `json:"file_url"`
	FileName    string    `json:"file_name,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Job struct {
	ID             uuid.UUID       `json:"id"`
	ClientID       uuid.UUID       `json:"client_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       Category        `json:"category"`
	Budget         decimal.Decimal `json:"budget"`
	Location       string          `json:"location"`
	Status         JobStatus       `json:"status"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	WorkSubmission *WorkSubmission `json:"work_submission,omitempty"`
	Version        int64           `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// Views over the job's ledger entries, filled by ApplyLedger.
	PaymentHeld     bool            `json:"payment_held"`
	PaymentReleased bool            `json:"payment_released"`
	EscrowHeld      decimal.Decimal `json:"escrow_held"`
	TransactionIDs  []uuid.UUID     `json:"transaction_ids"`
}

// Remaining is the part of the budget not yet released to the provider.
func (j *Job) Remaining() decimal.Decimal {
	return j.Budget.Sub(j.AmountPaid)
}

// ApplyLedger derives the payment flags and transaction ids from entries referencing the job.
// Entries must be ordered oldest first.
func (j *Job) ApplyLedger(entries []Transaction) {
	j.EscrowHeld = EscrowHeld(entries)
	j.PaymentHeld = j.EscrowHeld.IsPositive()
	j.PaymentReleased = j.Status == JobStatusCompleted && j.EscrowHeld.IsZero()
	j.TransactionIDs = make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		j.TransactionIDs = append(j.TransactionIDs, e.ID)
	}
}

// EscrowHeld is what clients paid into a job minus what was paid out of it.
func EscrowHeld(entries []Transaction) decimal.Decimal {
	held := decimal.Zero
	for _, e := range entries {
		if e.Status != TxStatusCompleted {
			continue
		}
		switch e.Type {
		case TypeJobPayment, TypeJobEarning, TypeRefund:
			// payments are negative, earnings and refunds positive
			held = held.Sub(e.Amount)
		case TypeWalletFunding, TypeWithdrawal:
		}
	}
	return held
}
