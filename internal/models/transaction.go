package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is an append-only ledger entry. Amount is signed, negative for debits.
type Transaction struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	Type         TransactionType `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	RelatedJobID *uuid.UUID      `json:"related_job_id,omitempty"`
	ExternalRef  string          `json:"external_ref,omitempty"`
	Status       StatusType      `json:"status"`
	Description  string          `json:"description"`
	CreatedAt    time.Time       `json:"created_at"`
}

type TransactionType string

const (
	TypeWalletFunding TransactionType = "wallet_funding"
	TypeJobPayment    TransactionType = "job_payment"
	TypeJobEarning    TransactionType = "job_earning"
	TypeWithdrawal    TransactionType = "withdrawal"
	TypeRefund        TransactionType = "refund"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TypeWalletFunding, TypeJobPayment, TypeJobEarning, TypeWithdrawal, TypeRefund:
		return true
	}
	return false
}

type StatusType string

const (
	TxStatusPending   StatusType = "pending"
	TxStatusCompleted StatusType = "completed"
	TxStatusFailed    StatusType = "failed"
	TxStatusRefunded  StatusType = "refunded"
)

func (s StatusType) Valid() bool {
	switch s {
	case TxStatusPending, TxStatusCompleted, TxStatusFailed, TxStatusRefunded:
		return true
	}
	return false
}
