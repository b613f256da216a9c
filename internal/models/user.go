package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is referenced by id from jobs, bids and ledger entries. WalletBalance is a cache of the
// balanceAfter of the user's most recent ledger entry.
type User struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Role          Role            `json:"role"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	CreatedAt     time.Time       `json:"created_at"`
}
