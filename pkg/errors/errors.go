package errors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Error kinds. Every error returned by the service wraps exactly one of them.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrConflict          = errors.New("conflict")
)

var (
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)
	ErrJobNotFound         = fmt.Errorf("job %w", ErrNotFound)
	ErrBidNotFound         = fmt.Errorf("bid %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)

	ErrNilUser        = fmt.Errorf("%w: user is nil", ErrValidation)
	ErrNilJob         = fmt.Errorf("%w: job is nil", ErrValidation)
	ErrNilBid         = fmt.Errorf("%w: bid is nil", ErrValidation)
	ErrNilTransaction = fmt.Errorf("%w: transaction is nil", ErrValidation)

	ErrInvalidAmount            = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrInvalidTransactionType   = fmt.Errorf("%w: invalid transaction type", ErrValidation)
	ErrInvalidTransactionStatus = fmt.Errorf("%w: invalid transaction status", ErrValidation)
	ErrInvalidCategory          = fmt.Errorf("%w: invalid job category", ErrValidation)
	ErrInvalidRole              = fmt.Errorf("%w: invalid role", ErrValidation)
	ErrInvalidInput             = fmt.Errorf("%w: invalid input", ErrValidation)

	ErrNotJobOwner          = fmt.Errorf("%w: caller does not own the job", ErrForbidden)
	ErrNotContractedParty   = fmt.Errorf("%w: caller is not the contracted provider", ErrForbidden)
	ErrRoleNotAllowed       = fmt.Errorf("%w: role is not allowed to perform this action", ErrForbidden)
	ErrBidsHiddenToProvider = fmt.Errorf("%w: only the job poster can view bids", ErrForbidden)

	ErrJobNotOpen          = fmt.Errorf("%w: job is not open", ErrInvalidState)
	ErrIllegalTransition   = fmt.Errorf("%w: transition is not allowed from the current status", ErrInvalidState)
	ErrBidNotForJob        = fmt.Errorf("%w: bid does not belong to the job", ErrInvalidState)
	ErrBidNotPending       = fmt.Errorf("%w: bid is not pending", ErrInvalidState)
	ErrNoAcceptedBid       = fmt.Errorf("%w: job has no accepted bid", ErrInvalidState)
	ErrEscrowInconsistency = fmt.Errorf("%w: held escrow does not match job payments", ErrInvalidState)

	ErrDuplicateBid         = fmt.Errorf("%w: bid already placed for this job", ErrConflict)
	ErrDuplicateUser        = fmt.Errorf("%w: user already exists", ErrConflict)
	ErrJobLocked            = fmt.Errorf("%w: job is locked by another operation", ErrConflict)
	ErrStaleJob             = fmt.Errorf("%w: job was modified concurrently", ErrConflict)
	ErrDuplicateExternalRef = fmt.Errorf("%w: external reference already recorded", ErrConflict)
)

// InsufficientFundsError carries the amounts a client needs to top up.
type InsufficientFundsError struct {
	Required decimal.Decimal
	Current  decimal.Decimal
}

func NewInsufficientFunds(required, current decimal.Decimal) *InsufficientFundsError {
	return &InsufficientFundsError{Required: required, Current: current}
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, current %s", e.Required.StringFixed(2), e.Current.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// Shortfall is the amount missing to cover Required.
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	s := e.Required.Sub(e.Current)
	if s.IsNegative() {
		return decimal.Zero
	}
	return s
}

type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInvalidState      Kind = "invalid_state"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindConflict          Kind = "conflict"
	KindInternal          Kind = "internal"
)

// KindOf classifies err into one of the error kinds.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}
