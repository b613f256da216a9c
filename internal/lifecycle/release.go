package lifecycle

import (
	"fmt"

	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
)

var half = decimal.NewFromFloat(0.5)

// Release describes one disbursement from escrow to the provider.
type Release struct {
	Amount     decimal.Decimal
	AmountPaid decimal.Decimal
	Final      bool
}

// PlanRelease computes the next release for a job: half of the budget, rounded to cents, on the
// first approval and the exact remainder on the final one, so both releases sum to budget.
func PlanRelease(budget, amountPaid decimal.Decimal) (Release, error) {
	if !budget.IsPositive() {
		return Release{}, fmt.Errorf("%w: budget must be positive", pkgerrors.ErrInvalidInput)
	}
	if amountPaid.IsNegative() || amountPaid.GreaterThanOrEqual(budget) {
		return Release{}, fmt.Errorf("%w: amount paid %s out of range for budget %s", pkgerrors.ErrInvalidState, amountPaid, budget)
	}

	if amountPaid.IsZero() {
		amount := budget.Mul(half).Round(2)
		if amount.GreaterThanOrEqual(budget) {
			return Release{}, fmt.Errorf("%w: budget %s is too small to split", pkgerrors.ErrInvalidInput, budget)
		}
		return Release{Amount: amount, AmountPaid: amount, Final: false}, nil
	}

	remainder := budget.Sub(amountPaid)
	return Release{Amount: remainder, AmountPaid: budget, Final: true}, nil
}
