// Package lifecycle holds the job state machine and the two-stage release schedule.
package lifecycle

import (
	"fmt"

	"github.com/honeynil/JobEscrowService/internal/models"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
)

type Event string

const (
	EventAcceptBid  Event = "accept_bid"
	EventSubmitWork Event = "submit_work"
	EventApprove    Event = "approve"
	EventReject     Event = "reject"
	EventCancel     Event = "cancel"
)

// Next returns the status a job moves to when ev happens in status from.
// amountPaid selects between the first and the final approval.
func Next(from models.JobStatus, ev Event, amountPaid decimal.Decimal) (models.JobStatus, error) {
	if from.Terminal() {
		return "", fmt.Errorf("%w: job is %s", pkgerrors.ErrIllegalTransition, from)
	}

	switch ev {
	case EventAcceptBid:
		if from == models.JobStatusOpen {
			return models.JobStatusContracted, nil
		}
	case EventCancel:
		if from == models.JobStatusOpen {
			return models.JobStatusCancelled, nil
		}
	case EventSubmitWork:
		if from == models.JobStatusContracted || from == models.JobStatusInProgress {
			return models.JobStatusReviewing, nil
		}
	case EventApprove:
		if from == models.JobStatusReviewing {
			if amountPaid.IsZero() {
				return models.JobStatusInProgress, nil
			}
			return models.JobStatusCompleted, nil
		}
	case EventReject:
		if from == models.JobStatusReviewing {
			return models.JobStatusInProgress, nil
		}
	default:
		return "", fmt.Errorf("%w: unknown event %q", pkgerrors.ErrInvalidInput, ev)
	}
	return "", fmt.Errorf("%w: %s on %s job", pkgerrors.ErrIllegalTransition, ev, from)
}
