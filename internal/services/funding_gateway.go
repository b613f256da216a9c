package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FundingGateway captures a real payment and returns the gateway's reference for it.
type FundingGateway interface {
	Capture(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (externalRef string, err error)
}

// SimulatedGateway confirms every payment immediately. References are "simulated_<nanos>" and
// strictly increasing so two captures never share one.
type SimulatedGateway struct {
	last atomic.Int64
}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

func (g *SimulatedGateway) Capture(ctx context.Context, _ uuid.UUID, _ decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for {
		prev := g.last.Load()
		next := time.Now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if g.last.CompareAndSwap(prev, next) {
			return fmt.Sprintf("simulated_%d", next), nil
		}
	}
}
