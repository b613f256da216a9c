package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/infrastructure/kafka"
	"github.com/honeynil/JobEscrowService/internal/infrastructure/observability"
	"github.com/honeynil/JobEscrowService/internal/infrastructure/redis"
	"github.com/honeynil/JobEscrowService/internal/models"
	"github.com/honeynil/JobEscrowService/internal/repository"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "marketplace-service"

const balanceTTL = 5 * time.Minute

type MarketplaceService interface {
	RegisterUser(ctx context.Context, p models.Principal, name string) (*models.User, error)

	PlaceJob(ctx context.Context, p models.Principal, in PlaceJobInput) (*models.Job, error)
	GetJob(ctx context.Context, p models.Principal, jobID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, p models.Principal, q JobQuery) ([]models.Job, error)
	CancelJob(ctx context.Context, p models.Principal, jobID uuid.UUID) (*models.Job, error)
	SubmitWork(ctx context.Context, p models.Principal, jobID uuid.UUID, ws models.WorkSubmission) (*models.Job, error)
	RejectWork(ctx context.Context, p models.Principal, jobID uuid.UUID) (*models.Job, error)
	ListJobTransactions(ctx context.Context, p models.Principal, jobID uuid.UUID) ([]models.Transaction, error)

	PlaceBid(ctx context.Context, p models.Principal, jobID uuid.UUID, amount decimal.Decimal, proposal string) (*models.Bid, error)
	ListBids(ctx context.Context, p models.Principal, jobID uuid.UUID) ([]models.Bid, error)
	CanChat(ctx context.Context, jobID, userID, otherUserID uuid.UUID) (bool, error)

	AcceptBid(ctx context.Context, p models.Principal, bidID uuid.UUID) (*AcceptResult, error)
	ApproveWork(ctx context.Context, p models.Principal, jobID uuid.UUID) (*ApproveResult, error)

	FundWallet(ctx context.Context, p models.Principal, amount decimal.Decimal) (*FundResult, error)
	ConfirmFunding(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, externalRef string) (*models.Transaction, bool, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, filter repository.TransactionFilter) ([]models.Transaction, error)
}

// Locker serializes lifecycle operations on one job across callers.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Deps wires the service. Cache and Producer are optional.
type Deps struct {
	Store       repository.Store
	Locker      Locker
	Cache       redis.RedisClient
	Producer    kafka.KafkaProducer
	Gateway     FundingGateway
	EventsTopic string
}

type marketplaceService struct {
	store       repository.Store
	locker      Locker
	cache       redis.RedisClient
	producer    kafka.KafkaProducer
	gateway     FundingGateway
	eventsTopic string
	now         func() time.Time
}

func NewMarketplaceService(d Deps) *marketplaceService {
	gateway := d.Gateway
	if gateway == nil {
		gateway = NewSimulatedGateway()
	}
	return &marketplaceService{
		store:       d.Store,
		locker:      d.Locker,
		cache:       d.Cache,
		producer:    d.Producer,
		gateway:     gateway,
		eventsTopic: d.EventsTopic,
		now:         time.Now,
	}
}

func (s *marketplaceService) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, op)
}

// fail records err on the span and in the failure counter and hands it back.
func (s *marketplaceService) fail(span trace.Span, op string, err error) error {
	kind := pkgerrors.KindOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(kind))
	observability.LifecycleFailures.WithLabelValues(op, string(kind)).Inc()
	if kind == pkgerrors.KindInternal {
		slog.Error("operation failed", "operation", op, "error", err)
	} else {
		slog.Warn("operation rejected", "operation", op, "kind", kind, "error", err)
	}
	return err
}

func jobLockKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:lock", jobID)
}

func balanceKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:balance", userID)
}

// balanceGenKey counts balance changes. A cached balance is only trusted while it carries the
// current generation, so a fill that raced a commit is ignored.
func balanceGenKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:balance:gen", userID)
}

// mutateJob runs fn under the job's lock inside one store transaction with the job row locked.
func (s *marketplaceService) mutateJob(ctx context.Context, jobID uuid.UUID, fn func(ctx context.Context, r repository.Repositories, job *models.Job) error) error {
	release, err := s.locker.Acquire(ctx, jobLockKey(jobID))
	if err != nil {
		return err
	}
	defer release()

	return s.store.WithinTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		job, err := r.Jobs.GetForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		return fn(ctx, r, job)
	})
}

// saveJob writes job and refreshes its ledger-derived fields.
func saveJob(ctx context.Context, r repository.Repositories, job *models.Job) error {
	if err := r.Jobs.Update(ctx, job); err != nil {
		return err
	}
	return loadLedger(ctx, r, job)
}

func loadLedger(ctx context.Context, r repository.Repositories, job *models.Job) error {
	entries, err := r.Transactions.ListByJob(ctx, job.ID)
	if err != nil {
		return err
	}
	job.ApplyLedger(entries)
	return nil
}

func requireRole(p models.Principal, allowed ...models.Role) error {
	if !p.Role.Valid() {
		return pkgerrors.ErrInvalidRole
	}
	for _, r := range allowed {
		if p.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", pkgerrors.ErrRoleNotAllowed, p.Role)
}

func requireOwner(p models.Principal, job *models.Job) error {
	if job.ClientID != p.UserID {
		return pkgerrors.ErrNotJobOwner
	}
	return nil
}

// validMoney accepts positive amounts with at most two decimal places.
func validMoney(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Round(2))
}

func (s *marketplaceService) publish(ctx context.Context, key uuid.UUID, ev models.Event) {
	if s.producer == nil {
		return
	}
	ev.CreatedAt = s.now().UTC()
	value, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to marshal kafka event", "event_type", ev.Type, "error", err)
		return
	}
	if err := s.producer.Send(ctx, s.eventsTopic, key.String(), value); err != nil {
		slog.Error("failed to publish event", "event_type", ev.Type, "key", key, "error", err)
		return
	}
	slog.Info("event published", "event_type", ev.Type, "key", key)
}

func (s *marketplaceService) invalidateBalance(ctx context.Context, userIDs ...uuid.UUID) {
	if s.cache == nil {
		return
	}
	for _, id := range userIDs {
		if _, err := s.cache.Incr(ctx, balanceGenKey(id)); err != nil {
			slog.Error("failed to bump balance generation", "user_id", id, "error", err)
		}
		if err := s.cache.Del(ctx, balanceKey(id)); err != nil {
			slog.Error("failed to invalidate cached balance", "user_id", id, "error", err)
		}
	}
}

func idPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func amountPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
