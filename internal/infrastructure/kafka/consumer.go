package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

const (
	minRetryDelay = 500 * time.Millisecond
	maxRetryDelay = 30 * time.Second
)

// FundingApplier credits a confirmed gateway payment. Replays of one external reference must be
// no-ops.
type FundingApplier interface {
	ConfirmFunding(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, externalRef string) (*models.Transaction, bool, error)
}

// MessageReader is the subset of *kafka.Reader the consumer uses. Offsets are committed
// explicitly so a confirmation is only acknowledged after it was applied.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader   MessageReader
	applier  FundingApplier
	minDelay time.Duration
	maxDelay time.Duration
}

func NewConsumer(brokers []string, topic, groupID string, applier FundingApplier) *Consumer {
	return NewConsumerWithReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	}), applier)
}

func NewConsumerWithReader(reader MessageReader, applier FundingApplier) *Consumer {
	return &Consumer{reader: reader, applier: applier, minDelay: minRetryDelay, maxDelay: maxRetryDelay}
}

// Consume applies funding confirmations until ctx is cancelled. A confirmation that fails with a
// transient error is retried with backoff and its offset stays uncommitted until it settles.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				slog.Info("Kafka consumer stopped")
				return
			}
			slog.Error("failed to fetch Kafka message", "error", err)
			continue
		}

		slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key), "offset", msg.Offset)
		if !c.settle(ctx, msg.Value) {
			slog.Info("Kafka consumer stopped before confirmation settled", "offset", msg.Offset)
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			slog.Error("failed to commit Kafka message", "offset", msg.Offset, "error", err)
		}
	}
}

// settle handles value until it either applies or fails permanently. It reports false when ctx
// ended first.
func (c *Consumer) settle(ctx context.Context, value []byte) bool {
	delay := c.minDelay
	for attempt := 1; ; attempt++ {
		err := c.handle(ctx, value)
		if err == nil || !retryable(err) {
			return true
		}

		slog.Warn("retrying funding confirmation", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}

// retryable reports whether a failed confirmation can succeed on redelivery. Rejections of the
// payload itself never will.
func retryable(err error) bool {
	switch pkgerrors.KindOf(err) {
	case pkgerrors.KindValidation, pkgerrors.KindNotFound, pkgerrors.KindConflict, pkgerrors.KindForbidden, pkgerrors.KindInvalidState:
		return false
	}
	return true
}

func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var event models.FundingConfirmation
	if err := json.Unmarshal(value, &event); err != nil {
		slog.Error("failed to unmarshal funding confirmation", "error", err)
		return nil
	}

	switch event.EventType {
	case models.FundingSucceeded:
	case models.FundingFailed:
		slog.Warn("funding payment failed", "user_id", event.UserID, "amount", event.Amount, "external_ref", event.ExternalRef)
		return nil
	default:
		slog.Error("unknown funding event type", "event_type", event.EventType)
		return nil
	}

	tx, applied, err := c.applier.ConfirmFunding(ctx, event.UserID, event.Amount, event.ExternalRef)
	if err != nil {
		if retryable(err) {
			slog.Error("failed to apply funding confirmation", "user_id", event.UserID, "external_ref", event.ExternalRef, "error", err)
		} else {
			slog.Error("funding confirmation rejected", "user_id", event.UserID, "external_ref", event.ExternalRef,
				"kind", pkgerrors.KindOf(err), "error", err)
		}
		return err
	}
	if !applied {
		slog.Info("funding confirmation replayed", "external_ref", event.ExternalRef, "transaction_id", tx.ID)
		return nil
	}
	slog.Info("funding applied", "user_id", event.UserID, "amount", event.Amount, "transaction_id", tx.ID)
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
