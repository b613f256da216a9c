package kafka

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/JobEscrowService/internal/models"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockApplier struct {
	mock.Mock
}

func (m *mockApplier) ConfirmFunding(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, ref string) (*models.Transaction, bool, error) {
	args := m.Called(ctx, userID, amount, ref)
	tx, _ := args.Get(0).(*models.Transaction)
	return tx, args.Bool(1), args.Error(2)
}

// sliceReader replays queued messages and records commits. Once empty it closes drained and
// blocks until ctx is done.
type sliceReader struct {
	msgs      []kafka.Message
	committed []int64
	drained   chan struct{}
}

func newSliceReader(values ...[]byte) *sliceReader {
	r := &sliceReader{drained: make(chan struct{})}
	for i, v := range values {
		r.msgs = append(r.msgs, kafka.Message{Offset: int64(i), Value: v})
	}
	return r
}

func (r *sliceReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		if r.drained != nil {
			close(r.drained)
			r.drained = nil
		}
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *sliceReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *sliceReader) Close() error { return nil }

// run consumes until the reader is drained and returns the committed offsets.
func run(t *testing.T, reader *sliceReader, applier FundingApplier) []int64 {
	t.Helper()
	drained := reader.drained
	c := NewConsumerWithReader(reader, applier)
	c.minDelay, c.maxDelay = time.Millisecond, 2*time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Consume(ctx)
		close(done)
	}()

	select {
	case <-drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain the reader")
	}
	cancel()
	<-done
	return reader.committed
}

func confirmation(eventType string, userID uuid.UUID, amount, ref string) []byte {
	return []byte(fmt.Sprintf(`{"event_type":%q,"user_id":%q,"amount":%q,"external_ref":%q,"created_at":"2024-01-01T00:00:00Z"}`,
		eventType, userID, amount, ref))
}

func TestConsumer_Consume(t *testing.T) {
	userID := uuid.New()
	amount := decimal.RequireFromString("250.00")
	tx := &models.Transaction{ID: uuid.New(), UserID: userID, Amount: amount}

	succeeded := confirmation(models.FundingSucceeded, userID, "250.00", "pi_1")
	failed := confirmation(models.FundingFailed, userID, "250.00", "pi_2")

	applier := new(mockApplier)
	applier.On("ConfirmFunding", mock.Anything, userID, mock.MatchedBy(amount.Equal), "pi_1").Return(tx, true, nil).Once()
	applier.On("ConfirmFunding", mock.Anything, userID, mock.MatchedBy(amount.Equal), "pi_1").Return(tx, false, nil).Once()

	committed := run(t, newSliceReader(succeeded, []byte("not json"), failed, succeeded), applier)

	applier.AssertExpectations(t)
	applier.AssertNotCalled(t, "ConfirmFunding", mock.Anything, userID, mock.Anything, "pi_2")
	assert.Equal(t, []int64{0, 1, 2, 3}, committed)
}

func TestConsumer_RetriesTransientFailure(t *testing.T) {
	userID := uuid.New()
	tx := &models.Transaction{ID: uuid.New(), UserID: userID}

	applier := new(mockApplier)
	applier.On("ConfirmFunding", mock.Anything, userID, mock.Anything, "pi_9").Return(nil, false, errors.New("db down")).Once()
	applier.On("ConfirmFunding", mock.Anything, userID, mock.Anything, "pi_9").Return(tx, true, nil).Once()

	committed := run(t, newSliceReader(confirmation(models.FundingSucceeded, userID, "10", "pi_9")), applier)

	applier.AssertExpectations(t)
	applier.AssertNumberOfCalls(t, "ConfirmFunding", 2)
	assert.Equal(t, []int64{0}, committed)
}

func TestConsumer_PermanentFailureIsCommitted(t *testing.T) {
	userID := uuid.New()

	applier := new(mockApplier)
	applier.On("ConfirmFunding", mock.Anything, userID, mock.Anything, "pi_bad").Return(nil, false, pkgerrors.ErrInvalidAmount).Once()
	applier.On("ConfirmFunding", mock.Anything, userID, mock.Anything, "pi_dup").Return(nil, false, pkgerrors.ErrDuplicateExternalRef).Once()

	committed := run(t, newSliceReader(
		confirmation(models.FundingSucceeded, userID, "-5", "pi_bad"),
		confirmation(models.FundingSucceeded, userID, "10", "pi_dup"),
	), applier)

	applier.AssertExpectations(t)
	assert.Equal(t, []int64{0, 1}, committed)
}

func TestConsumer_StopsWhileRetrying(t *testing.T) {
	userID := uuid.New()
	applier := new(mockApplier)
	called := make(chan struct{}, 1)
	applier.On("ConfirmFunding", mock.Anything, userID, mock.Anything, "pi_down").
		Run(func(mock.Arguments) {
			select {
			case called <- struct{}{}:
			default:
			}
		}).
		Return(nil, false, errors.New("db down"))

	reader := newSliceReader(confirmation(models.FundingSucceeded, userID, "10", "pi_down"))
	c := NewConsumerWithReader(reader, applier)
	c.minDelay, c.maxDelay = time.Millisecond, time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Consume(ctx)
		close(done)
	}()

	<-called
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
	require.Empty(t, reader.committed)
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("connection refused")))
	assert.True(t, retryable(context.DeadlineExceeded))
	assert.False(t, retryable(pkgerrors.ErrValidation))
	assert.False(t, retryable(pkgerrors.ErrUserNotFound))
	assert.False(t, retryable(pkgerrors.ErrDuplicateExternalRef))
}
