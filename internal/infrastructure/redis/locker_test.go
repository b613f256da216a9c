package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRedisClient struct {
	mock.Mock
}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, expiration)
	return args.Bool(0), args.Error(1)
}

func (m *mockRedisClient) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRedisClient) DelIfEqual(ctx context.Context, key, value string) (bool, error) {
	args := m.Called(ctx, key, value)
	return args.Bool(0), args.Error(1)
}

func (m *mockRedisClient) Close() error {
	return m.Called().Error(0)
}

func TestLocker_Acquire(t *testing.T) {
	ctx := context.Background()
	ttl := 5 * time.Second

	t.Run("acquire and release with the same token", func(t *testing.T) {
		client := new(mockRedisClient)
		var token string
		client.On("SetNX", ctx, "job:1:lock", mock.AnythingOfType("string"), ttl).
			Run(func(args mock.Arguments) { token = args.String(2) }).
			Return(true, nil).Once()

		release, err := NewLocker(client, ttl).Acquire(ctx, "job:1:lock")
		require.NoError(t, err)
		require.NotEmpty(t, token)

		client.On("DelIfEqual", mock.Anything, "job:1:lock", token).Return(true, nil).Once()
		release()
		client.AssertExpectations(t)
	})

	t.Run("held by someone else", func(t *testing.T) {
		client := new(mockRedisClient)
		client.On("SetNX", ctx, "job:1:lock", mock.Anything, ttl).Return(false, nil).Once()

		release, err := NewLocker(client, ttl).Acquire(ctx, "job:1:lock")
		assert.ErrorIs(t, err, pkgerrors.ErrJobLocked)
		assert.ErrorIs(t, err, pkgerrors.ErrConflict)
		assert.Nil(t, release)
	})

	t.Run("redis unavailable", func(t *testing.T) {
		client := new(mockRedisClient)
		client.On("SetNX", ctx, "job:1:lock", mock.Anything, ttl).Return(false, errors.New("connection refused")).Once()

		_, err := NewLocker(client, ttl).Acquire(ctx, "job:1:lock")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, pkgerrors.ErrConflict)
	})
}
