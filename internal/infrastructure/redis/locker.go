package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
)

// Locker hands out short-lived exclusive locks shared by every service instance.
type Locker struct {
	client RedisClient
	ttl    time.Duration
}

func NewLocker(client RedisClient, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Acquire fails with errors.ErrJobLocked when someone else holds key. The returned release only
// deletes the key while it still carries this holder's token.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		slog.Error("failed to acquire lock", "lock_key", key, "error", err)
		return nil, err
	}
	if !ok {
		slog.Warn("lock is held", "lock_key", key)
		return nil, pkgerrors.ErrJobLocked
	}

	return func() {
		// the request context may already be cancelled
		released, err := l.client.DelIfEqual(context.Background(), key, token)
		if err != nil {
			slog.Error("failed to release lock", "lock_key", key, "error", err)
			return
		}
		if !released {
			slog.Warn("lock expired before release", "lock_key", key, "ttl", l.ttl)
		}
	}, nil
}
