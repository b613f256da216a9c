// Package locks serializes work per key inside one process. It backs single-node deployments where
// no Redis is configured.
package locks

import (
	"context"
	"sync"

	pkgerrors "github.com/honeynil/JobEscrowService/pkg/errors"
)

// slot is shared by everyone holding or waiting for one key. It is dropped once refs reaches zero.
type slot struct {
	ch   chan struct{}
	refs int
}

type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  bool
}

// NewKeyed returns a lock that fails fast with errors.ErrJobLocked when the key is taken. With wait
// set, Acquire blocks until the key frees up or ctx is done.
func NewKeyed(wait bool) *Keyed {
	return &Keyed{slots: make(map[string]*slot), wait: wait}
}

func (k *Keyed) ref(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *Keyed) unref(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	s := k.ref(key)
	if !k.wait {
		select {
		case s.ch <- struct{}{}:
		default:
			k.unref(key, s)
			return nil, pkgerrors.ErrJobLocked
		}
	} else {
		select {
		case s.ch <- struct{}{}:
		case <-ctx.Done():
			k.unref(key, s)
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.unref(key, s)
		})
	}, nil
}

// Len reports how many keys are currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
