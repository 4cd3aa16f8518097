package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// keyLocks serializes engine writes per key within this process; keys
// are work order ids for mutations and thread ids for creates. A lock
// is held for one read-apply-write cycle; waiting is bounded, so a
// caller that cannot get the lock in time is told the key is busy
// instead of queueing indefinitely. Entries are never removed: the key
// space is the set of live keys, which stays small.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]chan struct{})}
}

func (k *keyLocks) acquire(ctx context.Context, key string, wait time.Duration) error {
	ch := k.lockChan(key)
	select {
	case ch <- struct{}{}:
		return nil
	default:
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrBusy, key)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *keyLocks) release(key string) {
	k.mu.Lock()
	ch := k.locks[key]
	k.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	default:
	}
}

func (k *keyLocks) lockChan(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	return ch
}
