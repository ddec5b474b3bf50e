// Package lock provides short-lived mutual exclusion keyed by string, either
// inside one process or across processes through Redis.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when the key is held by another owner.
var ErrNotAcquired = errors.New("lock: not acquired")

// ReleaseFunc releases a held lock. It is safe to call more than once.
type ReleaseFunc func(ctx context.Context) error

// Locker acquires exclusive leases that expire after ttl.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

type lease struct {
	token   uint64
	expires time.Time
}

// LocalLocker is an in-process Locker for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]lease
	next uint64
	now  func() time.Time
}

// NewLocalLocker returns a LocalLocker. A nil now uses the wall clock.
func NewLocalLocker(now func() time.Time) *LocalLocker {
	if now == nil {
		now = time.Now
	}
	return &LocalLocker{held: make(map[string]lease), now: now}
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, ErrNotAcquired
	}
	l.next++
	token := l.next
	l.held[key] = lease{token: token, expires: now.Add(ttl)}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.held[key]; ok && cur.token == token {
				delete(l.held, key)
			}
		})
		return nil
	}, nil
}
