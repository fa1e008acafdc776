// Package lock provides short-lived, per-key leases used to serialise the
// "check availability, then write" step for a single property.  Leases are
// held only around local store calls, never around payment gateway I/O.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when a lease could not be obtained before the
// caller's context or the locker's wait budget ran out.
var ErrNotAcquired = errors.New("lease not acquired")

// Lease is a held lock.  Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive leases by key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// PropertyKey is the lease key guarding a property's booking set.
func PropertyKey(propertyID string) string {
	return "lease:property:" + propertyID
}

// LocalLocker serialises holders inside a single process.  It is the
// fallback when no Redis server is configured and is only correct for a
// single running instance.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker returns an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

// Acquire blocks until the key is free or ctx is done.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localLock{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return &localLease{owner: l, key: key, entry: e}, nil
	case <-ctx.Done():
		l.drop(key, e)
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}
}

func (l *LocalLocker) drop(key string, e *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

type localLease struct {
	owner *LocalLocker
	key   string
	entry *localLock
	once  sync.Once
}

func (s *localLease) Release(context.Context) error {
	s.once.Do(func() {
		<-s.entry.ch
		s.owner.drop(s.key, s.entry)
	})
	return nil
}
