package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLocalLockerIsExclusivePerKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var (
		inside  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := l.Acquire(ctx, PropertyKey("p1"))
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			_ = lease.Release(ctx)
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected at most one holder at a time, saw %d", maxSeen)
	}
	if len(l.locks) != 0 {
		t.Fatalf("expected lock table to be empty after release, got %d entries", len(l.locks))
	}
}

func TestLocalLockerKeysAreIndependent(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	a, err := l.Acquire(ctx, PropertyKey("p1"))
	if err != nil {
		t.Fatalf("acquire p1: %v", err)
	}
	defer a.Release(ctx)

	tctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	b, err := l.Acquire(tctx, PropertyKey("p2"))
	if err != nil {
		t.Fatalf("acquire p2 while p1 is held: %v", err)
	}
	_ = b.Release(ctx)
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()
	held, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(tctx, "k"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("expected ErrNotAcquired, got %v", err)
	}

	// double release must not block or panic
	_ = held.Release(ctx)
	_ = held.Release(ctx)

	again, err := l.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	_ = again.Release(ctx)
}
