package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeCompleter struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (f *fakeCompleter) CompleteFinished(_ context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return 1, nil
}

func (f *fakeCompleter) calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.cutoffs...)
}

func TestSchedulerCutoffIsStartOfDay(t *testing.T) {
	fc := &fakeCompleter{}
	s := NewScheduler(fc, time.Hour, zap.NewNop())
	s.clock = func() time.Time { return time.Date(2024, 3, 15, 17, 42, 5, 0, time.UTC) }

	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	if got := s.cutoff(); !got.Equal(want) {
		t.Fatalf("cutoff = %s, want %s", got, want)
	}
}

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	fc := &fakeCompleter{}
	s := NewScheduler(fc, 10*time.Millisecond, zap.NewNop())
	s.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for len(fc.calls()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	n := len(fc.calls())
	if n < 2 {
		t.Fatalf("expected at least 2 runs, got %d", n)
	}
	time.Sleep(30 * time.Millisecond)
	if len(fc.calls()) != n {
		t.Fatal("scheduler kept running after Stop")
	}
}
