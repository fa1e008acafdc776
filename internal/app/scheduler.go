// Package app holds process-level plumbing shared by the server binary:
// logging and background jobs.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/jinzhu/now"
	"go.uber.org/zap"
)

// Completer moves finished stays to completed.
type Completer interface {
	CompleteFinished(ctx context.Context, before time.Time) (int, error)
}

// Scheduler runs the booking completion job on a fixed interval.
type Scheduler struct {
	completer Completer
	interval  time.Duration
	logger    *zap.Logger
	clock     func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func NewScheduler(completer Completer, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		completer: completer,
		interval:  interval,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the job in the background; it runs once immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting background scheduler", zap.Duration("interval", s.interval))
	go s.run(ctx)
}

// Stop ends the job and waits for a run in progress to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping background scheduler")
		close(s.stopChan)
	})
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	s.completeStays(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.completeStays(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// cutoff is the start of the current UTC day: a stay whose check-out
// falls before it has ended.
func (s *Scheduler) cutoff() time.Time {
	return now.With(s.clock()).BeginningOfDay()
}

func (s *Scheduler) completeStays(ctx context.Context) {
	before := s.cutoff()
	n, err := s.completer.CompleteFinished(ctx, before)
	if err != nil {
		s.logger.Error("booking completion failed", zap.Error(err), zap.Int("completed", n))
		return
	}
	if n > 0 {
		s.logger.Info("bookings completed", zap.Int("count", n), zap.Time("before", before))
	}
}
