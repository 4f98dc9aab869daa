// Package scheduler drives the collector on a fixed interval. The first
// cycle runs synchronously so /metrics has data as soon as the listener is
// up; after that, a ticker fires cycles in the background. A tick that
// arrives while a cycle is still running is skipped — two cycles never run
// concurrently.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs a cycle function on a fixed interval with overlap-skip.
type Scheduler struct {
	interval time.Duration
	cycle    func(context.Context)
	logger   *zap.Logger

	// running is the unit of mutual exclusion for cycles. TryLock failing
	// on a tick means a cycle is in flight and the tick is dropped.
	running sync.Mutex
}

// New creates a scheduler for the given cycle function.
func New(interval time.Duration, cycle func(context.Context), logger *zap.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		cycle:    cycle,
		logger:   logger,
	}
}

// Start runs one cycle immediately, then ticks until the context is
// cancelled. It blocks; run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.RunNow(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Detached so a slow cycle delays ticks instead of blocking the
			// select; the lock guarantees only one cycle runs.
			go s.RunNow(ctx)
		}
	}
}

// RunNow runs a cycle unless one is already in flight, in which case it is
// a no-op. Returns whether a cycle ran.
func (s *Scheduler) RunNow(ctx context.Context) bool {
	if !s.running.TryLock() {
		s.logger.Warn("Previous scrape cycle still running, skipping tick")
		return false
	}
	defer s.running.Unlock()

	s.cycle(ctx)
	return true
}
