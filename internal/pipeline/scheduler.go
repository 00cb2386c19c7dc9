package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs a job on a fixed interval using time.Ticker. The first
// tick fires one interval after Start.
type Scheduler struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewScheduler creates a Scheduler that fires every interval.
func NewScheduler(interval time.Duration) *Scheduler {
	return &Scheduler{interval: interval}
}

// Start begins ticking in a background goroutine. Calling Start on a running
// scheduler or with a non-positive interval does nothing. Ticks that arrive
// while job is still running are dropped by the ticker.
func (s *Scheduler) Start(ctx context.Context, job func(context.Context, time.Time)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job == nil || s.interval <= 0 || s.stop != nil {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case t := <-ticker.C:
				job(ctx, t)
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()
	slog.Info("scheduler started", "interval", s.interval)
}

// Stop halts the ticker goroutine and waits for an in-flight job to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// RunJob adapts a Pipeline to a scheduler job. A tick that lands while a
// manually triggered run is executing is skipped.
func RunJob(p *Pipeline) func(context.Context, time.Time) {
	return func(ctx context.Context, t time.Time) {
		slog.Info("scheduled run triggered", "at", t)
		if _, err := p.Run(ctx, Options{}); err != nil {
			if errors.Is(err, ErrRunInProgress) {
				slog.Info("skipping scheduled run, another run is in progress")
				return
			}
			slog.Error("scheduled run failed", "error", err)
		}
	}
}
