package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/playforge/gameflow/internal/domain/rule"
)

// batchBuffer is the subscriber channel capacity. A slow subscriber drops
// batches rather than stalling the loop.
const batchBuffer = 16

// Batch is one continuous-evaluation iteration's published results.
type Batch struct {
	// Results are the evaluation results of the iteration. Order across
	// rules is unspecified.
	Results []rule.Result
	// Iteration is the 1-based loop iteration counter.
	Iteration int64
	// Timestamp is when the iteration completed.
	Timestamp time.Time
}

// Scheduler runs the continuous evaluation loop: fetch a context from the
// caller-supplied provider, evaluate all enabled rules, publish the batch,
// sleep, repeat. At most one loop runs per engine; starting a new loop
// cancels the prior one. A faulting provider or rule never terminates the
// loop.
type Scheduler struct {
	rules   *RuleService
	metrics *Metrics
	logger  *slog.Logger

	// startMu serializes Start's stop-and-replace sequence so two
	// concurrent Start calls cannot leave an untracked loop running.
	startMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(rules *RuleService, metrics *Metrics, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		rules:   rules,
		metrics: metrics,
		logger:  logger,
	}
}

// Start launches the background loop and returns the stream of result
// batches. The channel is closed when the loop stops. Cancellation is
// cooperative: it takes effect at the next suspension point (provider
// fetch or interval sleep), never mid-rule.
func (s *Scheduler) Start(ctx context.Context, provider rule.ContextProvider, interval time.Duration) (<-chan Batch, error) {
	if provider == nil {
		return nil, errors.New("context provider is nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}

	// Only one continuous loop at a time.
	s.startMu.Lock()
	defer s.startMu.Unlock()
	s.Stop()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	out := make(chan Batch, batchBuffer)

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.running = true
	s.mu.Unlock()

	go s.loop(loopCtx, provider, interval, out, done)

	return out, nil
}

// loop is the continuous evaluation body.
func (s *Scheduler) loop(ctx context.Context, provider rule.ContextProvider, interval time.Duration, out chan<- Batch, done chan struct{}) {
	defer close(done)
	defer close(out)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var iteration int64

	s.logger.Info("continuous evaluation started", "interval", interval)

	for {
		rc, err := provider(ctx)
		switch {
		case ctx.Err() != nil:
			s.logger.Info("continuous evaluation stopped", "iterations", iteration)
			return
		case err != nil:
			// A bad iteration never terminates the loop.
			s.logger.Warn("context provider failed, skipping iteration", "error", err)
		default:
			iteration++
			results := s.rules.EvaluateAll(ctx, rc)
			s.metrics.SchedulerIterations.Inc()

			batch := Batch{
				Results:   results,
				Iteration: iteration,
				Timestamp: time.Now().UTC(),
			}
			select {
			case out <- batch:
			default:
				// Subscriber is slow; drop rather than stall the loop.
			}
		}

		select {
		case <-ctx.Done():
			s.logger.Info("continuous evaluation stopped", "iterations", iteration)
			return
		case <-time.After(interval):
		}
	}
}

// Stop cancels the loop and waits for it to exit. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsRunning reports whether the loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
