package service

import (
	"sync"
	"time"

	"github.com/playforge/gameflow/internal/domain/workflow"
)

// WorkflowStats aggregates execution outcomes across one engine instance.
// The average duration is derived from the running total on every read so
// it never drifts from the counters.
type WorkflowStats struct {
	mu            sync.Mutex
	started       int64
	completed     int64
	failed        int64
	cancelled     int64
	totalDuration time.Duration
}

// NewWorkflowStats creates zeroed workflow statistics.
func NewWorkflowStats() *WorkflowStats {
	return &WorkflowStats{}
}

// RecordStarted counts one started execution.
func (s *WorkflowStats) RecordStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started++
}

// RecordCompleted counts one completed execution and its duration.
func (s *WorkflowStats) RecordCompleted(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	s.totalDuration += d
}

// RecordFailed counts one failed execution and its duration.
func (s *WorkflowStats) RecordFailed(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
	s.totalDuration += d
}

// RecordCancelled counts one cancelled execution and its duration.
func (s *WorkflowStats) RecordCancelled(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled++
	s.totalDuration += d
}

// Snapshot returns the current aggregate.
func (s *WorkflowStats) Snapshot() workflow.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := s.completed + s.failed + s.cancelled
	var avg time.Duration
	if finished > 0 {
		avg = s.totalDuration / time.Duration(finished)
	}
	return workflow.Stats{
		Started:         s.started,
		Completed:       s.completed,
		Failed:          s.failed,
		Cancelled:       s.cancelled,
		AverageDuration: avg,
	}
}

// Reset zeroes every counter.
func (s *WorkflowStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started, s.completed, s.failed, s.cancelled = 0, 0, 0, 0
	s.totalDuration = 0
}
