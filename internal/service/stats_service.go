// Package service contains the application services of the engine.
package service

import (
	"sync"
	"time"

	"github.com/playforge/gameflow/internal/domain/rule"
)

// StatsService aggregates evaluation statistics per rule id and globally.
// Each update builds a new Statistics value and replaces the stored one in
// a single step under the mutex, so a reader never observes an aggregate
// where total != success + failed.
type StatsService struct {
	mu      sync.Mutex
	perRule map[string]rule.Statistics
	global  rule.Statistics
}

// NewStatsService creates a StatsService with all aggregates zeroed.
func NewStatsService() *StatsService {
	return &StatsService{
		perRule: make(map[string]rule.Statistics),
	}
}

// InitZero initializes a zeroed aggregate for a newly registered rule.
func (s *StatsService) InitZero(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.perRule[id]; !ok {
		s.perRule[id] = rule.Statistics{}
	}
}

// Record folds one evaluation outcome into the rule's aggregate and the
// global aggregate.
func (s *StatsService) Record(id string, success bool, d time.Duration) {
	at := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.perRule[id] = s.perRule[id].Record(success, d, at)
	s.global = s.global.Record(success, d, at)
}

// Get returns the aggregate for one rule id.
func (s *StatsService) Get(id string) (rule.Statistics, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.perRule[id]
	return st, ok
}

// Global returns the aggregate across all rules.
func (s *StatsService) Global() rule.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.global
}

// Snapshot returns a copy of every per-rule aggregate.
func (s *StatsService) Snapshot() map[string]rule.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]rule.Statistics, len(s.perRule))
	for id, st := range s.perRule {
		out[id] = st
	}
	return out
}

// Remove drops the aggregate for an unregistered rule.
func (s *StatsService) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.perRule, id)
}

// Clear resets every aggregate to zero.
func (s *StatsService) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.perRule = make(map[string]rule.Statistics)
	s.global = rule.Statistics{}
}
