package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/playforge/gameflow/internal/domain/rule"
)

// ActionOutcome is the per-action result of a dispatch.
type ActionOutcome struct {
	// Action is the dispatched action.
	Action rule.Action
	// OK is true when the handler ran without error.
	OK bool
	// Error explains a failed or unhandled action.
	Error string
}

// ActionService dispatches the actions attached to satisfied rule results
// to capability-typed handlers registered by the surrounding application.
// Action failures are isolated: a failing or unknown action marks that
// action failed without raising, aborting the batch, or touching engine
// state.
type ActionService struct {
	mu       sync.RWMutex
	handlers map[rule.ActionKind]rule.Handler
	metrics  *Metrics
	logger   *slog.Logger
}

// NewActionService creates an ActionService with no handlers registered.
func NewActionService(metrics *Metrics, logger *slog.Logger) *ActionService {
	return &ActionService{
		handlers: make(map[rule.ActionKind]rule.Handler),
		metrics:  metrics,
		logger:   logger,
	}
}

// RegisterHandler installs the handler for one action kind, replacing any
// previous handler for that kind.
func (s *ActionService) RegisterHandler(kind rule.ActionKind, h rule.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

// handler returns the registered handler for a kind.
func (s *ActionService) handler(kind rule.ActionKind) (rule.Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[kind]
	return h, ok
}

// Execute dispatches every action on the result. The return is true only
// if every action succeeded; use ExecuteDetailed for per-action outcomes.
func (s *ActionService) Execute(ctx context.Context, result rule.Result, rc *rule.Context) bool {
	outcomes := s.ExecuteDetailed(ctx, result, rc)
	for _, o := range outcomes {
		if !o.OK {
			return false
		}
	}
	return true
}

// ExecuteDetailed dispatches every action on the result and returns one
// outcome per action, in action order. Actions of an unknown kind, or of a
// kind with no registered handler, fail that action without raising.
func (s *ActionService) ExecuteDetailed(ctx context.Context, result rule.Result, rc *rule.Context) []ActionOutcome {
	if !result.Allowed {
		return nil
	}

	outcomes := make([]ActionOutcome, 0, len(result.Actions))
	for _, a := range result.Actions {
		outcomes = append(outcomes, s.dispatch(ctx, a, rc))
	}
	return outcomes
}

// ExecuteBatch dispatches the actions of every result. Aggregate-success
// semantics across the whole batch.
func (s *ActionService) ExecuteBatch(ctx context.Context, results []rule.Result, rc *rule.Context) bool {
	ok := true
	for _, res := range results {
		if !s.Execute(ctx, res, rc) {
			ok = false
		}
	}
	return ok
}

// dispatch runs one action through its capability handler with panic
// recovery.
func (s *ActionService) dispatch(ctx context.Context, a rule.Action, rc *rule.Context) (outcome ActionOutcome) {
	outcome = ActionOutcome{Action: a}

	switch a.Kind {
	case rule.ActionGameplay, rule.ActionNotification, rule.ActionReward:
	default:
		outcome.Error = fmt.Sprintf("unknown action kind %q", a.Kind)
		s.metrics.ActionsTotal.WithLabelValues(string(a.Kind), "unhandled").Inc()
		return outcome
	}

	h, ok := s.handler(a.Kind)
	if !ok {
		outcome.Error = fmt.Sprintf("no handler registered for action kind %q", a.Kind)
		s.metrics.ActionsTotal.WithLabelValues(string(a.Kind), "unhandled").Inc()
		return outcome
	}

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("action handler panicked", "action", a.Name, "kind", a.Kind, "panic", rec)
			outcome.OK = false
			outcome.Error = fmt.Sprintf("action handler panicked: %v", rec)
			s.metrics.ActionsTotal.WithLabelValues(string(a.Kind), "failed").Inc()
		}
	}()

	if err := h.Handle(ctx, a, rc); err != nil {
		s.logger.Warn("action failed", "action", a.Name, "kind", a.Kind, "error", err)
		outcome.Error = err.Error()
		s.metrics.ActionsTotal.WithLabelValues(string(a.Kind), "failed").Inc()
		return outcome
	}

	outcome.OK = true
	s.metrics.ActionsTotal.WithLabelValues(string(a.Kind), "ok").Inc()
	return outcome
}
