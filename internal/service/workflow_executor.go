package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/playforge/gameflow/internal/domain/rule"
	"github.com/playforge/gameflow/internal/domain/workflow"
)

// defaultPollInterval is how often an execution re-checks its transitions
// when no event nudge arrives. Timeout expiry and time-based conditions
// are detected at these checks; there is no separate timer goroutine.
const defaultPollInterval = 50 * time.Millisecond

// execution is one running workflow instance. It has exactly one logical
// writer: all mutations go through its executor, serialized by mu (a
// per-execution lock, never a global one).
type execution struct {
	id  string
	def *workflow.Definition

	mu        sync.Mutex
	status    workflow.Status
	current   workflow.State
	variables map[string]any
	events    []workflow.Event // FIFO
	errMsg    string
	visited   map[string]struct{}
	startedAt time.Time
	updatedAt time.Time
	enteredAt time.Time // current state entry, for timeouts and time conditions
	userID    string
	sessionID string

	nudge  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// snapshotLocked builds a caller-safe view. Must be called with e.mu held.
func (e *execution) snapshotLocked() workflow.Snapshot {
	vars := make(map[string]any, len(e.variables))
	for k, v := range e.variables {
		vars[k] = v
	}
	progress := 0.0
	if len(e.def.States) > 0 {
		progress = float64(len(e.visited)) / float64(len(e.def.States))
	}
	return workflow.Snapshot{
		ExecutionID:  e.id,
		WorkflowID:   e.def.ID,
		Status:       e.status,
		CurrentState: e.current.ID,
		Error:        e.errMsg,
		Progress:     progress,
		Variables:    vars,
		StartedAt:    e.startedAt,
		UpdatedAt:    e.updatedAt,
	}
}

// ruleContextLocked builds the rule context embedded in the execution for
// rule-based transition conditions. Must be called with e.mu held.
func (e *execution) ruleContextLocked() *rule.Context {
	vars := make(map[string]any, len(e.variables))
	for k, v := range e.variables {
		vars[k] = v
	}
	return &rule.Context{
		Variables: vars,
		UserID:    e.userID,
		SessionID: e.sessionID,
		Timestamp: time.Now().UTC(),
	}
}

// WorkflowExecutor drives workflow executions through their state
// machines: it evaluates transition conditions, applies timeouts,
// dispatches entry and exit actions, and handles external events.
type WorkflowExecutor struct {
	rules        *RuleService
	actions      *ActionService
	stats        *WorkflowStats
	metrics      *Metrics
	tracer       trace.Tracer
	logger       *slog.Logger
	pollInterval time.Duration
}

// WorkflowExecutorOption configures WorkflowExecutor.
type WorkflowExecutorOption func(*WorkflowExecutor)

// WithPollInterval sets how often executions re-check transitions.
func WithPollInterval(d time.Duration) WorkflowExecutorOption {
	return func(x *WorkflowExecutor) {
		if d > 0 {
			x.pollInterval = d
		}
	}
}

// WithExecutorTracer sets the tracer used to span state transitions.
func WithExecutorTracer(t trace.Tracer) WorkflowExecutorOption {
	return func(x *WorkflowExecutor) {
		x.tracer = t
	}
}

// NewWorkflowExecutor creates a WorkflowExecutor.
func NewWorkflowExecutor(rules *RuleService, actions *ActionService, stats *WorkflowStats, metrics *Metrics, logger *slog.Logger, opts ...WorkflowExecutorOption) *WorkflowExecutor {
	x := &WorkflowExecutor{
		rules:        rules,
		actions:      actions,
		stats:        stats,
		metrics:      metrics,
		tracer:       noop.NewTracerProvider().Tracer("gameflow"),
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Start creates an execution at the definition's initial state, runs the
// initial state's entry actions, and evaluates outgoing transitions once
// before returning. Chains of unconditional transitions therefore complete
// within this call. If the execution is still live afterwards, a
// background advance loop keeps checking transitions until a terminal
// status or engine shutdown.
func (x *WorkflowExecutor) Start(ctx context.Context, def *workflow.Definition, vars map[string]any, userID, sessionID string) (*execution, error) {
	initial, ok := def.Initial()
	if !ok {
		return nil, fmt.Errorf("%w: %s has no initial state", workflow.ErrInvalidDefinition, def.ID)
	}

	if vars == nil {
		vars = make(map[string]any)
	} else {
		copied := make(map[string]any, len(vars))
		for k, v := range vars {
			copied[k] = v
		}
		vars = copied
	}

	now := time.Now().UTC()
	e := &execution{
		id:        uuid.NewString(),
		def:       def,
		status:    workflow.StatusRunning,
		current:   initial,
		variables: vars,
		visited:   map[string]struct{}{initial.ID: {}},
		startedAt: now,
		updatedAt: now,
		enteredAt: now,
		userID:    userID,
		sessionID: sessionID,
		nudge:     make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	x.stats.RecordStarted()
	x.metrics.ActiveExecutions.Inc()

	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.mu.Lock()
	x.runActionsLocked(loopCtx, e, initial.EntryActions)
	x.advanceLocked(loopCtx, e)
	live := !e.status.Terminal()
	e.mu.Unlock()

	if live {
		go x.advanceLoop(loopCtx, e)
	} else {
		cancel()
		close(e.done)
	}

	return e, nil
}

// advanceLoop polls for satisfiable transitions until the execution
// reaches a terminal status or the context is cancelled. SendEvent nudges
// the loop so event-based transitions fire without waiting a full poll.
func (x *WorkflowExecutor) advanceLoop(ctx context.Context, e *execution) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.nudge:
		case <-time.After(x.pollInterval):
		}

		e.mu.Lock()
		if e.status == workflow.StatusRunning {
			x.advanceLocked(ctx, e)
		}
		terminal := e.status.Terminal()
		e.mu.Unlock()

		if terminal {
			return
		}
	}
}

// advanceLocked repeatedly fires the best satisfied transition from the
// current state until none fires. Must be called with e.mu held; entry and
// exit actions therefore run atomically with respect to other operations
// on the same execution.
//
// One pass can legitimately take at most one transition per state on an
// acyclic path plus one per queued event. A pass exceeding that budget is
// an always-satisfiable transition cycle, which would otherwise spin
// forever holding e.mu; the execution is failed instead.
func (x *WorkflowExecutor) advanceLocked(ctx context.Context, e *execution) {
	budget := len(e.def.States) + len(e.events)
	taken := 0
	for e.status == workflow.StatusRunning {
		if taken > budget {
			x.failLocked(e, fmt.Sprintf("transition limit exceeded: %d transitions in one pass, last state %s", taken, e.current.ID))
			return
		}
		next, cond, fired := x.pickTransitionLocked(ctx, e)
		if !fired {
			if !x.checkTimeoutLocked(ctx, e) {
				return
			}
			taken++
			continue
		}
		x.enterStateLocked(ctx, e, next, string(cond))
		taken++
	}
}

// pickTransitionLocked evaluates the outgoing transitions of the current
// state in priority order (higher first, declaration order breaking ties)
// and returns the target of the first satisfied one.
func (x *WorkflowExecutor) pickTransitionLocked(ctx context.Context, e *execution) (workflow.State, workflow.ConditionKind, bool) {
	candidates := e.def.TransitionsFrom(e.current.ID)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority > candidates[j].Priority
	})

	for _, t := range candidates {
		if !x.conditionSatisfiedLocked(ctx, e, t.Condition) {
			continue
		}
		target, ok := e.def.StateByID(t.To)
		if !ok {
			// Unreachable after definition validation.
			continue
		}
		return target, t.Condition.Kind, true
	}
	return workflow.State{}, "", false
}

// conditionSatisfiedLocked decides whether one transition condition holds.
// Unknown condition kinds never fire.
func (x *WorkflowExecutor) conditionSatisfiedLocked(ctx context.Context, e *execution, c workflow.Condition) bool {
	switch c.Kind {
	case workflow.CondAlways:
		return true
	case workflow.CondRule:
		res := x.rules.Evaluate(ctx, c.RuleID, e.ruleContextLocked())
		return res.Allowed
	case workflow.CondTime:
		return time.Since(e.enteredAt) >= c.Delay
	case workflow.CondEvent:
		return x.consumeEventLocked(e, c.Event)
	default:
		return false
	}
}

// consumeEventLocked removes the oldest queued event with the given name
// and merges its payload into the execution variables. Events are consumed
// on check, not peeked; FIFO order is preserved among events of the same
// execution.
func (x *WorkflowExecutor) consumeEventLocked(e *execution, name string) bool {
	for i, ev := range e.events {
		if ev.Name != name {
			continue
		}
		e.events = append(e.events[:i], e.events[i+1:]...)
		for k, v := range ev.Payload {
			e.variables["event."+k] = v
		}
		return true
	}
	return false
}

// checkTimeoutLocked handles state timeout expiry when no transition is
// satisfied. Returns true if a forced transition was taken.
func (x *WorkflowExecutor) checkTimeoutLocked(ctx context.Context, e *execution) bool {
	if e.current.Timeout <= 0 || time.Since(e.enteredAt) < e.current.Timeout {
		return false
	}

	if e.current.TimeoutTarget == "" {
		x.failLocked(e, fmt.Sprintf("state %s timed out after %s with no timeout target", e.current.ID, e.current.Timeout))
		return false
	}

	target, ok := e.def.StateByID(e.current.TimeoutTarget)
	if !ok {
		x.failLocked(e, fmt.Sprintf("state %s timeout target %s not found", e.current.ID, e.current.TimeoutTarget))
		return false
	}

	x.logger.Info("workflow state timed out",
		"execution", e.id, "state", e.current.ID, "target", target.ID)
	x.enterStateLocked(ctx, e, target, "timeout")
	return true
}

// enterStateLocked moves the execution into a new state: exit actions of
// the old state, then entry actions of the new one, then terminal-status
// bookkeeping.
func (x *WorkflowExecutor) enterStateLocked(ctx context.Context, e *execution, next workflow.State, via string) {
	_, span := x.tracer.Start(ctx, "workflow.transition",
		trace.WithAttributes(
			attribute.String("workflow.id", e.def.ID),
			attribute.String("execution.id", e.id),
			attribute.String("from", e.current.ID),
			attribute.String("to", next.ID),
		))
	defer span.End()

	x.runActionsLocked(ctx, e, e.current.ExitActions)

	e.current = next
	e.visited[next.ID] = struct{}{}
	e.enteredAt = time.Now().UTC()
	e.updatedAt = e.enteredAt
	x.metrics.TransitionsTotal.WithLabelValues(via).Inc()

	x.runActionsLocked(ctx, e, next.EntryActions)

	switch next.Type {
	case workflow.StateTerminal:
		e.status = workflow.StatusCompleted
		x.finishLocked(e)
	case workflow.StateError:
		x.failLocked(e, fmt.Sprintf("entered error state %s", next.ID))
	}
}

// runActionsLocked dispatches state entry or exit actions. Action failures
// are logged and isolated; they never fail the execution.
func (x *WorkflowExecutor) runActionsLocked(ctx context.Context, e *execution, actions []rule.Action) {
	if len(actions) == 0 {
		return
	}
	synthetic := rule.Result{Allowed: true, Actions: actions, Timestamp: time.Now().UTC()}
	if !x.actions.Execute(ctx, synthetic, e.ruleContextLocked()) {
		x.logger.Warn("workflow state action failed", "execution", e.id, "state", e.current.ID)
	}
}

// failLocked marks the execution failed with a reason.
func (x *WorkflowExecutor) failLocked(e *execution, reason string) {
	e.status = workflow.StatusFailed
	e.errMsg = reason
	e.updatedAt = time.Now().UTC()
	x.logger.Warn("workflow execution failed", "execution", e.id, "workflow", e.def.ID, "reason", reason)
	x.finishLocked(e)
}

// finishLocked records terminal bookkeeping. Must be called once, with
// e.mu held, when the execution reaches a terminal status.
func (x *WorkflowExecutor) finishLocked(e *execution) {
	duration := time.Since(e.startedAt)
	switch e.status {
	case workflow.StatusCompleted:
		x.stats.RecordCompleted(duration)
	case workflow.StatusFailed:
		x.stats.RecordFailed(duration)
	case workflow.StatusCancelled:
		x.stats.RecordCancelled(duration)
	}
	x.metrics.ActiveExecutions.Dec()
	if e.cancel != nil {
		e.cancel()
	}
}

// Pause suspends transition checks without destroying the execution
// context.
func (x *WorkflowExecutor) Pause(e *execution) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Terminal() {
		return workflow.ErrExecutionFinished
	}
	e.status = workflow.StatusPaused
	e.updatedAt = time.Now().UTC()
	return nil
}

// Resume re-enters the evaluation loop from the current state.
func (x *WorkflowExecutor) Resume(e *execution) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Terminal() {
		return workflow.ErrExecutionFinished
	}
	if e.status != workflow.StatusPaused {
		return workflow.ErrNotPaused
	}
	e.status = workflow.StatusRunning
	e.updatedAt = time.Now().UTC()
	x.nudgeLocked(e)
	return nil
}

// Cancel immediately marks the execution cancelled and stops all further
// processing. Already-dispatched entry and exit actions are not rolled
// back; there is no compensation model.
func (x *WorkflowExecutor) Cancel(e *execution) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Terminal() {
		return workflow.ErrExecutionFinished
	}
	e.status = workflow.StatusCancelled
	e.updatedAt = time.Now().UTC()
	x.finishLocked(e)
	return nil
}

// SendEvent enqueues an event for the next transition check and nudges the
// advance loop. Events sent to a finished execution are dropped.
func (x *WorkflowExecutor) SendEvent(e *execution, name string, payload map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Terminal() {
		return workflow.ErrExecutionFinished
	}
	e.events = append(e.events, workflow.Event{
		Name:    name,
		Payload: payload,
		At:      time.Now().UTC(),
	})
	x.nudgeLocked(e)
	return nil
}

// UpdateVariables merges variables into the execution context.
func (x *WorkflowExecutor) UpdateVariables(e *execution, vars map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status.Terminal() {
		return workflow.ErrExecutionFinished
	}
	for k, v := range vars {
		e.variables[k] = v
	}
	e.updatedAt = time.Now().UTC()
	x.nudgeLocked(e)
	return nil
}

// Snapshot returns a point-in-time view of the execution.
func (x *WorkflowExecutor) Snapshot(e *execution) workflow.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// nudgeLocked wakes the advance loop without blocking.
func (x *WorkflowExecutor) nudgeLocked(e *execution) {
	select {
	case e.nudge <- struct{}{}:
	default:
	}
}
