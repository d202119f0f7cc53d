package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/playforge/gameflow/internal/domain/rule"
	"github.com/playforge/gameflow/internal/domain/workflow"
)

func newTestExecutor(t *testing.T, opts ...WorkflowExecutorOption) (*WorkflowExecutor, *RuleService, *ActionService, *WorkflowStats) {
	t.Helper()
	rules := newTestRuleService(t)
	actions := NewActionService(NopMetrics(), testLogger())
	stats := NewWorkflowStats()
	opts = append([]WorkflowExecutorOption{WithPollInterval(5 * time.Millisecond)}, opts...)
	x := NewWorkflowExecutor(rules, actions, stats, NopMetrics(), testLogger(), opts...)
	return x, rules, actions, stats
}

// waitStatus polls the execution until it reaches want or the deadline
// expires.
func waitStatus(t *testing.T, x *WorkflowExecutor, e *execution, want workflow.Status) workflow.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := x.Snapshot(e)
		if snap.Status == want {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	snap := x.Snapshot(e)
	t.Fatalf("status = %s, want %s (state %s, error %q)", snap.Status, want, snap.CurrentState, snap.Error)
	return snap
}

// actionRecorder collects dispatched action names in order.
type actionRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *actionRecorder) Handle(ctx context.Context, a rule.Action, rc *rule.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, a.Name)
	return nil
}

func (r *actionRecorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func TestWorkflowExecutor_UnconditionalChainCompletesInStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, _, _, stats := newTestExecutor(t)

	def := &workflow.Definition{
		ID:   "onboarding",
		Name: "Onboarding",
		States: []workflow.State{
			{ID: "welcome", Type: workflow.StateInitial},
			{ID: "profile", Type: workflow.StateNormal},
			{ID: "tutorial", Type: workflow.StateNormal},
			{ID: "done", Type: workflow.StateTerminal},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "welcome", To: "profile", Condition: workflow.Always()},
			{ID: "t2", From: "profile", To: "tutorial", Condition: workflow.Always()},
			{ID: "t3", From: "tutorial", To: "done", Condition: workflow.Always()},
		},
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	e, err := x.Start(context.Background(), def, nil, "", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Unconditional chains run to completion before Start returns.
	snap := x.Snapshot(e)
	if snap.Status != workflow.StatusCompleted {
		t.Errorf("status = %s right after Start, want completed", snap.Status)
	}
	if snap.CurrentState != "done" {
		t.Errorf("CurrentState = %s, want done", snap.CurrentState)
	}
	if snap.Progress != 1.0 {
		t.Errorf("Progress = %v, want 1.0", snap.Progress)
	}

	ws := stats.Snapshot()
	if ws.Started != 1 || ws.Completed != 1 {
		t.Errorf("stats = %+v, want started 1 completed 1", ws)
	}
}

func TestWorkflowExecutor_EntryAndExitActionOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, _, actions, _ := newTestExecutor(t)

	rec := &actionRecorder{}
	actions.RegisterHandler(rule.ActionNotification, rec)

	def := &workflow.Definition{
		ID:   "greeting",
		Name: "Greeting",
		States: []workflow.State{
			{ID: "start", Type: workflow.StateInitial,
				EntryActions: []rule.Action{{Kind: rule.ActionNotification, Name: "enter-start"}},
				ExitActions:  []rule.Action{{Kind: rule.ActionNotification, Name: "exit-start"}}},
			{ID: "end", Type: workflow.StateTerminal,
				EntryActions: []rule.Action{{Kind: rule.ActionNotification, Name: "enter-end"}}},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "start", To: "end", Condition: workflow.Always()},
		},
	}

	e, err := x.Start(context.Background(), def, nil, "", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitStatus(t, x, e, workflow.StatusCompleted)

	want := []string{"enter-start", "exit-start", "enter-end"}
	got := rec.Names()
	if len(got) != len(want) {
		t.Fatalf("dispatched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestWorkflowExecutor_EventTransition(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, _, _, _ := newTestExecutor(t)

	def := &workflow.Definition{
		ID:   "purchase",
		Name: "Purchase",
		States: []workflow.State{
			{ID: "waiting", Type: workflow.StateInitial},
			{ID: "done", Type: workflow.StateTerminal},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "waiting", To: "done", Condition: workflow.OnEvent("payment_confirmed")},
		},
	}

	e, err := x.Start(context.Background(), def, nil, "", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if snap := x.Snapshot(e); snap.Status != workflow.StatusRunning {
		t.Fatalf("status = %s before event, want running", snap.Status)
	}

	// An event with a different name never fires the transition.
	if err := x.SendEvent(e, "payment_failed", nil); err != nil {
		t.Fatalf("SendEvent() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if snap := x.Snapshot(e); snap.Status != workflow.StatusRunning {
		t.Fatalf("status = %s after unrelated event, want running", snap.Status)
	}

	if err := x.SendEvent(e, "payment_confirmed", map[string]any{"amount": 499}); err != nil {
		t.Fatalf("SendEvent() error = %v", err)
	}

	snap := waitStatus(t, x, e, workflow.StatusCompleted)
	if snap.Variables["event.amount"] != 499 {
		t.Errorf("event payload not merged: %+v", snap.Variables)
	}
}

func TestWorkflowExecutor_RuleCondition(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, rules, _, _ := newTestExecutor(t)

	_ = rules.Register(funcRule("level-up", func(ctx context.Context, rc *rule.Context) (bool, error) {
		level, ok := rc.Variables["level"].(int)
		return ok && level >= 10, nil
	}))

	def := &workflow.Definition{
		ID:   "promotion",
		Name: "Promotion",
		States: []workflow.State{
			{ID: "playing", Type: workflow.StateInitial},
			{ID: "promoted", Type: workflow.StateTerminal},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "playing", To: "promoted", Condition: workflow.WhenRule("level-up")},
		},
	}

	e, err := x.Start(context.Background(), def, map[string]any{"level": 3}, "player-1", "s-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if snap := x.Snapshot(e); snap.Status != workflow.StatusRunning {
		t.Fatalf("status = %s at level 3, want running", snap.Status)
	}

	if err := x.UpdateVariables(e, map[string]any{"level": 12}); err != nil {
		t.Fatalf("UpdateVariables() error = %v", err)
	}

	waitStatus(t, x, e, workflow.StatusCompleted)
}

func TestWorkflowExecutor_TransitionPriority(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, _, _, _ := newTestExecutor(t)

	def := &workflow.Definition{
		ID:   "routing",
		Name: "Routing",
		States: []workflow.State{
			{ID: "start", Type: workflow.StateInitial},
			{ID: "low", Type: workflow.StateTerminal},
			{ID: "high", Type: workflow.StateTerminal},
		},
		Transitions: []workflow.Transition{
			{ID: "t-low", From: "start", To: "low", Priority: 1, Condition: workflow.Always()},
			{ID: "t-high", From: "start", To: "high", Priority: 10, Condition: workflow.Always()},
		},
	}

	e, err := x.Start(context.Background(), def, nil, "", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	snap := waitStatus(t, x, e, workflow.StatusCompleted)
	if snap.CurrentState != "high" {
		t.Errorf("CurrentState = %s, want high (higher priority wins)", snap.CurrentState)
	}
}

func TestWorkflowExecutor_PauseAndResume(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, _, _, _ := newTestExecutor(t)

	def := &workflow.Definition{
		ID:   "pausable",
		Name: "Pausable",
		States: []workflow.State{
			{ID: "waiting", Type: workflow.StateInitial},
			{ID: "done", Type: workflow.StateTerminal},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "waiting", To: "done", Condition: workflow.OnEvent("go")},
		},
	}

	e, err := x.Start(context.Background(), def, nil, "", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := x.Pause(e); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := x.Resume(e); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	// Resume without a pause is rejected.
	if err := x.Resume(e); !errors.Is(err, workflow.ErrNotPaused) {
		t.Errorf("Resume() of running execution error = %v, want ErrNotPaused", err)
	}

	// A paused execution holds its state even when an event is queued.
	if err := x.Pause(e); err != nil {
		t.Fatalf("second Pause() error = %v", err)
	}
	if err := x.SendEvent(e, "go", nil); err != nil {
		t.Fatalf("SendEvent() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if snap := x.Snapshot(e); snap.Status != workflow.StatusPaused {
		t.Fatalf("status = %s while paused, want paused", snap.Status)
	}

	// Resuming picks the queued event up.
	if err := x.Resume(e); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	waitStatus(t, x, e, workflow.StatusCompleted)
}

func TestWorkflowExecutor_CancelStopsProcessing(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, _, _, stats := newTestExecutor(t)

	def := &workflow.Definition{
		ID:   "cancellable",
		Name: "Cancellable",
		States: []workflow.State{
			{ID: "waiting", Type: workflow.StateInitial},
			{ID: "done", Type: workflow.StateTerminal},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "waiting", To: "done", Condition: workflow.OnEvent("go")},
		},
	}

	e, err := x.Start(context.Background(), def, nil, "", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := x.Cancel(e); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if snap := x.Snapshot(e); snap.Status != workflow.StatusCancelled {
		t.Errorf("status = %s, want cancelled", snap.Status)
	}

	// All mutations of a finished execution are rejected.
	if err := x.SendEvent(e, "go", nil); !errors.Is(err, workflow.ErrExecutionFinished) {
		t.Errorf("SendEvent() after cancel error = %v, want ErrExecutionFinished", err)
	}
	if err := x.Pause(e); !errors.Is(err, workflow.ErrExecutionFinished) {
		t.Errorf("Pause() after cancel error = %v, want ErrExecutionFinished", err)
	}
	if err := x.Cancel(e); !errors.Is(err, workflow.ErrExecutionFinished) {
		t.Errorf("second Cancel() error = %v, want ErrExecutionFinished", err)
	}
	if err := x.UpdateVariables(e, map[string]any{"k": 1}); !errors.Is(err, workflow.ErrExecutionFinished) {
		t.Errorf("UpdateVariables() after cancel error = %v, want ErrExecutionFinished", err)
	}

	if ws := stats.Snapshot(); ws.Cancelled != 1 {
		t.Errorf("Cancelled = %d, want 1", ws.Cancelled)
	}

	// The advance loop exits after cancellation.
	select {
	case <-e.done:
	case <-time.After(time.Second):
		t.Fatal("advance loop did not exit after cancel")
	}
}

func TestWorkflowExecutor_TimeoutWithoutTargetFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, _, _, stats := newTestExecutor(t)

	def := &workflow.Definition{
		ID:   "impatient",
		Name: "Impatient",
		States: []workflow.State{
			{ID: "waiting", Type: workflow.StateInitial, Timeout: 20 * time.Millisecond},
			{ID: "done", Type: workflow.StateTerminal},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "waiting", To: "done", Condition: workflow.OnEvent("never")},
		},
	}

	e, err := x.Start(context.Background(), def, nil, "", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	snap := waitStatus(t, x, e, workflow.StatusFailed)
	if snap.Error == "" {
		t.Error("failed execution should carry an error")
	}
	if ws := stats.Snapshot(); ws.Failed != 1 {
		t.Errorf("Failed = %d, want 1", ws.Failed)
	}
}

func TestWorkflowExecutor_TimeoutTargetForcesTransition(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, _, _, _ := newTestExecutor(t)

	def := &workflow.Definition{
		ID:   "fallback",
		Name: "Fallback",
		States: []workflow.State{
			{ID: "waiting", Type: workflow.StateInitial, Timeout: 20 * time.Millisecond, TimeoutTarget: "expired"},
			{ID: "expired", Type: workflow.StateTerminal},
			{ID: "done", Type: workflow.StateTerminal},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "waiting", To: "done", Condition: workflow.OnEvent("never")},
		},
	}

	e, err := x.Start(context.Background(), def, nil, "", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	snap := waitStatus(t, x, e, workflow.StatusCompleted)
	if snap.CurrentState != "expired" {
		t.Errorf("CurrentState = %s, want expired", snap.CurrentState)
	}
}

func TestWorkflowExecutor_TimeBasedCondition(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, _, _, _ := newTestExecutor(t)

	def := &workflow.Definition{
		ID:   "delayed",
		Name: "Delayed",
		States: []workflow.State{
			{ID: "cooling", Type: workflow.StateInitial},
			{ID: "ready", Type: workflow.StateTerminal},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "cooling", To: "ready", Condition: workflow.AfterDelay(30 * time.Millisecond)},
		},
	}

	e, err := x.Start(context.Background(), def, nil, "", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if snap := x.Snapshot(e); snap.Status != workflow.StatusRunning {
		t.Fatalf("status = %s before delay elapsed, want running", snap.Status)
	}

	waitStatus(t, x, e, workflow.StatusCompleted)
}

func TestWorkflowExecutor_ErrorStateFailsExecution(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, _, _, stats := newTestExecutor(t)

	def := &workflow.Definition{
		ID:   "doomed",
		Name: "Doomed",
		States: []workflow.State{
			{ID: "start", Type: workflow.StateInitial},
			{ID: "broken", Type: workflow.StateError},
			{ID: "done", Type: workflow.StateTerminal},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "start", To: "broken", Condition: workflow.Always()},
		},
	}

	e, err := x.Start(context.Background(), def, nil, "", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	snap := waitStatus(t, x, e, workflow.StatusFailed)
	if snap.CurrentState != "broken" {
		t.Errorf("CurrentState = %s, want broken", snap.CurrentState)
	}
	if ws := stats.Snapshot(); ws.Failed != 1 {
		t.Errorf("Failed = %d, want 1", ws.Failed)
	}
}

func TestWorkflowExecutor_EventFIFOWithinExecution(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, _, _, _ := newTestExecutor(t)

	def := &workflow.Definition{
		ID:   "two-step",
		Name: "Two Step",
		States: []workflow.State{
			{ID: "first", Type: workflow.StateInitial},
			{ID: "second", Type: workflow.StateNormal},
			{ID: "done", Type: workflow.StateTerminal},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "first", To: "second", Condition: workflow.OnEvent("step")},
			{ID: "t2", From: "second", To: "done", Condition: workflow.OnEvent("step")},
		},
	}

	e, err := x.Start(context.Background(), def, nil, "", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Two queued events of the same name drive two transitions, oldest
	// first.
	if err := x.SendEvent(e, "step", map[string]any{"n": 1}); err != nil {
		t.Fatalf("SendEvent() error = %v", err)
	}
	if err := x.SendEvent(e, "step", map[string]any{"n": 2}); err != nil {
		t.Fatalf("SendEvent() error = %v", err)
	}

	snap := waitStatus(t, x, e, workflow.StatusCompleted)
	if snap.Variables["event.n"] != 2 {
		t.Errorf("event.n = %v, want 2 (second event consumed last)", snap.Variables["event.n"])
	}
}

func TestWorkflowExecutor_InitialVariablesAreCopied(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, _, _, _ := newTestExecutor(t)

	def := &workflow.Definition{
		ID:   "isolated",
		Name: "Isolated",
		States: []workflow.State{
			{ID: "start", Type: workflow.StateInitial},
			{ID: "done", Type: workflow.StateTerminal},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "start", To: "done", Condition: workflow.Always()},
		},
	}

	vars := map[string]any{"k": "original"}
	e, err := x.Start(context.Background(), def, vars, "", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	vars["k"] = "mutated"

	snap := x.Snapshot(e)
	if snap.Variables["k"] != "original" {
		t.Errorf("Variables[k] = %v, caller mutation leaked in", snap.Variables["k"])
	}
}

func TestWorkflowExecutor_TransitionCycleFailsInsteadOfSpinning(t *testing.T) {
	defer goleak.VerifyNone(t)

	x, _, _, stats := newTestExecutor(t)

	// Structurally valid: the terminal state exists but is unreachable, and
	// the two always-satisfied transitions form a cycle.
	def := &workflow.Definition{
		ID:   "ping-pong",
		Name: "Ping Pong",
		States: []workflow.State{
			{ID: "ping", Type: workflow.StateInitial},
			{ID: "pong", Type: workflow.StateNormal},
			{ID: "done", Type: workflow.StateTerminal},
		},
		Transitions: []workflow.Transition{
			{ID: "t1", From: "ping", To: "pong", Condition: workflow.Always()},
			{ID: "t2", From: "pong", To: "ping", Condition: workflow.Always()},
		},
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	e, err := x.Start(context.Background(), def, nil, "", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	snap := x.Snapshot(e)
	if snap.Status != workflow.StatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
	if !strings.Contains(snap.Error, "transition limit exceeded") {
		t.Errorf("Error = %q, want transition limit exceeded", snap.Error)
	}

	ws := stats.Snapshot()
	if ws.Started != 1 || ws.Failed != 1 {
		t.Errorf("stats = %+v, want started 1 failed 1", ws)
	}
}
