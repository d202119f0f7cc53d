package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	celeval "github.com/playforge/gameflow/internal/adapter/outbound/cel"
	"github.com/playforge/gameflow/internal/adapter/outbound/memory"
	"github.com/playforge/gameflow/internal/domain/rule"
	"github.com/playforge/gameflow/internal/domain/workflow"
	"github.com/playforge/gameflow/pkg/ruledef"
)

// Engine is the composition root of the rule and workflow engines. It is
// an explicit instance owned by the application's composition root and
// passed by injection; there is no process-wide singleton, so tests can
// run many isolated engines.
type Engine struct {
	logger      *slog.Logger
	evaluator   *celeval.Evaluator
	rules       *RuleService
	actions     *ActionService
	scheduler   *Scheduler
	executor    *WorkflowExecutor
	definitions *memory.DefinitionStore
	wfStats     *WorkflowStats
	exporter    *ExportService
	metrics     *Metrics

	// mu is the coarse registration/export lock shared by rule and
	// workflow registration, so a bulk export never observes a
	// half-updated registry. Per-execution state is never behind it.
	mu         sync.Mutex
	executions map[string]*execution

	baseCtx    context.Context
	baseCancel context.CancelFunc
	closed     atomic.Bool
}

// EngineOption configures an Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	registry     prometheus.Registerer
	tracer       trace.Tracer
	cacheSize    int
	pollInterval time.Duration
	snapshots    SnapshotStore
}

// WithMetricsRegistry registers the engine metrics with reg instead of a
// throwaway registry.
func WithMetricsRegistry(reg prometheus.Registerer) EngineOption {
	return func(c *engineConfig) { c.registry = reg }
}

// WithEngineTracer spans rule evaluations and workflow transitions with t.
func WithEngineTracer(t trace.Tracer) EngineOption {
	return func(c *engineConfig) { c.tracer = t }
}

// WithEvaluationCacheSize bounds the expression result cache.
func WithEvaluationCacheSize(n int) EngineOption {
	return func(c *engineConfig) { c.cacheSize = n }
}

// WithExecutionPollInterval sets how often executions re-check transitions.
func WithExecutionPollInterval(d time.Duration) EngineOption {
	return func(c *engineConfig) { c.pollInterval = d }
}

// WithSnapshotStore persists rule export snapshots to the given store.
func WithSnapshotStore(s SnapshotStore) EngineOption {
	return func(c *engineConfig) { c.snapshots = s }
}

// NewEngine builds a ready engine with empty registries.
func NewEngine(logger *slog.Logger, opts ...EngineOption) (*Engine, error) {
	cfg := engineConfig{
		registry:  prometheus.NewRegistry(),
		cacheSize: 1000,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	evaluator, err := celeval.NewEvaluator()
	if err != nil {
		return nil, err
	}

	metrics := NewMetrics(cfg.registry)
	stats := NewStatsService()
	registry := memory.NewRuleRegistry()

	ruleOpts := []RuleServiceOption{WithCacheSize(cfg.cacheSize)}
	execOpts := []WorkflowExecutorOption{}
	if cfg.tracer != nil {
		ruleOpts = append(ruleOpts, WithTracer(cfg.tracer))
		execOpts = append(execOpts, WithExecutorTracer(cfg.tracer))
	}
	if cfg.pollInterval > 0 {
		execOpts = append(execOpts, WithPollInterval(cfg.pollInterval))
	}

	rules := NewRuleService(registry, stats, metrics, logger, ruleOpts...)
	actions := NewActionService(metrics, logger)
	wfStats := NewWorkflowStats()

	baseCtx, baseCancel := context.WithCancel(context.Background())

	e := &Engine{
		logger:      logger,
		evaluator:   evaluator,
		rules:       rules,
		actions:     actions,
		scheduler:   NewScheduler(rules, metrics, logger),
		executor:    NewWorkflowExecutor(rules, actions, wfStats, metrics, logger, execOpts...),
		definitions: memory.NewDefinitionStore(),
		wfStats:     wfStats,
		exporter:    NewExportService(rules, evaluator, cfg.snapshots, logger),
		metrics:     metrics,
		executions:  make(map[string]*execution),
		baseCtx:     baseCtx,
		baseCancel:  baseCancel,
	}

	logger.Info("engine initialized", "cache_size", cfg.cacheSize)
	return e, nil
}

// Rules returns the rule evaluation surface.
func (e *Engine) Rules() *RuleService { return e.rules }

// Actions returns the action dispatch surface.
func (e *Engine) Actions() *ActionService { return e.actions }

// Evaluator returns the shared CEL evaluator, for constructing expression
// rules bound to this engine.
func (e *Engine) Evaluator() *celeval.Evaluator { return e.evaluator }

// RegisterRule registers a rule under the coarse registration lock.
func (e *Engine) RegisterRule(r rule.Rule) error {
	if e.closed.Load() {
		return rule.ErrEngineClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules.Register(r)
}

// RegisterExprRule compiles a CEL condition, wraps it in an expression
// rule, and registers it.
func (e *Engine) RegisterExprRule(info rule.Info, expression string, actions []rule.Action) error {
	if e.closed.Load() {
		return rule.ErrEngineClosed
	}
	r, err := celeval.NewExprRule(e.evaluator, info, expression, actions)
	if err != nil {
		return err
	}
	return e.RegisterRule(r)
}

// UnregisterRule removes a rule and its statistics.
func (e *Engine) UnregisterRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules.Unregister(id)
}

// EvaluateRule evaluates one rule against the context.
func (e *Engine) EvaluateRule(ctx context.Context, id string, rc *rule.Context) rule.Result {
	return e.rules.Evaluate(ctx, id, rc)
}

// StartContinuousEvaluation starts the background evaluation loop.
func (e *Engine) StartContinuousEvaluation(provider rule.ContextProvider, interval time.Duration) (<-chan Batch, error) {
	if e.closed.Load() {
		return nil, rule.ErrEngineClosed
	}
	return e.scheduler.Start(e.baseCtx, provider, interval)
}

// StopContinuousEvaluation stops the background loop. Idempotent.
func (e *Engine) StopContinuousEvaluation() {
	e.scheduler.Stop()
}

// ContinuousEvaluationRunning reports whether the loop is active.
func (e *Engine) ContinuousEvaluationRunning() bool {
	return e.scheduler.IsRunning()
}

// ExportRules exports registered rule metadata as a snapshot, under the
// coarse registration lock so the export never observes a half-updated
// registry.
func (e *Engine) ExportRules() *ruledef.ExportSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exporter.Export()
}

// ImportRules reconstructs rules from a snapshot. Expression rules are
// fully rebuilt; func rules are metadata-only and reported skipped.
func (e *Engine) ImportRules(snapshot *ruledef.ExportSnapshot) ImportReport {
	if e.closed.Load() {
		return ImportReport{Errors: []string{rule.ErrEngineClosed.Error()}}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exporter.Import(snapshot)
}

// RegisterWorkflow validates and registers a workflow definition.
func (e *Engine) RegisterWorkflow(def *workflow.Definition) error {
	if e.closed.Load() {
		return rule.ErrEngineClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.definitions.Register(def)
}

// UnregisterWorkflow removes a definition. Running executions of it are
// unaffected; they hold their own reference.
func (e *Engine) UnregisterWorkflow(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.definitions.Unregister(id)
}

// Workflow returns a registered definition.
func (e *Engine) Workflow(id string) (*workflow.Definition, bool) {
	return e.definitions.Get(id)
}

// StartWorkflow starts an execution of a registered workflow and returns
// its execution id. The execution advances through unconditional
// transitions before this call returns.
func (e *Engine) StartWorkflow(ctx context.Context, workflowID string, vars map[string]any) (string, error) {
	return e.StartWorkflowAs(ctx, workflowID, vars, "", "")
}

// StartWorkflowAs is StartWorkflow with explicit user and session ids,
// which flow into rule contexts for rule-based transitions.
func (e *Engine) StartWorkflowAs(ctx context.Context, workflowID string, vars map[string]any, userID, sessionID string) (string, error) {
	if e.closed.Load() {
		return "", rule.ErrEngineClosed
	}

	def, ok := e.definitions.Get(workflowID)
	if !ok {
		return "", workflow.ErrWorkflowNotFound
	}

	// The advance loop is bound to the engine lifetime, not the caller's
	// request context.
	exec, err := e.executor.Start(e.baseCtx, def, vars, userID, sessionID)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	e.executions[exec.id] = exec
	e.mu.Unlock()

	return exec.id, nil
}

// execution looks up a tracked execution by id.
func (e *Engine) execution(id string) (*execution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec, ok := e.executions[id]
	return exec, ok
}

// PauseExecution suspends transition checks for one execution.
func (e *Engine) PauseExecution(id string) error {
	exec, ok := e.execution(id)
	if !ok {
		return workflow.ErrExecutionNotFound
	}
	return e.executor.Pause(exec)
}

// ResumeExecution re-enters the evaluation loop from the current state.
func (e *Engine) ResumeExecution(id string) error {
	exec, ok := e.execution(id)
	if !ok {
		return workflow.ErrExecutionNotFound
	}
	return e.executor.Resume(exec)
}

// CancelExecution marks the execution cancelled and stops further
// processing. Dispatched actions are not rolled back.
func (e *Engine) CancelExecution(id string) error {
	exec, ok := e.execution(id)
	if !ok {
		return workflow.ErrExecutionNotFound
	}
	return e.executor.Cancel(exec)
}

// SendEvent enqueues a named event for an execution's next transition
// check. Events to finished executions are dropped with an error.
func (e *Engine) SendEvent(id, name string, payload map[string]any) error {
	exec, ok := e.execution(id)
	if !ok {
		return workflow.ErrExecutionNotFound
	}
	return e.executor.SendEvent(exec, name, payload)
}

// UpdateVariables merges variables into an execution context.
func (e *Engine) UpdateVariables(id string, vars map[string]any) error {
	exec, ok := e.execution(id)
	if !ok {
		return workflow.ErrExecutionNotFound
	}
	return e.executor.UpdateVariables(exec, vars)
}

// ExecutionStatus returns a point-in-time view of one execution.
func (e *Engine) ExecutionStatus(id string) (workflow.Snapshot, bool) {
	exec, ok := e.execution(id)
	if !ok {
		return workflow.Snapshot{}, false
	}
	return e.executor.Snapshot(exec), true
}

// WorkflowStatistics returns execution counters and the average duration
// of finished executions.
func (e *Engine) WorkflowStatistics() workflow.Stats {
	return e.wfStats.Snapshot()
}

// Shutdown cancels all running executions and the continuous evaluation
// loop, then clears all registries. Idempotent: the second call finds the
// engine already in its terminal state and returns without effect.
func (e *Engine) Shutdown() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}

	e.logger.Info("engine shutting down")

	e.scheduler.Stop()
	e.rules.Close()

	e.mu.Lock()
	execs := make([]*execution, 0, len(e.executions))
	for _, exec := range e.executions {
		execs = append(execs, exec)
	}
	e.mu.Unlock()

	for _, exec := range execs {
		// Already-finished executions reject the cancel; that is fine.
		_ = e.executor.Cancel(exec)
		<-exec.done
	}

	e.baseCancel()

	e.mu.Lock()
	e.executions = make(map[string]*execution)
	e.mu.Unlock()

	e.definitions.Close()
	e.definitions.Clear()
	e.rules.Clear()

	e.logger.Info("engine shut down")
}
