package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/playforge/gameflow/internal/adapter/outbound/memory"
	"github.com/playforge/gameflow/internal/domain/rule"
)

// RuleService evaluates registered rules against caller-supplied contexts.
// Domain failures (closed engine, unknown id, disabled rule, faulting rule
// body) are converted into failure results and never surface as errors or
// panics to the caller.
type RuleService struct {
	registry *memory.RuleRegistry
	stats    *StatsService
	metrics  *Metrics
	cache    *ResultCache
	tracer   trace.Tracer
	logger   *slog.Logger
	closed   atomic.Bool
}

// RuleServiceOption configures RuleService.
type RuleServiceOption func(*RuleService)

// WithCacheSize sets the maximum number of cached expression rule results.
func WithCacheSize(size int) RuleServiceOption {
	return func(s *RuleService) {
		s.cache = NewResultCache(size)
	}
}

// WithTracer sets the tracer used to span rule evaluations.
func WithTracer(t trace.Tracer) RuleServiceOption {
	return func(s *RuleService) {
		s.tracer = t
	}
}

// NewRuleService creates a RuleService over the given registry.
func NewRuleService(registry *memory.RuleRegistry, stats *StatsService, metrics *Metrics, logger *slog.Logger, opts ...RuleServiceOption) *RuleService {
	s := &RuleService{
		registry: registry,
		stats:    stats,
		metrics:  metrics,
		cache:    NewResultCache(1000), // default 1000 entries
		tracer:   noop.NewTracerProvider().Tracer("gameflow"),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register validates and registers a rule, initializing its statistics to
// zero. Duplicate ids are rejected.
func (s *RuleService) Register(r rule.Rule) error {
	if s.closed.Load() {
		return rule.ErrEngineClosed
	}
	if err := s.registry.Register(r); err != nil {
		return err
	}
	s.stats.InitZero(r.ID())
	s.metrics.RegisteredRules.Set(float64(s.registry.Count()))
	s.cache.Clear()
	return nil
}

// Unregister removes a rule and its statistics. Returns false if absent.
func (s *RuleService) Unregister(id string) bool {
	if !s.registry.Unregister(id) {
		return false
	}
	s.stats.Remove(id)
	s.metrics.RegisteredRules.Set(float64(s.registry.Count()))
	s.cache.Clear()
	return true
}

// SetEnabled toggles evaluation of a rule. Returns false if the id is
// absent. The flag is a real gate: a disabled rule produces failure
// results until re-enabled.
func (s *RuleService) SetEnabled(id string, enabled bool) bool {
	ok := s.registry.SetEnabled(id, enabled)
	if ok {
		s.cache.Clear()
	}
	return ok
}

// IsEnabled reports whether a rule exists and is enabled.
func (s *RuleService) IsEnabled(id string) bool {
	return s.registry.IsEnabled(id)
}

// Get returns the rule with the given id.
func (s *RuleService) Get(id string) (rule.Rule, bool) {
	return s.registry.Get(id)
}

// All returns every registered rule in registration order.
func (s *RuleService) All() []rule.Rule {
	return s.registry.All()
}

// ByCategory returns the rules registered under the given category.
func (s *RuleService) ByCategory(category string) []rule.Rule {
	return s.registry.ByCategory(category)
}

// ByTags returns the rules carrying any of the given tags.
func (s *RuleService) ByTags(tags []string) []rule.Rule {
	return s.registry.ByTags(tags)
}

// ValidateAll re-runs every registered rule's structural self-check and
// returns the failures keyed by rule id.
func (s *RuleService) ValidateAll() map[string]error {
	out := make(map[string]error)
	for _, r := range s.registry.All() {
		if err := r.Validate(); err != nil {
			out[r.ID()] = err
		}
	}
	return out
}

// Statistics returns the aggregate for one rule id.
func (s *RuleService) Statistics(id string) (rule.Statistics, bool) {
	return s.stats.Get(id)
}

// GlobalStatistics returns the aggregate across all rules.
func (s *RuleService) GlobalStatistics() rule.Statistics {
	return s.stats.Global()
}

// ClearStatistics resets every aggregate to zero.
func (s *RuleService) ClearStatistics() {
	s.stats.Clear()
}

// Evaluate evaluates one rule against the context. It never returns an
// error: a closed engine, unknown id, or disabled rule each produce a
// failure result naming the cause, and a faulting rule body is recovered
// into a failure result carrying the fault message. Successful and faulted
// evaluations are recorded in the statistics; pre-flight rejections
// (closed, unknown, disabled) are not, since the rule body never ran.
func (s *RuleService) Evaluate(ctx context.Context, id string, rc *rule.Context) rule.Result {
	if s.closed.Load() {
		return rule.Failure(id, rule.ErrEngineClosed.Error())
	}

	r, ok := s.registry.Get(id)
	if !ok {
		return rule.Failure(id, fmt.Sprintf("%s: %s", rule.ErrRuleNotFound.Error(), id))
	}
	if !s.registry.IsEnabled(id) {
		return rule.Failure(id, fmt.Sprintf("%s: %s", rule.ErrRuleDisabled.Error(), id))
	}

	return s.evaluateRule(ctx, r, rc)
}

// EvaluateMany evaluates each id independently and returns the results.
// Unknown ids are silently skipped; this is an intentional asymmetry with
// Evaluate, kept for compatibility with callers that pass speculative id
// lists. One rule's fault never aborts the batch.
func (s *RuleService) EvaluateMany(ctx context.Context, ids []string, rc *rule.Context) []rule.Result {
	results := make([]rule.Result, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.registry.Get(id); !ok {
			continue
		}
		results = append(results, s.Evaluate(ctx, id, rc))
	}
	return results
}

// EvaluateAll evaluates every enabled rule concurrently. Result order is
// unspecified and in particular does not follow registration order.
func (s *RuleService) EvaluateAll(ctx context.Context, rc *rule.Context) []rule.Result {
	return s.evaluateSet(ctx, s.registry.All(), rc)
}

// EvaluateByCategory evaluates every enabled rule in the category
// concurrently, with the same per-rule isolation as EvaluateAll.
func (s *RuleService) EvaluateByCategory(ctx context.Context, category string, rc *rule.Context) []rule.Result {
	return s.evaluateSet(ctx, s.registry.ByCategory(category), rc)
}

// evaluateSet fans the rules out across goroutines, skipping disabled
// ones. A fault in one rule is isolated to that rule's result.
func (s *RuleService) evaluateSet(ctx context.Context, rules []rule.Rule, rc *rule.Context) []rule.Result {
	if s.closed.Load() {
		return nil
	}

	enabled := rules[:0:0]
	for _, r := range rules {
		if s.registry.IsEnabled(r.ID()) {
			enabled = append(enabled, r)
		}
	}
	if len(enabled) == 0 {
		return nil
	}

	results := make([]rule.Result, len(enabled))
	var wg sync.WaitGroup
	wg.Add(len(enabled))
	for i, r := range enabled {
		go func(i int, r rule.Rule) {
			defer wg.Done()
			results[i] = s.evaluateRule(ctx, r, rc)
		}(i, r)
	}
	wg.Wait()
	return results
}

// timeSensitiveRule is implemented by rules whose outcome depends on the
// context timestamp. Their results bypass the cache, since the cache key
// deliberately excludes the timestamp.
type timeSensitiveRule interface {
	TimeSensitive() bool
}

// evaluateRule runs one rule body with timing, panic recovery, caching,
// and statistics recording.
func (s *RuleService) evaluateRule(ctx context.Context, r rule.Rule, rc *rule.Context) (result rule.Result) {
	id := r.ID()

	cacheable := r.Kind() == rule.KindExpr
	if ts, ok := r.(timeSensitiveRule); ok && ts.TimeSensitive() {
		cacheable = false
	}
	var key uint64
	if cacheable {
		key = computeCacheKey(id, r.Info().Version, rc)
		if cached, ok := s.cache.Get(key); ok {
			cached.Timestamp = time.Now().UTC()
			cached.ExecutionTime = 0
			return cached
		}
	}

	ctx, span := s.tracer.Start(ctx, "rule.evaluate",
		trace.WithAttributes(
			attribute.String("rule.id", id),
			attribute.String("rule.kind", string(r.Kind())),
		))
	defer span.End()

	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			elapsed := time.Since(start)
			s.logger.Error("rule evaluation panicked", "rule", id, "panic", rec)
			result = rule.Failure(id, fmt.Sprintf("rule panicked: %v", rec))
			result.ExecutionTime = elapsed
			s.record(r, result, true)
		}
	}()

	res, err := r.Evaluate(ctx, rc)
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Warn("rule evaluation failed", "rule", id, "error", err)
		result = rule.Failure(id, err.Error())
		result.RuleKind = r.Kind()
		result.ExecutionTime = elapsed
		s.record(r, result, true)
		return result
	}

	res.ExecutionTime = elapsed
	s.record(r, res, false)

	if cacheable {
		s.cache.Put(key, res)
	}
	return res
}

// record folds one completed evaluation into statistics and metrics.
// faulted distinguishes an evaluation that raised an internal fault from a
// condition that evaluated cleanly to false.
func (s *RuleService) record(r rule.Rule, res rule.Result, faulted bool) {
	s.stats.Record(r.ID(), res.Allowed, res.ExecutionTime)

	outcome := "denied"
	switch {
	case res.Allowed:
		outcome = "allowed"
	case faulted:
		outcome = "failed"
	}
	s.metrics.EvaluationsTotal.WithLabelValues(outcome).Inc()
	s.metrics.EvaluationDuration.WithLabelValues(r.Info().Category).Observe(res.ExecutionTime.Seconds())
}

// Close marks the service shut down. Evaluations after Close return
// failure results; registrations are rejected.
func (s *RuleService) Close() {
	s.closed.Store(true)
	s.registry.Close()
}

// Clear drops every rule, aggregate, and cached result. Called on engine
// shutdown after Close.
func (s *RuleService) Clear() {
	s.registry.Clear()
	s.stats.Clear()
	s.cache.Clear()
}
