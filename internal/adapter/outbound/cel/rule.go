package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/playforge/gameflow/internal/domain/rule"
)

// ExprRule is a rule whose condition is a CEL expression, compiled once at
// construction and evaluated many times. It is the primary rule variant:
// its condition is serializable, so export/import can reconstruct it fully.
type ExprRule struct {
	info          rule.Info
	expression    string
	program       cel.Program
	actions       []rule.Action
	evaluator     *Evaluator
	timeSensitive bool
}

// NewExprRule compiles the expression and returns the rule. Compilation
// errors surface here, at construction, so a malformed rule never reaches
// the registry.
func NewExprRule(ev *Evaluator, info rule.Info, expression string, actions []rule.Action) (*ExprRule, error) {
	if err := ev.ValidateExpression(expression); err != nil {
		return nil, fmt.Errorf("rule %s: %w", info.ID, err)
	}
	prg, timeSensitive, err := ev.CompileCondition(expression)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", info.ID, err)
	}
	return &ExprRule{
		info:          info,
		expression:    expression,
		program:       prg,
		actions:       actions,
		evaluator:     ev,
		timeSensitive: timeSensitive,
	}, nil
}

// ID returns the unique rule identifier.
func (r *ExprRule) ID() string { return r.info.ID }

// Info returns the rule's descriptive metadata.
func (r *ExprRule) Info() rule.Info { return r.info }

// Kind returns rule.KindExpr.
func (r *ExprRule) Kind() rule.Kind { return rule.KindExpr }

// Expression returns the CEL source of the condition.
func (r *ExprRule) Expression() string { return r.expression }

// TimeSensitive reports whether the condition reads the evaluation
// timestamp. Time-sensitive results are valid only for the context they
// were computed against and must not be served from a cache.
func (r *ExprRule) TimeSensitive() bool { return r.timeSensitive }

// Actions returns the actions attached to this rule.
func (r *ExprRule) Actions() []rule.Action {
	out := make([]rule.Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// Validate checks the structural integrity of the rule definition.
func (r *ExprRule) Validate() error {
	if r.info.ID == "" {
		return fmt.Errorf("%w: empty id", rule.ErrInvalidRule)
	}
	if r.info.Name == "" {
		return fmt.Errorf("%w: rule %s has no name", rule.ErrInvalidRule, r.info.ID)
	}
	if r.program == nil {
		return fmt.Errorf("%w: rule %s has no compiled program", rule.ErrInvalidRule, r.info.ID)
	}
	for i, a := range r.actions {
		if a.Name == "" {
			return fmt.Errorf("%w: rule %s action %d has no name", rule.ErrInvalidRule, r.info.ID, i)
		}
	}
	return nil
}

// Evaluate runs the compiled condition against the context.
func (r *ExprRule) Evaluate(ctx context.Context, rc *rule.Context) (rule.Result, error) {
	ok, err := r.evaluator.Evaluate(ctx, r.program, rc)
	if err != nil {
		return rule.Result{}, err
	}
	if !ok {
		return rule.Deny(r.info.ID, rule.KindExpr, "condition not satisfied", 0), nil
	}
	return rule.Allow(r.info.ID, rule.KindExpr, r.actions, 0), nil
}

// Compile-time interface verification.
var _ rule.Rule = (*ExprRule)(nil)
