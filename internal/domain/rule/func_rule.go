package rule

import (
	"context"
	"fmt"
)

// Predicate is the condition of a FuncRule.
type Predicate func(ctx context.Context, rc *Context) (bool, error)

// FuncRule is a rule whose condition is a native Go predicate. It is the
// capability seam for domain-specific rules the expression language cannot
// express (inventory lookups, A/B cohort checks).
type FuncRule struct {
	info      Info
	predicate Predicate
	actions   []Action
}

// NewFuncRule creates a FuncRule with the given metadata, predicate, and
// attached actions.
func NewFuncRule(info Info, predicate Predicate, actions []Action) *FuncRule {
	return &FuncRule{
		info:      info,
		predicate: predicate,
		actions:   actions,
	}
}

// ID returns the unique rule identifier.
func (r *FuncRule) ID() string { return r.info.ID }

// Info returns the rule's descriptive metadata.
func (r *FuncRule) Info() Info { return r.info }

// Kind returns KindFunc.
func (r *FuncRule) Kind() Kind { return KindFunc }

// Validate checks the structural integrity of the rule definition.
func (r *FuncRule) Validate() error {
	if r.info.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	if r.info.Name == "" {
		return fmt.Errorf("%w: rule %s has no name", ErrInvalidRule, r.info.ID)
	}
	if r.predicate == nil {
		return fmt.Errorf("%w: rule %s has no predicate", ErrInvalidRule, r.info.ID)
	}
	for i, a := range r.actions {
		if a.Name == "" {
			return fmt.Errorf("%w: rule %s action %d has no name", ErrInvalidRule, r.info.ID, i)
		}
	}
	return nil
}

// Evaluate runs the predicate against the context. The execution time on
// the returned result is filled in by the evaluation service.
func (r *FuncRule) Evaluate(ctx context.Context, rc *Context) (Result, error) {
	ok, err := r.predicate(ctx, rc)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Deny(r.info.ID, KindFunc, "condition not satisfied", 0), nil
	}
	return Allow(r.info.ID, KindFunc, r.actions, 0), nil
}

// Actions returns the actions attached to this rule.
func (r *FuncRule) Actions() []Action {
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// Compile-time interface verification.
var _ Rule = (*FuncRule)(nil)
