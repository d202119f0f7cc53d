package rule

import "time"

// Result is the immutable outcome of one rule evaluation.
// It is either a success shape (Allowed with zero or more actions) or a
// failure shape (denied with a reason and no actions).
type Result struct {
	// RuleID identifies the rule that produced this result.
	RuleID string
	// RuleKind is the implementation variant of the rule.
	RuleKind Kind
	// Allowed is true when the rule's condition was satisfied.
	Allowed bool
	// Actions are the actions attached to a satisfied rule.
	Actions []Action
	// ExecutionTime is the wall time the evaluation took.
	ExecutionTime time.Duration
	// Timestamp is when the evaluation completed.
	Timestamp time.Time
	// Errors lists evaluation faults; non-empty only for failure results.
	Errors []string
}

// Allow builds a success result carrying the rule's actions.
func Allow(id string, kind Kind, actions []Action, d time.Duration) Result {
	return Result{
		RuleID:        id,
		RuleKind:      kind,
		Allowed:       true,
		Actions:       actions,
		ExecutionTime: d,
		Timestamp:     time.Now().UTC(),
	}
}

// Deny builds a not-allowed result with no actions. The reason explains
// why the condition was not satisfied.
func Deny(id string, kind Kind, reason string, d time.Duration) Result {
	r := Result{
		RuleID:        id,
		RuleKind:      kind,
		ExecutionTime: d,
		Timestamp:     time.Now().UTC(),
	}
	if reason != "" {
		r.Errors = []string{reason}
	}
	return r
}

// Failure builds a failure result for an evaluation that could not run
// (unknown rule, disabled rule, closed engine, or an internal fault).
func Failure(id string, reason string) Result {
	return Result{
		RuleID:    id,
		Timestamp: time.Now().UTC(),
		Errors:    []string{reason},
	}
}

// Reason returns the first recorded error, or "" for a success result.
func (r Result) Reason() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0]
}
