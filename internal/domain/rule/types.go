// Package rule contains domain types for conditional rule evaluation.
package rule

import (
	"context"
	"time"
)

// Kind identifies the implementation variant of a rule.
type Kind string

const (
	// KindExpr is a rule whose condition is a compiled CEL expression.
	KindExpr Kind = "expr"
	// KindFunc is a rule whose condition is a native Go predicate.
	KindFunc Kind = "func"
)

// Info carries the descriptive metadata of a rule.
// It is immutable once the rule is registered; the enabled flag is
// owned by the registry, not the rule value.
type Info struct {
	// ID is the unique identifier for this rule.
	ID string
	// Name is a human-readable name for this rule.
	Name string
	// Description provides additional context about the rule.
	Description string
	// Category groups related rules for bulk evaluation (e.g. "session", "purchase").
	Category string
	// Tags label the rule for any-tag lookup.
	Tags []string
	// Version is the rule definition version, bumped on each change.
	Version int
	// Metadata holds free-form key/value annotations.
	Metadata map[string]string
}

// Rule is a named predicate-plus-action unit evaluated against a Context.
type Rule interface {
	// ID returns the unique rule identifier.
	ID() string
	// Info returns the rule's descriptive metadata.
	Info() Info
	// Kind returns the implementation variant.
	Kind() Kind
	// Validate performs a structural self-check of the rule definition.
	Validate() error
	// Evaluate runs the rule's condition against the given context and
	// returns the outcome. Implementations must not mutate rc.
	Evaluate(ctx context.Context, rc *Context) (Result, error)
}

// Context is the per-evaluation input bag. It is supplied by the caller
// for each evaluation and is never mutated by the engine.
type Context struct {
	// Variables holds the caller-supplied evaluation variables.
	Variables map[string]any
	// UserID identifies the player, opaque to the engine.
	UserID string
	// SessionID identifies the game session, opaque to the engine.
	SessionID string
	// Timestamp is when the context was captured.
	Timestamp time.Time
}

// NewContext creates a Context with the given variables, stamped now.
func NewContext(vars map[string]any) *Context {
	if vars == nil {
		vars = make(map[string]any)
	}
	return &Context{
		Variables: vars,
		Timestamp: time.Now().UTC(),
	}
}

// ContextProvider supplies a fresh evaluation context per continuous
// evaluation iteration. It may block on I/O and must honor ctx cancellation.
type ContextProvider func(ctx context.Context) (*Context, error)
