// Package cel provides a CEL-based condition evaluator for expression rules.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/playforge/gameflow/internal/domain/rule"
)

// maxExpressionLength is the maximum allowed length for rule conditions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit guarding against
// cost-exhaustion from pathological expressions.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single condition evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles and evaluates CEL expressions for rule conditions.
type Evaluator struct {
	env *cel.Env
}

// NewRuleEnvironment creates a CEL environment configured for rule
// condition evaluation. Exposed variables:
//   - variables: the caller-supplied evaluation variables (map of dyn)
//   - user_id, session_id: opaque identifiers from the context
//   - timestamp: when the context was captured
//
// Custom functions:
//   - has_var(variables, name): whether a variable is present in the context
func NewRuleEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("variables", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("session_id", cel.StringType),
		cel.Variable("timestamp", cel.TimestampType),

		cel.Function("has_var",
			cel.Overload("has_var_map_string",
				[]*cel.Type{cel.MapType(cel.StringType, cel.DynType), cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(vars, name ref.Val) ref.Val {
					m, ok := vars.Value().(map[string]any)
					if !ok {
						return types.Bool(false)
					}
					n, ok := name.Value().(string)
					if !ok {
						return types.Bool(false)
					}
					_, present := m[n]
					return types.Bool(present)
				}),
			),
		),
	)
}

// NewEvaluator creates a new CEL evaluator with the rule environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewRuleEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create rule environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks a CEL expression, returning a compiled program.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	prg, _, err := e.CompileCondition(expression)
	return prg, err
}

// CompileCondition compiles the expression and additionally reports
// whether it reads the timestamp variable. A condition that reads
// timestamp is not a pure function of the remaining context, so its
// results must never be cached across contexts.
func (e *Evaluator) CompileCondition(expression string) (cel.Program, bool, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, false, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, false, fmt.Errorf("program creation failed: %w", err)
	}

	return prg, referencesTimestamp(ast), nil
}

// referencesTimestamp reports whether the checked expression resolves the
// timestamp identifier anywhere. Function references carry overload ids
// instead of names, so only identifier references can match.
func referencesTimestamp(ast *cel.Ast) bool {
	for _, ref := range ast.NativeRep().ReferenceMap() {
		if ref.Name == "timestamp" {
			return true
		}
	}
	return false
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that a CEL expression is syntactically valid
// and within the safety limits (expression length, nesting depth).
func (e *Evaluator) ValidateExpression(expr string) error {
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}

	if expr == "" {
		return errors.New("expression is empty")
	}

	if err := validateNesting(expr); err != nil {
		return err
	}

	_, err := e.Compile(expr)
	if err != nil {
		return fmt.Errorf("invalid CEL expression: %w", err)
	}

	return nil
}

// Evaluate runs a compiled CEL program against the given rule context.
// Returns true if the expression evaluates to true, false otherwise.
// Uses ContextEval with a timeout so a pathological expression cannot hang
// an evaluation batch.
func (e *Evaluator) Evaluate(ctx context.Context, prg cel.Program, rc *rule.Context) (bool, error) {
	activation := buildActivation(rc)

	evalCtx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(evalCtx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}

	return boolResult, nil
}

// buildActivation maps a rule context onto the CEL environment variables.
func buildActivation(rc *rule.Context) map[string]any {
	vars := rc.Variables
	if vars == nil {
		vars = map[string]any{}
	}
	return map[string]any{
		"variables":  vars,
		"user_id":    rc.UserID,
		"session_id": rc.SessionID,
		"timestamp":  rc.Timestamp,
	}
}
