package cel

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/playforge/gameflow/internal/domain/rule"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	ev, err := NewEvaluator()
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}
	return ev
}

func TestEvaluator_Compile(t *testing.T) {
	ev := newTestEvaluator(t)

	valid := []string{
		`variables["score"] > 100`,
		`user_id == "u1" && session_id != ""`,
		`has_var(variables, "level")`,
		`timestamp < timestamp + duration("1h")`,
		`"vip" in variables`,
	}
	for _, expr := range valid {
		if _, err := ev.Compile(expr); err != nil {
			t.Errorf("Compile(%q) error = %v", expr, err)
		}
	}

	invalid := []string{
		`variables[`,
		`unknown_fn(1)`,
		`undeclared_var > 3`,
	}
	for _, expr := range invalid {
		if _, err := ev.Compile(expr); err == nil {
			t.Errorf("Compile(%q) = nil error, want error", expr)
		}
	}
}

func TestEvaluator_ValidateExpression(t *testing.T) {
	ev := newTestEvaluator(t)

	if err := ev.ValidateExpression(`variables["x"] == 1`); err != nil {
		t.Errorf("ValidateExpression() error = %v", err)
	}
	if err := ev.ValidateExpression(""); err == nil {
		t.Error("empty expression should be rejected")
	}
	if err := ev.ValidateExpression(strings.Repeat("a", maxExpressionLength+1)); err == nil {
		t.Error("over-long expression should be rejected")
	}

	deep := strings.Repeat("(", maxNestingDepth+1) + "1" + strings.Repeat(")", maxNestingDepth+1)
	if err := ev.ValidateExpression(deep); err == nil {
		t.Error("deeply nested expression should be rejected")
	}
}

func TestEvaluator_Evaluate(t *testing.T) {
	ev := newTestEvaluator(t)

	prg, err := ev.Compile(`variables["score"] > 100`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	rc := rule.NewContext(map[string]any{"score": 150})
	ok, err := ev.Evaluate(context.Background(), prg, rc)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok {
		t.Error("score 150 > 100 should be true")
	}

	rc = rule.NewContext(map[string]any{"score": 50})
	ok, err = ev.Evaluate(context.Background(), prg, rc)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if ok {
		t.Error("score 50 > 100 should be false")
	}
}

func TestEvaluator_Evaluate_ContextIdentifiers(t *testing.T) {
	ev := newTestEvaluator(t)

	prg, err := ev.Compile(`user_id == "player-7" && session_id.startsWith("s-")`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	rc := &rule.Context{
		Variables: map[string]any{},
		UserID:    "player-7",
		SessionID: "s-42",
		Timestamp: time.Now().UTC(),
	}
	ok, err := ev.Evaluate(context.Background(), prg, rc)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok {
		t.Error("identifier match should be true")
	}
}

func TestEvaluator_Evaluate_HasVar(t *testing.T) {
	ev := newTestEvaluator(t)

	prg, err := ev.Compile(`has_var(variables, "level")`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	ok, err := ev.Evaluate(context.Background(), prg, rule.NewContext(map[string]any{"level": 3}))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok {
		t.Error("has_var should find present variable")
	}

	ok, err = ev.Evaluate(context.Background(), prg, rule.NewContext(nil))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if ok {
		t.Error("has_var should not find absent variable")
	}
}

func TestEvaluator_Evaluate_MissingVariableErrors(t *testing.T) {
	ev := newTestEvaluator(t)

	prg, err := ev.Compile(`variables["missing"] > 0`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if _, err := ev.Evaluate(context.Background(), prg, rule.NewContext(nil)); err == nil {
		t.Error("indexing an absent key should error, not silently pass")
	}
}

func TestEvaluator_Evaluate_NonBooleanResult(t *testing.T) {
	ev := newTestEvaluator(t)

	prg, err := ev.Compile(`variables["score"]`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	if _, err := ev.Evaluate(context.Background(), prg, rule.NewContext(map[string]any{"score": 1})); err == nil {
		t.Error("non-boolean expression result should error")
	}
}
