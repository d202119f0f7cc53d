package rule

import (
	"context"
	"errors"
	"testing"
)

func TestFuncRule_Validate(t *testing.T) {
	alwaysTrue := func(ctx context.Context, rc *Context) (bool, error) { return true, nil }

	tests := []struct {
		name    string
		rule    *FuncRule
		wantErr bool
	}{
		{
			name:    "valid",
			rule:    NewFuncRule(Info{ID: "r1", Name: "Rule One"}, alwaysTrue, nil),
			wantErr: false,
		},
		{
			name:    "empty id",
			rule:    NewFuncRule(Info{Name: "No ID"}, alwaysTrue, nil),
			wantErr: true,
		},
		{
			name:    "empty name",
			rule:    NewFuncRule(Info{ID: "r2"}, alwaysTrue, nil),
			wantErr: true,
		},
		{
			name:    "nil predicate",
			rule:    NewFuncRule(Info{ID: "r3", Name: "No Predicate"}, nil, nil),
			wantErr: true,
		},
		{
			name: "action without name",
			rule: NewFuncRule(Info{ID: "r4", Name: "Bad Action"}, alwaysTrue,
				[]Action{{Kind: ActionReward}}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRule) {
				t.Errorf("Validate() error = %v, want ErrInvalidRule", err)
			}
		})
	}
}

func TestFuncRule_Evaluate(t *testing.T) {
	actions := []Action{{Kind: ActionReward, Name: "AwardBonus"}}

	r := NewFuncRule(Info{ID: "min-level", Name: "Minimum Level"},
		func(ctx context.Context, rc *Context) (bool, error) {
			level, ok := rc.Variables["level"].(int)
			return ok && level >= 5, nil
		}, actions)

	res, err := r.Evaluate(context.Background(), NewContext(map[string]any{"level": 7}))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !res.Allowed {
		t.Errorf("Allowed = false, want true")
	}
	if len(res.Actions) != 1 || res.Actions[0].Name != "AwardBonus" {
		t.Errorf("Actions = %+v, want [AwardBonus]", res.Actions)
	}

	res, err = r.Evaluate(context.Background(), NewContext(map[string]any{"level": 2}))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Allowed {
		t.Errorf("Allowed = true, want false")
	}
	if len(res.Actions) != 0 {
		t.Errorf("denied result carries actions: %+v", res.Actions)
	}
	if res.Reason() == "" {
		t.Errorf("denied result has no reason")
	}
}

func TestFuncRule_EvaluateError(t *testing.T) {
	wantErr := errors.New("lookup failed")
	r := NewFuncRule(Info{ID: "err", Name: "Errors"},
		func(ctx context.Context, rc *Context) (bool, error) { return false, wantErr }, nil)

	_, err := r.Evaluate(context.Background(), NewContext(nil))
	if !errors.Is(err, wantErr) {
		t.Errorf("Evaluate() error = %v, want %v", err, wantErr)
	}
}

func TestNewContext_NilVariables(t *testing.T) {
	rc := NewContext(nil)
	if rc.Variables == nil {
		t.Error("Variables should not be nil")
	}
	if rc.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}
