package ruledef

import (
	"fmt"
	"time"

	"github.com/playforge/gameflow/internal/domain/rule"
	"github.com/playforge/gameflow/internal/domain/workflow"
)

// ToActions converts action records to domain actions.
func ToActions(records []ActionRecord) []rule.Action {
	if len(records) == 0 {
		return nil
	}
	out := make([]rule.Action, 0, len(records))
	for _, a := range records {
		out = append(out, rule.Action{
			Kind:   rule.ActionKind(a.Kind),
			Name:   a.Name,
			Params: a.Params,
		})
	}
	return out
}

// FromActions converts domain actions to records.
func FromActions(actions []rule.Action) []ActionRecord {
	if len(actions) == 0 {
		return nil
	}
	out := make([]ActionRecord, 0, len(actions))
	for _, a := range actions {
		out = append(out, ActionRecord{
			Kind:   string(a.Kind),
			Name:   a.Name,
			Params: a.Params,
		})
	}
	return out
}

// ToInfo converts a rule record to rule metadata.
func ToInfo(r RuleRecord) rule.Info {
	return rule.Info{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Tags:        r.Tags,
		Version:     r.Version,
		Metadata:    r.Metadata,
	}
}

// ToDefinition converts a workflow record to a domain definition. The
// result still needs Validate before registration.
func ToDefinition(w WorkflowRecord) (*workflow.Definition, error) {
	def := &workflow.Definition{
		ID:          w.ID,
		Name:        w.Name,
		Description: w.Description,
		Version:     w.Version,
	}
	for _, s := range w.States {
		def.States = append(def.States, workflow.State{
			ID:            s.ID,
			Name:          s.Name,
			Type:          workflow.StateType(s.Type),
			Timeout:       time.Duration(s.TimeoutMs) * time.Millisecond,
			TimeoutTarget: s.TimeoutTarget,
			EntryActions:  ToActions(s.EntryActions),
			ExitActions:   ToActions(s.ExitActions),
		})
	}
	for _, t := range w.Transitions {
		cond, err := toCondition(t.Condition)
		if err != nil {
			return nil, fmt.Errorf("workflow %s transition %s: %w", w.ID, t.ID, err)
		}
		def.Transitions = append(def.Transitions, workflow.Transition{
			ID:        t.ID,
			From:      t.From,
			To:        t.To,
			Priority:  t.Priority,
			Condition: cond,
		})
	}
	return def, nil
}

// toCondition converts a condition record to the domain tagged variant.
func toCondition(c ConditionRecord) (workflow.Condition, error) {
	switch workflow.ConditionKind(c.Kind) {
	case workflow.CondAlways:
		return workflow.Always(), nil
	case workflow.CondRule:
		return workflow.WhenRule(c.RuleID), nil
	case workflow.CondTime:
		return workflow.AfterDelay(time.Duration(c.DelayMs) * time.Millisecond), nil
	case workflow.CondEvent:
		return workflow.OnEvent(c.Event), nil
	default:
		return workflow.Condition{}, fmt.Errorf("unknown condition kind %q", c.Kind)
	}
}
