package workflow

import "fmt"

// Validate enforces the structural invariants of a definition: exactly one
// initial state, at least one terminal state, unique state and transition
// ids, and referential integrity of every transition and timeout target.
// Definitions are validated at registration and never partially applied.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDefinition)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: workflow %s has no name", ErrInvalidDefinition, d.ID)
	}
	if len(d.States) == 0 {
		return fmt.Errorf("%w: workflow %s has no states", ErrInvalidDefinition, d.ID)
	}

	states := make(map[string]State, len(d.States))
	var initials, terminals int
	for _, s := range d.States {
		if s.ID == "" {
			return fmt.Errorf("%w: workflow %s has a state with an empty id", ErrInvalidDefinition, d.ID)
		}
		if _, dup := states[s.ID]; dup {
			return fmt.Errorf("%w: workflow %s has duplicate state %s", ErrInvalidDefinition, d.ID, s.ID)
		}
		states[s.ID] = s
		switch s.Type {
		case StateInitial:
			initials++
		case StateTerminal:
			terminals++
		case StateNormal, StateDecision, StateError:
		default:
			return fmt.Errorf("%w: workflow %s state %s has unknown type %q", ErrInvalidDefinition, d.ID, s.ID, s.Type)
		}
		if s.TimeoutTarget != "" && s.Timeout <= 0 {
			return fmt.Errorf("%w: workflow %s state %s has a timeout target but no timeout", ErrInvalidDefinition, d.ID, s.ID)
		}
	}
	if initials != 1 {
		return fmt.Errorf("%w: workflow %s must have exactly one initial state, got %d", ErrInvalidDefinition, d.ID, initials)
	}
	if terminals == 0 {
		return fmt.Errorf("%w: workflow %s must have at least one terminal state", ErrInvalidDefinition, d.ID)
	}

	// Timeout targets must reference declared states.
	for _, s := range d.States {
		if s.TimeoutTarget == "" {
			continue
		}
		if _, ok := states[s.TimeoutTarget]; !ok {
			return fmt.Errorf("%w: workflow %s state %s timeout target %s is not a declared state", ErrInvalidDefinition, d.ID, s.ID, s.TimeoutTarget)
		}
	}

	seen := make(map[string]struct{}, len(d.Transitions))
	for _, t := range d.Transitions {
		if t.ID == "" {
			return fmt.Errorf("%w: workflow %s has a transition with an empty id", ErrInvalidDefinition, d.ID)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: workflow %s has duplicate transition %s", ErrInvalidDefinition, d.ID, t.ID)
		}
		seen[t.ID] = struct{}{}
		if _, ok := states[t.From]; !ok {
			return fmt.Errorf("%w: workflow %s transition %s references unknown from-state %s", ErrInvalidDefinition, d.ID, t.ID, t.From)
		}
		if _, ok := states[t.To]; !ok {
			return fmt.Errorf("%w: workflow %s transition %s references unknown to-state %s", ErrInvalidDefinition, d.ID, t.ID, t.To)
		}
		switch t.Condition.Kind {
		case CondAlways, CondTime:
		case CondRule:
			if t.Condition.RuleID == "" {
				return fmt.Errorf("%w: workflow %s transition %s has a rule condition with no rule id", ErrInvalidDefinition, d.ID, t.ID)
			}
		case CondEvent:
			if t.Condition.Event == "" {
				return fmt.Errorf("%w: workflow %s transition %s has an event condition with no event name", ErrInvalidDefinition, d.ID, t.ID)
			}
		default:
			return fmt.Errorf("%w: workflow %s transition %s has unknown condition kind %q", ErrInvalidDefinition, d.ID, t.ID, t.Condition.Kind)
		}
	}

	return nil
}
