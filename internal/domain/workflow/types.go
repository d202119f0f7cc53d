// Package workflow contains domain types for finite-state-machine workflow
// definitions and executions.
package workflow

import (
	"time"

	"github.com/playforge/gameflow/internal/domain/rule"
)

// StateType classifies a workflow state.
type StateType string

const (
	// StateInitial is the single entry point of a workflow.
	StateInitial StateType = "initial"
	// StateNormal is an intermediate processing state.
	StateNormal StateType = "normal"
	// StateDecision is an intermediate branching state.
	StateDecision StateType = "decision"
	// StateTerminal is an absorbing success state.
	StateTerminal StateType = "terminal"
	// StateError is an absorbing failure state.
	StateError StateType = "error"
)

// State is one node of a workflow state machine.
type State struct {
	// ID is unique within the definition.
	ID string
	// Name is a human-readable state name.
	Name string
	// Type classifies the state. Exactly one state per definition is
	// StateInitial; at least one must be StateTerminal.
	Type StateType
	// Timeout bounds how long an execution may sit in this state with no
	// satisfied transition. Zero means no timeout. Expiry is detected at
	// transition-check time, not by a timer goroutine.
	Timeout time.Duration
	// TimeoutTarget is the state entered when Timeout expires. When empty,
	// a timeout fails the execution.
	TimeoutTarget string
	// EntryActions run when an execution enters this state.
	EntryActions []rule.Action
	// ExitActions run when an execution leaves this state.
	ExitActions []rule.Action
}

// Transition is one directed edge of a workflow state machine.
type Transition struct {
	// ID is unique within the definition.
	ID string
	// From and To reference state IDs declared in the same definition.
	From string
	To   string
	// Condition gates whether the transition fires.
	Condition Condition
	// Priority orders simultaneously satisfiable transitions from the same
	// state: higher wins, declaration order breaks ties.
	Priority int
}

// Definition describes one business process as a state machine. It is
// immutable once registered.
type Definition struct {
	// ID is the unique workflow identifier.
	ID string
	// Name is a human-readable workflow name.
	Name string
	// Description provides additional context about the process.
	Description string
	// Version is the definition version.
	Version int
	// States are the nodes of the state machine.
	States []State
	// Transitions are the directed edges of the state machine.
	Transitions []Transition
}

// Initial returns the definition's initial state. Callers must have
// validated the definition first.
func (d *Definition) Initial() (State, bool) {
	for _, s := range d.States {
		if s.Type == StateInitial {
			return s, true
		}
	}
	return State{}, false
}

// StateByID returns the state with the given id.
func (d *Definition) StateByID(id string) (State, bool) {
	for _, s := range d.States {
		if s.ID == id {
			return s, true
		}
	}
	return State{}, false
}

// TransitionsFrom returns the transitions leaving the given state in
// declaration order.
func (d *Definition) TransitionsFrom(stateID string) []Transition {
	var out []Transition
	for _, t := range d.Transitions {
		if t.From == stateID {
			out = append(out, t)
		}
	}
	return out
}
