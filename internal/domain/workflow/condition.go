package workflow

import "time"

// ConditionKind is the tagged variant discriminator for transition
// conditions. Evaluation is by exhaustive switch; an unknown kind never
// fires a transition.
type ConditionKind string

const (
	// CondAlways is an unconditional transition.
	CondAlways ConditionKind = "always"
	// CondRule delegates to the rule engine; the transition fires iff the
	// referenced rule evaluates to allowed.
	CondRule ConditionKind = "rule"
	// CondTime fires once the execution has been in the source state for
	// at least Delay.
	CondTime ConditionKind = "time"
	// CondEvent fires when a matching named event has been queued for the
	// execution; the event is consumed on check, not peeked.
	CondEvent ConditionKind = "event"
)

// Condition gates movement across one transition.
type Condition struct {
	// Kind selects the variant.
	Kind ConditionKind
	// RuleID references the rule for CondRule.
	RuleID string
	// Delay is the hold time for CondTime.
	Delay time.Duration
	// Event is the event name for CondEvent.
	Event string
}

// Always returns an unconditional condition.
func Always() Condition {
	return Condition{Kind: CondAlways}
}

// WhenRule returns a rule-gated condition.
func WhenRule(ruleID string) Condition {
	return Condition{Kind: CondRule, RuleID: ruleID}
}

// AfterDelay returns a time-gated condition.
func AfterDelay(d time.Duration) Condition {
	return Condition{Kind: CondTime, Delay: d}
}

// OnEvent returns an event-gated condition.
func OnEvent(name string) Condition {
	return Condition{Kind: CondEvent, Event: name}
}
