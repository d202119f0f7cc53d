package rule

import "context"

// ActionKind is the tagged variant discriminator for rule actions.
// Dispatch is by exhaustive switch; an unknown kind fails safely at the
// executor instead of panicking.
type ActionKind string

const (
	// ActionGameplay triggers a gameplay capability (award bonus, unlock level).
	ActionGameplay ActionKind = "gameplay"
	// ActionNotification posts a player-facing notification.
	ActionNotification ActionKind = "notification"
	// ActionReward grants an inventory or currency reward.
	ActionReward ActionKind = "reward"
)

// Action is one action attached to a rule, dispatched when the rule's
// condition is satisfied.
type Action struct {
	// Kind selects the capability handler.
	Kind ActionKind
	// Name identifies the concrete action within its capability
	// (e.g. "award_bonus", "unlock_level").
	Name string
	// Params are free-form action parameters.
	Params map[string]any
}

// Handler is the capability contract the surrounding application implements
// for one action kind. The engine dispatches to handlers by Action.Kind and
// never depends on their implementation.
type Handler interface {
	// Handle executes a single action. A returned error marks the action
	// failed without affecting other actions in the same result.
	Handle(ctx context.Context, action Action, rc *Context) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, action Action, rc *Context) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, action Action, rc *Context) error {
	return f(ctx, action, rc)
}
