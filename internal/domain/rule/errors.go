package rule

import "errors"

// Error values returned by the registry and evaluation services.
var (
	// ErrRuleNotFound indicates an unknown rule id.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrDuplicateRule indicates a registration under an id that is
	// already registered. Re-registration is rejected, never silently
	// overwritten.
	ErrDuplicateRule = errors.New("rule already registered")
	// ErrRuleDisabled indicates evaluation of a disabled rule.
	ErrRuleDisabled = errors.New("rule is disabled")
	// ErrEngineClosed indicates an operation after Shutdown.
	ErrEngineClosed = errors.New("engine is shut down")
	// ErrInvalidRule indicates a rule that failed its structural self-check.
	ErrInvalidRule = errors.New("invalid rule definition")
)
