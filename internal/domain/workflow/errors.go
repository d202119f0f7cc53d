package workflow

import "errors"

// Error values returned by workflow registration and execution control.
var (
	// ErrWorkflowNotFound indicates an unknown workflow definition id.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrExecutionNotFound indicates an unknown execution id.
	ErrExecutionNotFound = errors.New("execution not found")
	// ErrDuplicateWorkflow indicates registration under an id that is
	// already registered.
	ErrDuplicateWorkflow = errors.New("workflow already registered")
	// ErrInvalidDefinition indicates a definition that violates the
	// structural invariants checked at registration.
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	// ErrExecutionFinished indicates a control operation on an execution
	// that already reached a terminal status.
	ErrExecutionFinished = errors.New("execution already finished")
	// ErrNotPaused indicates Resume on an execution that is not paused.
	ErrNotPaused = errors.New("execution is not paused")
)
