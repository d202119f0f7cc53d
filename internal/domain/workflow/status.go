package workflow

import "time"

// Status is the lifecycle state of one workflow execution.
type Status string

const (
	// StatusRunning means the execution is actively checking transitions.
	StatusRunning Status = "running"
	// StatusPaused means transition checks are suspended; the execution
	// context is preserved and can be resumed.
	StatusPaused Status = "paused"
	// StatusCompleted means a terminal state was reached.
	StatusCompleted Status = "completed"
	// StatusFailed means an error state, timeout without target, or fatal
	// fault ended the execution.
	StatusFailed Status = "failed"
	// StatusCancelled means the caller cancelled the execution.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is absorbing: no further transitions
// are checked and no further events are consumed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Event is one external signal queued for an execution. Events for the
// same execution are consumed in FIFO order.
type Event struct {
	// Name matches CondEvent conditions.
	Name string
	// Payload is merged into the execution variables when the event is
	// consumed (keys prefixed with "event.").
	Payload map[string]any
	// At is when the event was enqueued.
	At time.Time
}

// Snapshot is a point-in-time view of one execution, safe for callers to
// retain. Variables is a copy.
type Snapshot struct {
	// ExecutionID identifies the execution instance.
	ExecutionID string
	// WorkflowID identifies the definition being executed.
	WorkflowID string
	// Status is the execution lifecycle state.
	Status Status
	// CurrentState is the id of the state the execution is in.
	CurrentState string
	// Error explains a failed execution; empty otherwise.
	Error string
	// Progress is visited states over total states, in [0, 1].
	Progress float64
	// Variables is a copy of the execution variables.
	Variables map[string]any
	// StartedAt is when the execution started.
	StartedAt time.Time
	// UpdatedAt is when the execution last changed state or status.
	UpdatedAt time.Time
}

// Stats aggregates execution outcomes across one engine instance.
type Stats struct {
	Started         int64
	Completed       int64
	Failed          int64
	Cancelled       int64
	AverageDuration time.Duration
}
