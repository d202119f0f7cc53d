package rule

import "time"

// Statistics is an immutable aggregate of evaluation outcomes, kept per
// rule id and globally. Invariant: TotalEvaluations is always equal to
// SuccessfulEvaluations + FailedEvaluations, and AverageExecutionTime is
// derived from TotalExecutionTime on every update.
type Statistics struct {
	// TotalEvaluations counts every recorded evaluation.
	TotalEvaluations int64
	// SuccessfulEvaluations counts evaluations whose result was allowed.
	SuccessfulEvaluations int64
	// FailedEvaluations counts denied and faulted evaluations.
	FailedEvaluations int64
	// TotalExecutionTime is the summed wall time of all evaluations.
	TotalExecutionTime time.Duration
	// AverageExecutionTime is TotalExecutionTime / TotalEvaluations.
	AverageExecutionTime time.Duration
	// LastEvaluation is when the most recent evaluation was recorded.
	LastEvaluation time.Time
}

// Record returns a new Statistics with one more evaluation folded in.
// The receiver is not modified; callers replace the stored value wholesale
// so concurrent readers never observe a half-updated aggregate.
func (s Statistics) Record(success bool, d time.Duration, at time.Time) Statistics {
	next := s
	next.TotalEvaluations++
	if success {
		next.SuccessfulEvaluations++
	} else {
		next.FailedEvaluations++
	}
	next.TotalExecutionTime += d
	next.AverageExecutionTime = next.TotalExecutionTime / time.Duration(next.TotalEvaluations)
	next.LastEvaluation = at
	return next
}
