package rule

import (
	"testing"
	"time"
)

func TestStatistics_Record(t *testing.T) {
	var s Statistics
	now := time.Now().UTC()

	s = s.Record(true, 10*time.Millisecond, now)
	s = s.Record(true, 20*time.Millisecond, now)
	s = s.Record(false, 30*time.Millisecond, now)

	if s.TotalEvaluations != 3 {
		t.Errorf("TotalEvaluations = %d, want 3", s.TotalEvaluations)
	}
	if s.SuccessfulEvaluations != 2 {
		t.Errorf("SuccessfulEvaluations = %d, want 2", s.SuccessfulEvaluations)
	}
	if s.FailedEvaluations != 1 {
		t.Errorf("FailedEvaluations = %d, want 1", s.FailedEvaluations)
	}
	if s.TotalExecutionTime != 60*time.Millisecond {
		t.Errorf("TotalExecutionTime = %v, want 60ms", s.TotalExecutionTime)
	}
	if s.AverageExecutionTime != 20*time.Millisecond {
		t.Errorf("AverageExecutionTime = %v, want 20ms", s.AverageExecutionTime)
	}
	if !s.LastEvaluation.Equal(now) {
		t.Errorf("LastEvaluation = %v, want %v", s.LastEvaluation, now)
	}
}

func TestStatistics_TotalEqualsSuccessPlusFailed(t *testing.T) {
	var s Statistics
	now := time.Now().UTC()

	for i := 0; i < 100; i++ {
		s = s.Record(i%3 == 0, time.Millisecond, now)
		if s.TotalEvaluations != s.SuccessfulEvaluations+s.FailedEvaluations {
			t.Fatalf("after %d records: total = %d, success+failed = %d",
				i+1, s.TotalEvaluations, s.SuccessfulEvaluations+s.FailedEvaluations)
		}
	}
}

func TestStatistics_RecordDoesNotMutateReceiver(t *testing.T) {
	var s Statistics
	_ = s.Record(true, time.Second, time.Now())

	if s.TotalEvaluations != 0 {
		t.Errorf("receiver mutated: TotalEvaluations = %d, want 0", s.TotalEvaluations)
	}
}
