package service

import (
	"sync"
	"testing"
	"time"
)

func TestStatsService_InitZero(t *testing.T) {
	s := NewStatsService()

	s.InitZero("r1")

	st, ok := s.Get("r1")
	if !ok {
		t.Fatal("Get(r1) = false after InitZero")
	}
	if st.TotalEvaluations != 0 {
		t.Errorf("TotalEvaluations = %d, want 0", st.TotalEvaluations)
	}

	// InitZero never resets an existing aggregate.
	s.Record("r1", true, time.Millisecond)
	s.InitZero("r1")
	st, _ = s.Get("r1")
	if st.TotalEvaluations != 1 {
		t.Errorf("TotalEvaluations = %d after re-InitZero, want 1", st.TotalEvaluations)
	}
}

func TestStatsService_RecordPerRuleAndGlobal(t *testing.T) {
	s := NewStatsService()

	s.Record("r1", true, 10*time.Millisecond)
	s.Record("r1", false, 20*time.Millisecond)
	s.Record("r2", true, 30*time.Millisecond)

	r1, _ := s.Get("r1")
	if r1.TotalEvaluations != 2 || r1.SuccessfulEvaluations != 1 || r1.FailedEvaluations != 1 {
		t.Errorf("r1 = %+v, want total 2 success 1 failed 1", r1)
	}

	global := s.Global()
	if global.TotalEvaluations != 3 {
		t.Errorf("global total = %d, want 3", global.TotalEvaluations)
	}
	if global.TotalExecutionTime != 60*time.Millisecond {
		t.Errorf("global TotalExecutionTime = %v, want 60ms", global.TotalExecutionTime)
	}
	if global.AverageExecutionTime != 20*time.Millisecond {
		t.Errorf("global AverageExecutionTime = %v, want 20ms", global.AverageExecutionTime)
	}
}

func TestStatsService_Remove(t *testing.T) {
	s := NewStatsService()

	s.Record("r1", true, time.Millisecond)
	s.Remove("r1")

	if _, ok := s.Get("r1"); ok {
		t.Error("Get(r1) = true after Remove")
	}
	// Global keeps history of removed rules.
	if s.Global().TotalEvaluations != 1 {
		t.Errorf("global total = %d after Remove, want 1", s.Global().TotalEvaluations)
	}
}

func TestStatsService_Snapshot(t *testing.T) {
	s := NewStatsService()

	s.Record("r1", true, time.Millisecond)
	s.Record("r2", false, time.Millisecond)

	snap := s.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot() has %d entries, want 2", len(snap))
	}

	// Mutating the snapshot never touches the service.
	snap["r1"] = snap["r1"].Record(true, time.Second, time.Now())
	st, _ := s.Get("r1")
	if st.TotalEvaluations != 1 {
		t.Errorf("TotalEvaluations = %d after snapshot mutation, want 1", st.TotalEvaluations)
	}
}

func TestStatsService_Clear(t *testing.T) {
	s := NewStatsService()

	s.Record("r1", true, time.Millisecond)
	s.Clear()

	if _, ok := s.Get("r1"); ok {
		t.Error("Get(r1) = true after Clear")
	}
	if s.Global().TotalEvaluations != 0 {
		t.Errorf("global total = %d after Clear, want 0", s.Global().TotalEvaluations)
	}
}

func TestStatsService_ConcurrentRecordKeepsInvariant(t *testing.T) {
	s := NewStatsService()

	const goroutines = 50
	const opsPerGoroutine = 200

	var wg sync.WaitGroup
	wg.Add(goroutines * 2)

	stop := make(chan struct{})
	readErr := make(chan string, 1)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			g := s.Global()
			if g.TotalEvaluations != g.SuccessfulEvaluations+g.FailedEvaluations {
				select {
				case readErr <- "reader observed total != success + failed":
				default:
				}
				return
			}
		}
	}()

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				s.Record("r1", true, time.Microsecond)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				s.Record("r2", false, time.Microsecond)
			}
		}()
	}

	wg.Wait()
	close(stop)

	select {
	case msg := <-readErr:
		t.Fatal(msg)
	default:
	}

	g := s.Global()
	want := int64(goroutines * opsPerGoroutine)
	if g.SuccessfulEvaluations != want {
		t.Errorf("SuccessfulEvaluations = %d, want %d", g.SuccessfulEvaluations, want)
	}
	if g.FailedEvaluations != want {
		t.Errorf("FailedEvaluations = %d, want %d", g.FailedEvaluations, want)
	}
}
