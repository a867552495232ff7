package resilience

import (
	"sync"
	"testing"
	"time"
)

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("test", 0, 0)
	if cb.maxFailures != 3 {
		t.Errorf("maxFailures = %d, want 3", cb.maxFailures)
	}
	if cb.resetTimeout != 60*time.Second {
		t.Errorf("resetTimeout = %v, want 60s", cb.resetTimeout)
	}
	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_ClosedAllowsCalls(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Hour)
	if cb.IsOpen() {
		t.Fatal("closed breaker should allow calls")
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Hour)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.IsOpen() {
		t.Fatal("should still be closed after 2 of 3 failures")
	}

	cb.RecordFailure()
	if !cb.IsOpen() {
		t.Fatal("should be open after 3 failures")
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}
}

func TestCircuitBreaker_SuccessClosesAndResets(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, time.Hour)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	st := cb.Status()
	if st.State != "closed" {
		t.Fatalf("state = %s, want closed", st.State)
	}
	if st.FailureCount != 0 {
		t.Errorf("failure_count = %d, want 0 after success", st.FailureCount)
	}
	if st.SuccessCount != 1 {
		t.Errorf("success_count = %d, want 1", st.SuccessCount)
	}

	// Needs a full run of failures again to open.
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.IsOpen() {
		t.Fatal("should still be closed after 2 failures post-reset")
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, 10*time.Millisecond)

	cb.RecordFailure()
	cb.RecordFailure()
	if !cb.IsOpen() {
		t.Fatal("expected open")
	}

	time.Sleep(15 * time.Millisecond)

	// First check after the timeout flips to half-open and admits a probe.
	if cb.IsOpen() {
		t.Fatal("expected probe admission after reset timeout")
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}

	// Half-open keeps admitting until an outcome is recorded.
	if cb.IsOpen() {
		t.Fatal("half-open should not reject")
	}
}

func TestCircuitBreaker_HalfOpenSuccessCloses(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, 10*time.Millisecond)
	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	_ = cb.IsOpen() // flip to half-open

	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probe", cb.State())
	}
	if cb.IsOpen() {
		t.Fatal("closed breaker should allow calls")
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, 10*time.Millisecond)
	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(15 * time.Millisecond)
	_ = cb.IsOpen() // flip to half-open

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", cb.State())
	}
	if !cb.IsOpen() {
		t.Fatal("re-opened breaker should reject until the timeout elapses again")
	}
}

func TestCircuitBreaker_Status(t *testing.T) {
	cb := NewCircuitBreaker("story", 3, time.Hour)
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordSuccess()

	st := cb.Status()
	if st.Name != "story" {
		t.Errorf("Name = %q, want story", st.Name)
	}
	if st.State != "closed" {
		t.Errorf("State = %q, want closed", st.State)
	}
	if st.SuccessCount != 2 {
		t.Errorf("SuccessCount = %d, want 2", st.SuccessCount)
	}
	if st.LastFailure.IsZero() {
		t.Error("LastFailure should be recorded")
	}
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker("test", 5, time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if n%2 == 0 {
					cb.RecordFailure()
				} else {
					cb.RecordSuccess()
				}
				_ = cb.IsOpen()
				_ = cb.Status()
			}
		}(i)
	}
	wg.Wait()
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
