// Package resilience provides the circuit breaker that guards calls to
// sub-agents and external model endpoints.
//
// The breaker is a classic three-state machine (closed → open → half-open).
// Unlike wrapper-style breakers, callers drive it explicitly: check
// [CircuitBreaker.IsOpen] before the call, then report the outcome with
// [CircuitBreaker.RecordFailure] or [CircuitBreaker.RecordSuccess]. This
// shape lets dispatchers degrade gracefully (passthrough, fallback payloads)
// instead of surfacing an error when a breaker trips.
//
// All types are safe for concurrent use.
package resilience

import (
	"log/slog"
	"sync"
	"time"
)

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state, all calls are allowed.
	StateClosed State = iota

	// StateOpen indicates the breaker has tripped due to repeated failures.
	// Calls are rejected until the reset timeout elapses.
	StateOpen

	// StateHalfOpen is the probe state entered after the reset timeout.
	// One call is allowed through; its outcome decides whether the breaker
	// closes or re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of a breaker, suitable for logging and
// the stats endpoint.
type Status struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	SuccessCount int       `json:"success_count"`
	LastFailure  time.Time `json:"last_failure,omitzero"`
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// It is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	lastFailure  time.Time
}

// NewCircuitBreaker creates a breaker named name. maxFailures is the number
// of recorded failures that trips the breaker (default 3 when <= 0);
// resetTimeout is how long it stays open before allowing a probe (default
// 60s when <= 0).
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if resetTimeout <= 0 {
		resetTimeout = 60 * time.Second
	}
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// IsOpen reports whether calls should currently be rejected. When the breaker
// is open and the reset timeout has elapsed it transitions to half-open and
// returns false, letting exactly the caller's next attempt through as a
// probe.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = StateHalfOpen
			slog.Info("circuit breaker transitioning to half-open",
				"name", cb.name)
			return false
		}
		return true
	case StateHalfOpen:
		return false
	default:
		return false
	}
}

// RecordFailure registers a failed call. A failure during the half-open
// probe re-opens the breaker immediately; in the closed state the breaker
// opens once the failure count reaches the configured maximum.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = time.Now()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)
		return
	}

	cb.failureCount++
	if cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
		slog.Warn("circuit breaker opened",
			"name", cb.name,
			"failure_count", cb.failureCount)
	}
}

// RecordSuccess registers a successful call. Any success closes the breaker
// and clears the failure count, regardless of the current state.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		slog.Info("circuit breaker closed", "name", cb.name)
	}
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount++
}

// State returns the breaker's current [State] without side effects.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Status returns a snapshot of the breaker's counters and state.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Status{
		Name:         cb.name,
		State:        cb.state.String(),
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
		LastFailure:  cb.lastFailure,
	}
}
