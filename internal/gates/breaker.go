package gates

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Breaker states.
const (
	StateClosed   = "CLOSED"
	StateOpen     = "OPEN"
	StateHalfOpen = "HALF_OPEN"
)

// Breaker defaults.
const (
	DefaultFailureThreshold = 3
	DefaultResetTimeout     = 60 * time.Second
)

// ErrCircuitOpen is wrapped by every CircuitOpenError.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitOpenError is returned when a call is rejected without running.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: %v, retry in %s", e.Name, ErrCircuitOpen, e.RetryAfter.Round(time.Second))
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// CircuitBreaker stops repeated evaluation of a checkpoint that keeps failing.
// After threshold consecutive failures it opens; once resetTimeout has passed
// one trial call is let through in HALF_OPEN.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	threshold    int
	resetTimeout time.Duration
	now          func() time.Time

	state         string
	failures      int
	successes     int
	openedAt      time.Time
	lastFailureAt time.Time
	lastSuccessAt time.Time
	trial         bool
}

// NewCircuitBreaker creates a closed breaker. Zero values select the defaults.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}
	return &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
		state:        StateClosed,
	}
}

// SetClock overrides the time source (for testing).
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
}

// Allow reports whether a call may run, moving OPEN to HALF_OPEN when the
// reset timeout has elapsed. A rejected call gets a *CircuitOpenError.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		elapsed := cb.now().Sub(cb.openedAt)
		if elapsed < cb.resetTimeout {
			return &CircuitOpenError{Name: cb.name, RetryAfter: cb.resetTimeout - elapsed}
		}
		cb.state = StateHalfOpen
		cb.trial = true
		return nil
	case StateHalfOpen:
		if cb.trial {
			return &CircuitOpenError{Name: cb.name}
		}
		cb.trial = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the breaker and clears the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successes++
	cb.lastSuccessAt = cb.now()
	cb.trial = false
}

// RecordFailure counts a failure. A failed trial reopens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.trial = false
	cb.lastFailureAt = cb.now()
	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.openedAt = cb.lastFailureAt
		return
	}
	cb.failures++
	if cb.failures >= cb.threshold {
		cb.state = StateOpen
		cb.openedAt = cb.lastFailureAt
	}
}

// Call runs fn if allowed and records its outcome. fn reports failure either
// through its error or by returning ok=false.
func (cb *CircuitBreaker) Call(fn func() (ok bool, err error)) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	ok, err := fn()
	if err != nil || !ok {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// State returns CLOSED, OPEN or HALF_OPEN.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// BreakerSnapshot is the persisted form of a breaker between processes.
// Successes counts every recorded success over the breaker's lifetime.
type BreakerSnapshot struct {
	State         string `json:"state"`
	Failures      int    `json:"failures"`
	Successes     int    `json:"successes"`
	OpenedAt      string `json:"opened_at,omitempty"`
	LastFailureAt string `json:"last_failure_at,omitempty"`
	LastSuccessAt string `json:"last_success_at,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(name, field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("breaker %s: %s: %w", name, field, err)
	}
	return t, nil
}

// Snapshot captures the breaker state. An in-flight trial is not kept.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	s := BreakerSnapshot{
		State:         cb.state,
		Failures:      cb.failures,
		Successes:     cb.successes,
		OpenedAt:      formatTime(cb.openedAt),
		LastFailureAt: formatTime(cb.lastFailureAt),
		LastSuccessAt: formatTime(cb.lastSuccessAt),
	}
	if s.State == StateHalfOpen {
		s.State = StateOpen
	}
	return s
}

// Restore loads a snapshot taken by Snapshot.
func (cb *CircuitBreaker) Restore(s BreakerSnapshot) error {
	openedAt, err := parseTime(cb.name, "opened_at", s.OpenedAt)
	if err != nil {
		return err
	}
	lastFailure, err := parseTime(cb.name, "last_failure_at", s.LastFailureAt)
	if err != nil {
		return err
	}
	lastSuccess, err := parseTime(cb.name, "last_success_at", s.LastSuccessAt)
	if err != nil {
		return err
	}
	switch s.State {
	case StateClosed, StateOpen, StateHalfOpen:
	case "":
		s.State = StateClosed
	default:
		return fmt.Errorf("breaker %s: unknown state %q", cb.name, s.State)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = s.State
	if cb.state == StateHalfOpen {
		cb.state = StateOpen
	}
	cb.failures = s.Failures
	cb.successes = s.Successes
	cb.openedAt = openedAt
	cb.lastFailureAt = lastFailure
	cb.lastSuccessAt = lastSuccess
	cb.trial = false
	return nil
}
