package gates

import (
	"sync"
	"time"
)

// Guard runs gate evaluations behind one circuit breaker per checkpoint.
// A FAIL verdict counts as a breaker failure; PASS, CONCERNS and WAIVED
// count as success.
type Guard struct {
	gates        *Gates
	threshold    int
	resetTimeout time.Duration
	now          func() time.Time

	mu       sync.Mutex
	breakers map[Checkpoint]*CircuitBreaker
}

// NewGuard wraps g. Zero breaker settings select the defaults.
func NewGuard(g *Gates, threshold int, resetTimeout time.Duration) *Guard {
	return &Guard{
		gates:        g,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		now:          time.Now,
		breakers:     make(map[Checkpoint]*CircuitBreaker),
	}
}

// SetClock overrides the time source of every breaker (for testing).
func (gd *Guard) SetClock(now func() time.Time) {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	gd.now = now
	for _, b := range gd.breakers {
		b.SetClock(now)
	}
}

// Breaker returns the breaker of cp, creating it closed on first use.
func (gd *Guard) Breaker(cp Checkpoint) *CircuitBreaker {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	b, ok := gd.breakers[cp]
	if !ok {
		b = NewCircuitBreaker(string(cp), gd.threshold, gd.resetTimeout)
		b.SetClock(gd.now)
		gd.breakers[cp] = b
	}
	return b
}

// Evaluate runs the gate at cp unless its breaker is open, in which case the
// returned error wraps ErrCircuitOpen.
func (gd *Guard) Evaluate(cp Checkpoint, ev Evidence, waiver string) (Result, error) {
	return gd.EvaluateWith(cp, func() (Evidence, error) { return ev, nil }, waiver)
}

// EvaluateWith is Evaluate with evidence gathered only after the breaker
// admits the call. A collect error counts as a breaker failure.
func (gd *Guard) EvaluateWith(cp Checkpoint, collect func() (Evidence, error), waiver string) (Result, error) {
	if _, err := BoundStage(cp); err != nil {
		return Result{}, err
	}
	var res Result
	err := gd.Breaker(cp).Call(func() (bool, error) {
		ev, err := collect()
		if err != nil {
			return false, err
		}
		res, err = gd.gates.Evaluate(cp, ev, waiver)
		return res.Passed(), err
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Snapshot captures every breaker that has been used.
func (gd *Guard) Snapshot() map[Checkpoint]BreakerSnapshot {
	gd.mu.Lock()
	defer gd.mu.Unlock()
	out := make(map[Checkpoint]BreakerSnapshot, len(gd.breakers))
	for cp, b := range gd.breakers {
		out[cp] = b.Snapshot()
	}
	return out
}

// Restore loads breaker state saved by Snapshot. Unknown checkpoints are ignored.
func (gd *Guard) Restore(snaps map[Checkpoint]BreakerSnapshot) error {
	for cp, s := range snaps {
		if _, err := BoundStage(cp); err != nil {
			continue
		}
		if err := gd.Breaker(cp).Restore(s); err != nil {
			return err
		}
	}
	return nil
}
