package gates

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker() (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("post-dev", 0, 0)
	cb.SetClock(clock.Now)
	return cb, clock
}

func fail() (bool, error)    { return false, nil }
func succeed() (bool, error) { return true, nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker()

	for i := 0; i < DefaultFailureThreshold-1; i++ {
		require.NoError(t, cb.Call(fail))
		assert.Equal(t, StateClosed, cb.State())
	}
	require.NoError(t, cb.Call(fail))
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, DefaultFailureThreshold, cb.Failures())

	called := false
	err := cb.Call(func() (bool, error) { called = true; return true, nil })
	assert.False(t, called, "open breaker must not run the call")
	assert.True(t, errors.Is(err, ErrCircuitOpen))

	var coe *CircuitOpenError
	require.True(t, errors.As(err, &coe))
	assert.Equal(t, "post-dev", coe.Name)
	assert.Equal(t, DefaultResetTimeout, coe.RetryAfter)
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker()
	require.NoError(t, cb.Call(fail))
	require.NoError(t, cb.Call(fail))
	require.NoError(t, cb.Call(succeed))
	assert.Equal(t, 0, cb.Failures())
	require.NoError(t, cb.Call(fail))
	assert.Equal(t, StateClosed, cb.State(), "failures must be consecutive")
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb, clock := newTestBreaker()
	for i := 0; i < DefaultFailureThreshold; i++ {
		require.NoError(t, cb.Call(fail))
	}

	clock.Advance(DefaultResetTimeout - time.Millisecond)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Millisecond)
	require.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	// Only one trial while half-open.
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker()
	for i := 0; i < DefaultFailureThreshold; i++ {
		require.NoError(t, cb.Call(fail))
	}
	clock.Advance(DefaultResetTimeout)

	require.NoError(t, cb.Call(fail))
	assert.Equal(t, StateOpen, cb.State())

	// Timer restarts from the failed trial.
	clock.Advance(DefaultResetTimeout / 2)
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
	clock.Advance(DefaultResetTimeout / 2)
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreaker_ErrorCountsAsFailure(t *testing.T) {
	cb, _ := newTestBreaker()
	boom := errors.New("boom")
	err := cb.Call(func() (bool, error) { return true, boom })
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, cb.Failures())
}

func TestCircuitBreaker_SnapshotRestore(t *testing.T) {
	cb, clock := newTestBreaker()
	for i := 0; i < DefaultFailureThreshold; i++ {
		require.NoError(t, cb.Call(fail))
	}
	snap := cb.Snapshot()
	assert.Equal(t, StateOpen, snap.State)

	restored := NewCircuitBreaker("post-dev", 0, 0)
	restored.SetClock(clock.Now)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, StateOpen, restored.State())
	assert.ErrorIs(t, restored.Allow(), ErrCircuitOpen)

	clock.Advance(DefaultResetTimeout)
	assert.NoError(t, restored.Allow())

	assert.Error(t, restored.Restore(BreakerSnapshot{State: "MELTED"}))
}

func TestCircuitBreaker_TracksOutcomeTimes(t *testing.T) {
	cb, clock := newTestBreaker()
	start := clock.Now()

	require.NoError(t, cb.Call(succeed))
	clock.Advance(time.Minute)
	require.NoError(t, cb.Call(succeed))
	clock.Advance(time.Minute)
	require.NoError(t, cb.Call(fail))

	snap := cb.Snapshot()
	assert.Equal(t, 2, snap.Successes)
	assert.Equal(t, 1, snap.Failures)
	assert.Equal(t, start.Add(time.Minute).Format(time.RFC3339Nano), snap.LastSuccessAt)
	assert.Equal(t, start.Add(2*time.Minute).Format(time.RFC3339Nano), snap.LastFailureAt)
	assert.Empty(t, snap.OpenedAt)

	restored := NewCircuitBreaker("post-dev", 0, 0)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, snap, restored.Snapshot())

	assert.Error(t, restored.Restore(BreakerSnapshot{LastSuccessAt: "yesterday"}))
}
