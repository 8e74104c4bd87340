package redis

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

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker(cfg)
	b.now = clock.Now
	return b, clock
}

var errFail = errors.New("fail")

func fail() error { return errFail }
func ok() error   { return nil }

func TestBreaker_TripsAfterMaxFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 3, Cooldown: time.Second})
	assert.Equal(t, StateClosed, b.State())

	for i := 0; i < 3; i++ {
		require.ErrorIs(t, b.Do(fail), errFail)
	}
	require.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "fn must not run while open")
}

func TestBreaker_SuccessClearsFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerConfig{MaxFailures: 2, Cooldown: time.Second})

	b.Do(fail)
	b.Do(ok)
	b.Do(fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_FailureWindow(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{MaxFailures: 2, FailureWindow: time.Minute, Cooldown: time.Second})

	b.Do(fail)
	clock.Advance(2 * time.Minute)
	b.Do(fail)
	assert.Equal(t, StateClosed, b.State(), "first failure aged out of the window")

	clock.Advance(10 * time.Second)
	b.Do(fail)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_ProbeRecovery(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{MaxFailures: 2, Cooldown: 10 * time.Second})
	var transitions []string
	b.OnStateChange = func(from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}

	b.Do(fail)
	b.Do(fail)
	clock.Advance(10 * time.Second)

	require.NoError(t, b.Do(ok))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreaker_SingleProbeInFlight(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{MaxFailures: 1, Cooldown: time.Second})
	b.Do(fail)
	clock.Advance(time.Second)

	err := b.Do(func() error {
		// a second writer arriving during the probe is rejected
		assert.ErrorIs(t, b.Do(ok), ErrCircuitOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, clock := newTestBreaker(BreakerConfig{MaxFailures: 2, Cooldown: 10 * time.Second})
	b.Do(fail)
	b.Do(fail)
	clock.Advance(11 * time.Second)

	b.Do(fail)
	require.Equal(t, StateOpen, b.State())

	// the cooldown restarts from the failed probe
	clock.Advance(5 * time.Second)
	assert.ErrorIs(t, b.Do(ok), ErrCircuitOpen)
}
