package redis

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker state, exported as a gauge value.
type State int

const (
	StateClosed   State = 0 // writes pass through
	StateOpen     State = 1 // writes rejected until the cooldown ends
	StateHalfOpen State = 2 // a single probe write is in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrCircuitOpen is returned without attempting the write while the breaker
// is open or a probe is already in flight.
var ErrCircuitOpen = errors.New("redis: circuit breaker is open")

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// MaxFailures within FailureWindow trips the breaker.
	MaxFailures int
	// FailureWindow bounds how far back failures count. Zero counts every
	// failure since the last success.
	FailureWindow time.Duration
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration
}

// Breaker guards the display handoff so a Redis outage costs one fast
// rejection per signal instead of a dial timeout. Any success clears the
// failure record.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures []time.Time
	openedAt time.Time

	OnStateChange func(from, to State) // called with the lock held
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures < 1 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now, failures: make([]time.Time, 0, cfg.MaxFailures)}
}

// Do runs fn unless the breaker rejects it.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		return ErrCircuitOpen
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if err == nil {
		b.failures = b.failures[:0]
		if b.state != StateClosed {
			b.setState(StateClosed)
		}
		return
	}

	if b.state == StateHalfOpen {
		b.trip(now)
		return
	}

	if w := b.cfg.FailureWindow; w > 0 {
		cutoff := now.Add(-w)
		keep := b.failures[:0]
		for _, t := range b.failures {
			if t.After(cutoff) {
				keep = append(keep, t)
			}
		}
		b.failures = keep
	}
	b.failures = append(b.failures, now)
	if len(b.failures) >= b.cfg.MaxFailures {
		b.trip(now)
	}
}

func (b *Breaker) trip(now time.Time) {
	b.openedAt = now
	b.failures = b.failures[:0]
	b.setState(StateOpen)
}

func (b *Breaker) setState(to State) {
	from := b.state
	b.state = to
	if b.OnStateChange != nil && from != to {
		b.OnStateChange(from, to)
	}
}
