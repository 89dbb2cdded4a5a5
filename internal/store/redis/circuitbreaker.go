package redis

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Do while the breaker is shedding calls.
var ErrCircuitOpen = errors.New("redis: circuit open")

// State of the breaker. The integer values feed straight into the
// redis_circuit_state gauge.
type State int

const (
	StateClosed   State = iota // calls pass through
	StateOpen                  // calls shed until the cooldown elapses
	StateHalfOpen              // single probe call in flight
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

// Breaker sheds calls to a flaky backend. It opens after `threshold`
// consecutive failures, rejects everything for `cooldown`, then lets one
// probe through: a successful probe closes it, a failed one re-opens it.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	// OnTransition fires on every state change. Set before first use.
	OnTransition func(from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// Do runs fn unless the breaker is open. fn's error both propagates to the
// caller and counts against the failure threshold.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.state == StateOpen {
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.openedAt = time.Now()
		if b.state == StateHalfOpen || b.failures >= b.threshold {
			b.setState(StateOpen)
		}
		return err
	}
	b.failures = 0
	if b.state != StateClosed {
		b.setState(StateClosed)
	}
	return nil
}

// State reports the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// setState runs with b.mu held.
func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	if b.OnTransition != nil {
		b.OnTransition(from, to)
	}
}
