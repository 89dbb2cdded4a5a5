package redis

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, 100*time.Millisecond)
	if b.State() != StateClosed {
		t.Fatalf("new breaker state = %v, want closed", b.State())
	}

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return errBackend }); err != errBackend {
			t.Fatalf("failure %d: err = %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state after threshold = %v, want open", b.State())
	}

	// While open, calls are shed without invoking fn.
	called := false
	err := b.Do(func() error { called = true; return nil })
	if err != ErrCircuitOpen {
		t.Fatalf("shed call err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("fn ran while the breaker was open")
	}
}

func TestBreakerProbeClosesOnSuccess(t *testing.T) {
	b := NewBreaker(2, 40*time.Millisecond)
	b.Do(func() error { return errBackend })
	b.Do(func() error { return errBackend })

	time.Sleep(50 * time.Millisecond)

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("probe err = %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state after good probe = %v, want closed", b.State())
	}
}

func TestBreakerProbeReopensOnFailure(t *testing.T) {
	b := NewBreaker(2, 40*time.Millisecond)
	b.Do(func() error { return errBackend })
	b.Do(func() error { return errBackend })

	time.Sleep(50 * time.Millisecond)
	b.Do(func() error { return errBackend })

	if b.State() != StateOpen {
		t.Fatalf("state after failed probe = %v, want open", b.State())
	}
}

func TestBreakerCountsConsecutiveFailuresOnly(t *testing.T) {
	b := NewBreaker(3, 100*time.Millisecond)

	b.Do(func() error { return errBackend })
	b.Do(func() error { return errBackend })
	b.Do(func() error { return nil }) // resets the streak
	b.Do(func() error { return errBackend })
	b.Do(func() error { return errBackend })

	if b.State() != StateClosed {
		t.Fatalf("state = %v, interleaved success should keep it closed", b.State())
	}
}

func TestBreakerTransitionCallback(t *testing.T) {
	var seen []State
	b := NewBreaker(1, 40*time.Millisecond)
	b.OnTransition = func(from, to State) { seen = append(seen, to) }

	b.Do(func() error { return errBackend })
	time.Sleep(50 * time.Millisecond)
	b.Do(func() error { return nil })

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transition %d = %v, want %v", i, seen[i], want[i])
		}
	}
}
