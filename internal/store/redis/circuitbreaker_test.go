package redis

import (
	"errors"
	"testing"
	"time"
)

var errWrite = errors.New("write failed")

// newTestBreaker pins the clock so the reset timeout can be crossed
// without sleeping.
func newTestBreaker(maxFailures int, resetTimeout time.Duration) (*CircuitBreaker, *time.Time) {
	cb := NewCircuitBreaker(maxFailures, resetTimeout)
	now := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func trip(t *testing.T, cb *CircuitBreaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := cb.Execute(func() error { return errWrite }); !errors.Is(err, errWrite) {
			t.Fatalf("tripping call %d: err = %v, want errWrite", i, err)
		}
	}
}

func TestCircuitBreaker_StartsClosed(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)
	if cb.CurrentState() != StateClosed {
		t.Errorf("initial state = %v, want closed", cb.CurrentState())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("successful call through closed breaker: %v", err)
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	trip(t, cb, 2)
	if cb.CurrentState() != StateClosed {
		t.Fatalf("state after 2 failures = %v, want closed", cb.CurrentState())
	}

	trip(t, cb, 1)
	if cb.CurrentState() != StateOpen {
		t.Fatalf("state after 3 failures = %v, want open", cb.CurrentState())
	}

	// Open breaker rejects without invoking fn.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn invoked while breaker open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	trip(t, cb, 2)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	trip(t, cb, 2)
	if cb.CurrentState() != StateClosed {
		t.Errorf("state = %v, want closed (count reset by success)", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)
	trip(t, cb, 1)
	if cb.CurrentState() != StateOpen {
		t.Fatal("breaker should be open")
	}

	// Probe failure reopens immediately.
	*now = now.Add(2 * time.Minute)
	trip(t, cb, 1)
	if cb.CurrentState() != StateOpen {
		t.Errorf("state after failed probe = %v, want open", cb.CurrentState())
	}

	// Probe success closes.
	*now = now.Add(2 * time.Minute)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("state after successful probe = %v, want closed", cb.CurrentState())
	}
}

func TestCircuitBreaker_StateChangeHook(t *testing.T) {
	cb, now := newTestBreaker(1, time.Minute)

	var transitions []string
	cb.OnStateChange = func(from, to State) {
		transitions = append(transitions, from.String()+">"+to.String())
	}

	trip(t, cb, 1)
	*now = now.Add(2 * time.Minute)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatal(err)
	}

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}
