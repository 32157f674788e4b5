package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := NewBreaker("test", maxFailures, cooldown)
	b.now = clock.now
	return b, clock
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestBreaker_StartsClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	if b.State() != StateClosed {
		t.Errorf("Expected initial state to be closed, got %s", b.State())
	}
	if err := b.Do(succeed); err != nil {
		t.Errorf("Expected call to pass through, got %v", err)
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	b.Do(fail)
	b.Do(fail)
	if b.State() != StateClosed {
		t.Error("Expected state to still be closed after 2 failures")
	}

	b.Do(fail)
	if b.State() != StateOpen {
		t.Fatalf("Expected state to be open after 3 failures, got %s", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("Expected open breaker to skip the call")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	b.Do(fail)
	b.Do(fail)
	b.Do(succeed)
	b.Do(fail)
	b.Do(fail)

	if b.State() != StateClosed {
		t.Errorf("Expected non-consecutive failures to keep the breaker closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbeCloses(t *testing.T) {
	b, clock := newTestBreaker(1, 10*time.Second)

	b.Do(fail)
	if b.State() != StateOpen {
		t.Fatal("Expected circuit to be open")
	}

	clock.advance(5 * time.Second)
	if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen during cooldown, got %v", err)
	}

	clock.advance(5 * time.Second)
	if err := b.Do(succeed); err != nil {
		t.Errorf("Expected probe to run after cooldown, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("Expected successful probe to close the breaker, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbeFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(2, time.Second)

	b.Do(fail)
	b.Do(fail)
	clock.advance(time.Second)

	if err := b.Do(fail); !errors.Is(err, errBoom) {
		t.Errorf("Expected probe error, got %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("Expected failed probe to reopen, got %s", b.State())
	}
	if err := b.Do(succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("Expected reopened breaker to wait a new cooldown, got %v", err)
	}
}

func TestBreaker_OneProbeAtATime(t *testing.T) {
	b, clock := newTestBreaker(1, time.Second)
	b.Do(fail)
	clock.advance(time.Second)

	var inner error
	b.Do(func() error {
		inner = b.Do(succeed)
		return nil
	})
	if !errors.Is(inner, ErrOpen) {
		t.Errorf("Expected concurrent probe to be rejected, got %v", inner)
	}
}

func TestBreaker_CancellationIsNotAFailure(t *testing.T) {
	b, _ := newTestBreaker(1, time.Second)

	b.Do(func() error { return context.Canceled })
	if b.State() != StateClosed {
		t.Errorf("Expected cancellation to leave the breaker closed, got %s", b.State())
	}

	requests, failures := b.Stats()
	if requests != 1 || failures != 0 {
		t.Errorf("Expected 1 request and 0 failures, got %d and %d", requests, failures)
	}
}
