package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/transcribe-client/internal/observability"
)

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker is open")

// State represents the state of a circuit breaker
type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Calls fail immediately
	StateHalfOpen              // One probe is allowed through
)

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

// Breaker stops background callers from hitting a service that keeps
// failing. After maxFailures consecutive failures it opens; once cooldown
// has passed a single probe is let through, and its outcome closes or
// re-opens the circuit.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	probing      bool
	requests     int64
	failureTotal int64
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	b := &Breaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		now:         time.Now,
		logger:      observability.WithComponent("breaker").With().Str("breaker", name).Logger(),
	}
	observability.SetBreakerState(name, int(StateClosed))
	return b
}

// Do runs fn unless the circuit is open. Context cancellation is not
// counted as a failure.
func (b *Breaker) Do(fn func() error) error {
	if !b.allow() {
		return ErrOpen
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

// Stats returns the call and failure totals.
func (b *Breaker) Stats() (requests, failures int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests, b.failureTotal
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests++
	if b.state == StateHalfOpen {
		b.probing = false
	}
	if err == nil || isCancellation(err) {
		b.failures = 0
		if b.state == StateHalfOpen && err == nil {
			b.transition(StateClosed)
		}
		return
	}

	b.failureTotal++
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.maxFailures {
		b.openedAt = b.now()
		if b.state != StateOpen {
			b.transition(StateOpen)
		}
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	observability.SetBreakerState(b.name, int(to))
	b.logger.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Int("consecutive_failures", b.failures).
		Msg("Circuit breaker state changed")
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
