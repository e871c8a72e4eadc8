package errors

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// ErrorThreshold is the failure ratio that opens a closed breaker.
	ErrorThreshold = 0.5
	// MinRequests is how many outcomes a closed breaker needs before judging the ratio.
	MinRequests = 10
	// TimeoutDuration is the default time an open breaker waits before probing.
	TimeoutDuration = 30 * time.Second
	// HalfOpenMaxRequests probes must succeed in a row to close the breaker.
	HalfOpenMaxRequests = 3
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var (
	// ErrCircuitOpen is returned while the breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyProbes is returned in half-open while all probe slots are taken.
	ErrTooManyProbes = errors.New("circuit breaker is probing")
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker stops calling a failing dependency once the failure ratio crosses
// ErrorThreshold and lets a few probes through after the open timeout.
type CircuitBreaker struct {
	name          string
	openTimeout   time.Duration
	onStateChange func(name string, from, to State)
	isFailure     func(error) bool
	now           func() time.Time

	mu        sync.Mutex
	state     State
	openedAt  time.Time
	total     int
	failures  int
	probing   int
	succeeded int
}

// BreakerOption customizes a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithOpenTimeout overrides how long the breaker stays open.
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) { cb.openTimeout = d }
}

// WithStateChange registers a callback fired on every state change. It runs under the
// breaker lock and must not call back into the breaker.
func WithStateChange(fn func(name string, from, to State)) BreakerOption {
	return func(cb *CircuitBreaker) { cb.onStateChange = fn }
}

// WithFailureFilter decides which errors count against the dependency.
func WithFailureFilter(fn func(error) bool) BreakerOption {
	return func(cb *CircuitBreaker) { cb.isFailure = fn }
}

// NewCircuitBreaker creates a closed breaker. By default every error except a
// cancelled caller context counts as a failure.
func NewCircuitBreaker(name string, opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:        name,
		openTimeout: TimeoutDuration,
		isFailure:   func(err error) bool { return !errors.Is(err, context.Canceled) },
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Call runs fn unless the breaker is open and records its outcome.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}

	probe, err := cb.admit()
	if err != nil {
		return err
	}

	callErr := fn()
	cb.record(probe, callErr != nil && cb.isFailure(callErr))
	return callErr
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.openTimeout {
			return false, ErrCircuitOpen
		}
		cb.moveLocked(StateHalfOpen)
	}

	if cb.state == StateHalfOpen {
		if cb.probing+cb.succeeded >= HalfOpenMaxRequests {
			return false, ErrTooManyProbes
		}
		cb.probing++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) record(probe, failed bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing--
		if cb.state != StateHalfOpen {
			return
		}
		switch {
		case failed:
			cb.moveLocked(StateOpen)
		case cb.succeeded+1 >= HalfOpenMaxRequests:
			cb.moveLocked(StateClosed)
		default:
			cb.succeeded++
		}
		return
	}

	if cb.state != StateClosed {
		return
	}
	cb.total++
	if failed {
		cb.failures++
	}
	if cb.total >= MinRequests && float64(cb.failures)/float64(cb.total) >= ErrorThreshold {
		cb.moveLocked(StateOpen)
	}
}

// moveLocked switches state and starts a fresh count for it.
func (cb *CircuitBreaker) moveLocked(next State) {
	prev := cb.state
	cb.state = next
	cb.total, cb.failures, cb.succeeded = 0, 0, 0
	if next == StateOpen {
		cb.openedAt = cb.now()
	}
	if prev != next && cb.onStateChange != nil {
		cb.onStateChange(cb.name, prev, next)
	}
}
