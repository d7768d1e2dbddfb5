package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BreakerState is the state of a CircuitBreaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "closed"
}

// ErrCircuitOpen is returned without calling the provider while its breaker
// is open.
type ErrCircuitOpen struct {
	Provider string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("llm: circuit open for provider %s", e.Provider)
}

// CircuitBreaker stops calling a provider after consecutive failures and
// probes it again once the reset timeout elapsed.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	successes    int
	threshold    int
	resetTimeout time.Duration
	halfOpenMax  int
	lastFailure  time.Time
	now          func() time.Time
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerThreshold sets the failure count that opens the breaker.
func WithBreakerThreshold(n int) BreakerOption {
	return func(cb *CircuitBreaker) { cb.threshold = n }
}

// WithBreakerResetTimeout sets how long the breaker stays open.
func WithBreakerResetTimeout(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) { cb.resetTimeout = d }
}

// WithBreakerClock replaces time.Now.
func WithBreakerClock(fn func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) { cb.now = fn }
}

// NewCircuitBreaker opens after 5 failures, stays open 30s and needs one
// successful probe to close.
func NewCircuitBreaker(opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		threshold:    5,
		resetTimeout: 30 * time.Second,
		halfOpenMax:  1,
		now:          time.Now,
	}
	for _, o := range opts {
		o(cb)
	}
	return cb
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()
	return cb.state
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()
	return cb.state != BreakerOpen
}

// Record updates the breaker with the outcome of a call.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err == nil {
		switch cb.state {
		case BreakerHalfOpen:
			cb.successes++
			if cb.successes >= cb.halfOpenMax {
				cb.state, cb.failures, cb.successes = BreakerClosed, 0, 0
			}
		case BreakerClosed:
			cb.failures = 0
		}
		return
	}
	cb.lastFailure = cb.now()
	switch cb.state {
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.state = BreakerOpen
		}
	case BreakerHalfOpen:
		cb.state, cb.successes = BreakerOpen, 0
	}
}

// must hold mu
func (cb *CircuitBreaker) maybeHalfOpen() {
	if cb.state == BreakerOpen && cb.now().Sub(cb.lastFailure) >= cb.resetTimeout {
		cb.state, cb.successes = BreakerHalfOpen, 0
	}
}

// WithCircuitBreaker guards a provider with cb. Cancellations by the caller
// are not counted as provider failures.
func WithCircuitBreaker(cb *CircuitBreaker) Middleware {
	return func(next Provider) Provider {
		return ProviderFunc{ProviderName: next.Name(), Fn: func(ctx context.Context, req Request, onDelta func(string)) (*Completion, error) {
			if !cb.Allow() {
				return nil, &ErrCircuitOpen{Provider: next.Name()}
			}
			c, err := next.Complete(ctx, req, onDelta)
			if err != nil && ctx.Err() != nil {
				return c, err
			}
			cb.Record(err)
			return c, err
		}}
	}
}
