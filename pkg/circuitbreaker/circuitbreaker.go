// Package circuitbreaker guards the persistent account endpoint store.
// After enough consecutive failures the breaker opens and calls fail
// fast, letting negotiation fall back to the in-memory cache until the
// backend answers again.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	// StateClosed passes every call through.
	StateClosed State = iota
	// StateOpen rejects every call until Timeout elapses.
	StateOpen
	// StateHalfOpen lets a handful of trial calls probe the backend.
	StateHalfOpen
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

// Config tunes the trip and recovery thresholds.
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // trial successes needed to close again
	Timeout          time.Duration // open period before trial calls start
	MaxTrialRequests int           // call budget while half-open
}

// DefaultConfig matches the account store's tolerance for a Redis blip.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MaxTrialRequests: 3,
	}
}

// CircuitBreaker serializes state transitions behind one mutex.
type CircuitBreaker struct {
	cfg Config

	mu            sync.RWMutex
	state         State
	failures      int
	successes     int
	trialRequests int
	changedAt     time.Time

	onStateChange func(from, to State)
}

func New(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:       cfg,
		state:     StateClosed,
		changedAt: time.Now(),
	}
}

// OnStateChange registers a callback fired on every transition.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Execute runs fn if the breaker admits the call and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	_, err := Do(ctx, cb, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Do is Execute for calls that produce a value.
func Do[T any](ctx context.Context, cb *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if !cb.admit() {
		return zero, fmt.Errorf("circuit breaker is %s, request rejected", cb.GetState())
	}

	result, err := fn()
	if err != nil {
		cb.recordFailure()
		return zero, fmt.Errorf("circuit breaker execution failed: %w", err)
	}

	cb.recordSuccess()
	return result, nil
}

// admit decides whether the call may proceed, moving an expired open
// breaker to half-open on the way.
func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.changedAt) >= cb.cfg.Timeout {
			cb.transitionTo(StateHalfOpen)
			cb.trialRequests++
			return true
		}
		return false
	case StateHalfOpen:
		if cb.trialRequests >= cb.cfg.MaxTrialRequests {
			return false
		}
		cb.trialRequests++
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.successes = 0

	switch {
	case cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold:
		cb.transitionTo(StateOpen)
	case cb.state == StateHalfOpen:
		// one failed trial call reopens the breaker
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes++
	cb.failures = 0

	if cb.state == StateHalfOpen && cb.successes >= cb.cfg.SuccessThreshold {
		cb.transitionTo(StateClosed)
	}
}

// transitionTo must be called with the mutex held.
func (cb *CircuitBreaker) transitionTo(next State) {
	if cb.state == next {
		return
	}

	prev := cb.state
	cb.state = next
	cb.changedAt = time.Now()
	cb.failures = 0
	cb.successes = 0
	cb.trialRequests = 0

	if cb.onStateChange != nil {
		go cb.onStateChange(prev, next)
	}
}

// GetState reports the current breaker position.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}
