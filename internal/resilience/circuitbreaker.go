// Package resilience provides circuit breaker primitives for the storage
// layer.
//
// The central type is [CircuitBreaker], a classic three-state breaker
// (closed → open → half-open). [GuardedCache] wraps the embedding cache
// with one so that a repeatedly failing database degrades the pipeline to
// cache-miss behavior instead of adding a timeout to every batch.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is in
// the open state and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed is the normal operating state. All calls are forwarded.
	StateClosed State = iota

	// StateOpen means the breaker has tripped. Calls are rejected with
	// [ErrCircuitOpen] until the reset timeout elapses.
	StateOpen

	// StateHalfOpen admits a limited number of trial calls after the reset
	// timeout. If they all succeed the breaker closes, otherwise it re-opens.
	StateHalfOpen
)

// String returns the human-readable name of the state.
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

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before admitting trial
	// calls again. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is how many trial calls the half-open state admits, and how
	// many must succeed for the breaker to close. Default: 3.
	HalfOpenMax int
}

// CircuitBreaker implements the three-state circuit breaker pattern.
// It is safe for concurrent use from multiple goroutines.
type CircuitBreaker struct {
	name      string
	failLimit int
	cooldown  time.Duration
	trialMax  int

	mu       sync.Mutex
	state    State
	streak   int // consecutive failures while closed
	lastFail time.Time
	trials   int // calls admitted in the current half-open phase
	trialOK  int // successful calls in the current half-open phase
}

// NewCircuitBreaker creates a [CircuitBreaker] with the supplied configuration.
// Zero-value config fields are replaced with sensible defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:      cfg.Name,
		failLimit: cfg.MaxFailures,
		cooldown:  cfg.ResetTimeout,
		trialMax:  cfg.HalfOpenMax,
		state:     StateClosed,
	}
	if cb.failLimit <= 0 {
		cb.failLimit = 5
	}
	if cb.cooldown <= 0 {
		cb.cooldown = 30 * time.Second
	}
	if cb.trialMax <= 0 {
		cb.trialMax = 3
	}
	return cb
}

// Execute runs fn if the breaker admits the call, otherwise it returns
// [ErrCircuitOpen] without calling fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(err, trial)
	return err
}

// admit decides whether a call may proceed, performing the open → half-open
// transition when the cooldown has elapsed. It reports whether the admitted
// call counts as a half-open trial.
func (cb *CircuitBreaker) admit() (trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFail) < cb.cooldown {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.trials = 0
		cb.trialOK = 0
		slog.Info("circuit breaker transitioning to half-open", "name", cb.name)
	}

	if cb.state == StateHalfOpen {
		if cb.trials >= cb.trialMax {
			// Trial budget spent; an outcome decides the next state.
			return false, ErrCircuitOpen
		}
		cb.trials++
		return true, nil
	}

	return false, nil
}

// settle records the outcome of an admitted call and drives the resulting
// state transitions.
func (cb *CircuitBreaker) settle(callErr error, trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if callErr != nil {
		cb.lastFail = time.Now()
		if trial {
			// One failed trial is enough to re-open.
			cb.state = StateOpen
			cb.streak = cb.failLimit
			slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)
			return
		}
		cb.streak++
		if cb.streak >= cb.failLimit {
			cb.state = StateOpen
			slog.Warn("circuit breaker opened",
				"name", cb.name,
				"consecutive_failures", cb.streak)
		}
		return
	}

	if trial {
		cb.trialOK++
		if cb.trialOK >= cb.trialMax {
			cb.state = StateClosed
			cb.streak = 0
			cb.trials = 0
			cb.trialOK = 0
			slog.Info("circuit breaker closed after successful trials", "name", cb.name)
		}
		return
	}
	cb.streak = 0
}

// State returns the current [State] of the breaker. If the breaker is open and
// the reset timeout has elapsed, the returned state is [StateHalfOpen] (the
// actual transition happens on the next [Execute] call).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFail) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset manually forces the breaker back to [StateClosed], clearing all
// failure counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.streak = 0
	cb.trials = 0
	cb.trialOK = 0
	slog.Info("circuit breaker manually reset", "name", cb.name)
}
