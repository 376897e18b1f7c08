package qbridge

import (
	"log"
	"sync"
	"time"
)

// CircuitState is the operating mode of a backend's breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // jobs flow normally
	CircuitOpen                         // backend is failing, jobs are rejected
	CircuitHalfOpen                     // probing whether the backend recovered
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

/*
CircuitBreaker guards a single execution backend. After maxFailures
consecutive failed jobs it opens and rejects work until resetTimeout has
passed, then lets halfOpenMax probe jobs through before closing again.
It also satisfies Regulator so the pool can treat it like its other
regulators.
*/
type CircuitBreaker struct {
	mu               sync.Mutex
	name             string
	maxFailures      int
	resetTimeout     time.Duration
	halfOpenMax      int
	failureCount     int
	state            CircuitState
	openTime         time.Time
	halfOpenAttempts int
	metrics          *Metrics
	now              func() time.Time
}

func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  max(cfg.MaxFailures, 1),
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  max(cfg.HalfOpenMax, 1),
		state:        CircuitClosed,
		now:          time.Now,
	}
}

// Observe attaches the metrics the breaker publishes its state to.
func (cb *CircuitBreaker) Observe(metrics *Metrics) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.metrics = metrics
	cb.publish()
}

func (cb *CircuitBreaker) Limit() bool {
	return !cb.Allow()
}

// Renormalize moves an open breaker to half-open once the reset timeout passed.
func (cb *CircuitBreaker) Renormalize() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.tryHalfOpen()
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++

	switch cb.state {
	case CircuitHalfOpen:
		cb.open()
		log.Printf("circuit breaker %s reopened after failed probe", cb.name)
	case CircuitClosed:
		if cb.failureCount >= cb.maxFailures {
			cb.open()
			log.Printf("circuit breaker %s opened after %d failures", cb.name, cb.failureCount)
		}
	}
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.halfOpenAttempts++
		if cb.halfOpenAttempts >= cb.halfOpenMax {
			cb.state = CircuitClosed
			cb.failureCount = 0
			cb.halfOpenAttempts = 0
			cb.publish()
			log.Printf("circuit breaker %s closed", cb.name)
		}
	case CircuitClosed:
		cb.failureCount = 0
	}
}

// Allow reports whether a job may run against the backend now.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		return cb.tryHalfOpen()
	case CircuitHalfOpen:
		return cb.halfOpenAttempts < cb.halfOpenMax
	default:
		return false
	}
}

func (cb *CircuitBreaker) open() {
	cb.state = CircuitOpen
	cb.openTime = cb.now()
	cb.halfOpenAttempts = 0
	cb.publish()
}

// tryHalfOpen must be called with mu held.
func (cb *CircuitBreaker) tryHalfOpen() bool {
	if cb.state != CircuitOpen || cb.now().Sub(cb.openTime) <= cb.resetTimeout {
		return cb.state != CircuitOpen
	}

	cb.state = CircuitHalfOpen
	cb.halfOpenAttempts = 0
	cb.publish()

	return true
}

func (cb *CircuitBreaker) publish() {
	if cb.metrics != nil {
		cb.metrics.setBreakerState(cb.name, cb.state)
	}
}
