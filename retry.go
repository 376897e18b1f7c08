package qbridge

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryPolicy defines how often and how patiently a job is retried.
type RetryPolicy struct {
	MaxAttempts int
	Strategy    RetryStrategy
	// Filter reports whether err is worth another attempt.
	Filter func(error) bool
}

// RetryStrategy computes the delay before a retry.
type RetryStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff doubles the delay with every attempt.
type ExponentialBackoff struct {
	Initial time.Duration
}

func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	return eb.Initial * time.Duration(math.Pow(2, float64(attempt-1)))
}

// Retryable is the default filter: malformed input, oversized registers and
// cancellation are never retried.
func Retryable(err error) bool {
	return !isPermanent(err) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func (rp *RetryPolicy) retryable(err error) bool {
	if rp.Filter == nil {
		return Retryable(err)
	}
	return rp.Filter(err)
}

// WithCircuitBreaker routes the job through the breaker registered under id.
func WithCircuitBreaker(id string) JobOption {
	return func(j *Job) {
		j.CircuitID = id
	}
}

// WithRetry configures retry behavior for a job.
func WithRetry(attempts int, strategy RetryStrategy) JobOption {
	return func(j *Job) {
		j.RetryPolicy = &RetryPolicy{
			MaxAttempts: max(attempts, 1),
			Strategy:    strategy,
		}
	}
}
