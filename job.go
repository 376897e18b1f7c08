package qbridge

import (
	"context"
	"time"
)

// Job is a unit of work executed by the pool.
type Job struct {
	ID          string
	Fn          func(ctx context.Context) (any, error)
	RetryPolicy *RetryPolicy
	CircuitID   string
	TTL         time.Duration
	Timeout     time.Duration
	Attempt     int
	LastError   error
	StartTime   time.Time
}

// JobOption configures a Job before it is queued.
type JobOption func(*Job)

// WithJobTimeout bounds every attempt of the job, including retries.
func WithJobTimeout(timeout time.Duration) JobOption {
	return func(j *Job) {
		j.Timeout = timeout
	}
}
