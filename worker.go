package qbridge

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Worker executes jobs taken from its pool's queue.
type Worker struct {
	id   int
	pool *Q
}

func (w *Worker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.pool.jobs:
			w.pool.active.Add(1)
			value, err := w.processJob(ctx, job)
			w.pool.active.Add(-1)

			w.pool.space.Store(job.ID, value, err, job.TTL)
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job Job) (any, error) {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	value, err := w.executeWithRetries(ctx, job)

	label := job.CircuitID
	if label == "" {
		label = "pool"
	}
	w.pool.metrics.recordJob(label, job.StartTime, err)

	return value, err
}

func (w *Worker) executeWithRetries(ctx context.Context, job Job) (any, error) {
	var breaker *CircuitBreaker
	if job.CircuitID != "" {
		breaker = w.pool.Breaker(job.CircuitID)
	}

	policy := job.RetryPolicy
	if policy == nil {
		policy = &RetryPolicy{MaxAttempts: 1}
	}

	for job.Attempt = 0; job.Attempt < policy.MaxAttempts; job.Attempt++ {
		if job.Attempt > 0 {
			if err := w.backoff(ctx, policy, job); err != nil {
				return nil, fmt.Errorf("job %s: %w", job.ID, job.LastError)
			}

			if breaker != nil && !breaker.Allow() {
				return nil, fmt.Errorf("job %s: %w: %s", job.ID, ErrCircuitOpen, job.CircuitID)
			}
		}

		value, err := job.Fn(ctx)
		if err == nil {
			if breaker != nil {
				breaker.RecordSuccess()
			}
			return value, nil
		}

		job.LastError = err

		if !policy.retryable(err) {
			return nil, err
		}

		log.Printf("job %s attempt %d failed: %v", job.ID, job.Attempt+1, err)

		if breaker != nil {
			breaker.RecordFailure()
		}
	}

	return nil, fmt.Errorf("all retries failed for job %s: %w", job.ID, job.LastError)
}

func (w *Worker) backoff(ctx context.Context, policy *RetryPolicy, job Job) error {
	if policy.Strategy == nil {
		return ctx.Err()
	}

	delay := policy.Strategy.NextDelay(job.Attempt)
	log.Printf("job %s retrying attempt %d after %v", job.ID, job.Attempt+1, delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
