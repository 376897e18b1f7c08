package qbridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/theapemachine/errnie"
)

// ErrThrottled is returned when a regulator refuses new work.
var ErrThrottled = errors.New("job pool is throttled")

const (
	defaultResultTTL         = time.Minute
	metricsInterval          = 500 * time.Millisecond
	defaultSchedulingTimeout = 5 * time.Second
)

/*
Q is a fixed-size worker pool. Jobs are queued, picked up by the first free
worker, retried according to their policy and guarded by a per-id circuit
breaker. Results land in a Space where callers await them.
*/
type Q struct {
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	jobs       chan Job
	space      *Space
	metrics    *Metrics
	config     *Config
	breakers   map[string]*CircuitBreaker
	breakersMu sync.Mutex
	regulators []Regulator
	workers    int
	active     atomic.Int64
	closed     atomic.Bool
}

// QOption configures a pool.
type QOption func(*Q)

// WithRegulators makes Schedule consult the given regulators before queueing.
func WithRegulators(regulators ...Regulator) QOption {
	return func(q *Q) {
		q.regulators = append(q.regulators, regulators...)
	}
}

func NewQ(ctx context.Context, config *Config, metrics *Metrics, opts ...QOption) *Q {
	if config == nil {
		config = NewConfig()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	ctx, cancel := context.WithCancel(ctx)

	q := &Q{
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(chan Job, config.Workers*10),
		space:    newSpace(ctx, time.Minute),
		metrics:  metrics,
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
		workers:  max(config.Workers, 1),
	}

	for _, opt := range opts {
		opt(q)
	}

	for _, regulator := range q.regulators {
		regulator.Observe(metrics)
	}

	for i := 0; i < q.workers; i++ {
		q.startWorker(i)
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.collectMetrics()
	}()

	errnie.Info("job pool started with %d workers", q.workers)

	return q
}

// Metrics returns the metrics the pool reports to.
func (q *Q) Metrics() *Metrics {
	return q.metrics
}

/*
Schedule queues fn under id and returns the channel its Result arrives on.
Scheduling failures (closed pool, open breaker, throttling or a full queue
past the scheduling timeout) arrive on the same channel.
*/
func (q *Q) Schedule(id string, fn func(ctx context.Context) (any, error), opts ...JobOption) <-chan Result {
	job := Job{
		ID: id,
		Fn: fn,
		RetryPolicy: &RetryPolicy{
			MaxAttempts: max(q.config.Retry.MaxAttempts, 1),
			Strategy:    &ExponentialBackoff{Initial: q.config.Retry.Initial},
		},
		TTL:       defaultResultTTL,
		Timeout:   q.config.JobTimeout,
		StartTime: time.Now(),
	}

	for _, opt := range opts {
		opt(&job)
	}

	if q.closed.Load() {
		return failed(ErrPoolClosed)
	}

	if job.CircuitID != "" && !q.Breaker(job.CircuitID).Allow() {
		return failed(fmt.Errorf("%w: %s", ErrCircuitOpen, job.CircuitID))
	}

	for _, regulator := range q.regulators {
		if regulator.Limit() {
			return failed(ErrThrottled)
		}
	}

	// Register the waiter before the job can possibly finish.
	result := q.space.Await(id)

	timer := time.NewTimer(q.schedulingTimeout())
	defer timer.Stop()

	select {
	case q.jobs <- job:
		return result
	case <-q.ctx.Done():
		q.space.Store(id, nil, ErrPoolClosed, job.TTL)
	case <-timer.C:
		log.Printf("no worker picked up job %s within %v", id, q.schedulingTimeout())
		q.space.Store(id, nil, fmt.Errorf("job scheduling timeout for %s", id), job.TTL)
	}

	return result
}

/*
Breaker returns the circuit breaker registered under id, creating it from the
configured breaker settings on first use.
*/
func (q *Q) Breaker(id string) *CircuitBreaker {
	q.breakersMu.Lock()
	defer q.breakersMu.Unlock()

	breaker, ok := q.breakers[id]
	if !ok {
		breaker = NewCircuitBreaker(id, q.config.Breaker)
		breaker.Observe(q.metrics)
		q.breakers[id] = breaker
	}

	return breaker
}

// Forget releases a result the caller has consumed.
func (q *Q) Forget(id string) {
	q.space.Forget(id)
}

func (q *Q) startWorker(id int) {
	worker := &Worker{id: id, pool: q}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		worker.run(q.ctx)
	}()
}

func (q *Q) collectMetrics() {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.metrics.setWorkers(q.workers, int(q.active.Load()), len(q.jobs))

			for _, regulator := range q.regulators {
				regulator.Renormalize()
			}
		}
	}
}

func (q *Q) schedulingTimeout() time.Duration {
	if q.config.SchedulingTimeout > 0 {
		return q.config.SchedulingTimeout
	}
	return defaultSchedulingTimeout
}

// Close stops the workers and waits for every pool goroutine to exit.
func (q *Q) Close() {
	if q == nil || !q.closed.CompareAndSwap(false, true) {
		return
	}

	q.cancel()
	q.wg.Wait()
	q.space.wait()

	for drained := false; !drained; {
		select {
		case job := <-q.jobs:
			q.space.Store(job.ID, nil, ErrPoolClosed, job.TTL)
		default:
			drained = true
		}
	}

	errnie.Info("job pool closed")
}

func failed(err error) <-chan Result {
	ch := make(chan Result, 1)
	ch <- Result{Error: err, CreatedAt: time.Now()}
	close(ch)
	return ch
}
