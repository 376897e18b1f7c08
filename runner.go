package qbridge

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/theapemachine/errnie"
)

// Execution is the outcome of one computation on a backend.
type Execution struct {
	JobID       string
	Results     Histogram
	Device      string
	Provider    string
	RealQuantum bool
	Shots       int
	Duration    time.Duration
	// FallbackFrom names the backend that failed before the simulator took over.
	FallbackFrom string
}

/*
Runner executes circuits through the job pool on the configured backend.
When a backend other than the simulator still fails once its retries are
spent, the same circuit is run on the simulator instead. Validation and
resource errors, and a cancelled caller, are returned without a fallback.
Simulator jobs get a single attempt.
*/
type Runner struct {
	config   *Config
	backends *Backends
	pool     *Q
}

func NewRunner(config *Config, backends *Backends, pool *Q) *Runner {
	return &Runner{config: config, backends: backends, pool: pool}
}

// Backends returns the backend registry the runner dispatches to.
func (r *Runner) Backends() *Backends {
	return r.backends
}

// Run executes c with shots measurements and waits for the result.
func (r *Runner) Run(ctx context.Context, c *Circuit, shots int) (*Execution, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if shots <= 0 {
		return nil, validationErrorf("shots", "must be positive, got %d", shots)
	}

	backend, err := r.backends.Get(r.config.Backend)
	if err != nil {
		log.Printf("runner: %v, using the simulator", err)

		if backend, err = r.backends.Get(SimulatorBackendName); err != nil {
			return nil, err
		}
	}

	id := "job_" + uuid.NewString()

	execution, err := r.execute(ctx, id, backend, c, shots)
	if err == nil || backend.IsSimulator() || isPermanent(err) || ctx.Err() != nil {
		return execution, err
	}

	log.Printf("runner: backend %s failed for %s, falling back to the simulator: %v", backend.Name(), id, err)
	r.pool.Metrics().recordFallback()

	simulator, serr := r.backends.Get(SimulatorBackendName)
	if serr != nil {
		return nil, fmt.Errorf("backend %s: %w", backend.Name(), err)
	}

	execution, err = r.execute(ctx, id+"_fallback", simulator, c, shots)
	if err != nil {
		return nil, err
	}

	execution.JobID = id
	execution.FallbackFrom = backend.Name()

	return execution, nil
}

func (r *Runner) execute(
	ctx context.Context, id string, backend Backend, c *Circuit, shots int,
) (*Execution, error) {
	start := time.Now()

	opts := []JobOption{WithCircuitBreaker(backend.Name())}
	if backend.IsSimulator() {
		opts = append(opts, WithRetry(1, nil))
	}

	ch := r.pool.Schedule(id, func(jobCtx context.Context) (any, error) {
		// The caller's cancellation must reach the backend too.
		jobCtx, cancel := context.WithCancel(jobCtx)
		defer cancel()

		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		return backend.Execute(jobCtx, c, shots)
	}, opts...)

	var result Result

	select {
	case result = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer r.pool.Forget(id)

	if result.Error != nil {
		return nil, result.Error
	}

	histogram, ok := result.Value.(Histogram)
	if !ok {
		return nil, fmt.Errorf("job %s returned %T, not a histogram", id, result.Value)
	}

	device := backend.Device()

	errnie.Info("runner: job %s completed on %s in %v", id, device.ID, time.Since(start))

	return &Execution{
		JobID:       id,
		Results:     histogram,
		Device:      device.ID,
		Provider:    backend.Provider(),
		RealQuantum: !backend.IsSimulator(),
		Shots:       shots,
		Duration:    time.Since(start),
	}, nil
}
