/*
Package bridge turns the simulator core into the four operations front ends
call: build a circuit, run it, analyze the results and list devices. It also
carries the fortune prediction that strings all four together.
*/
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/theapemachine/qbridge"
)

/*
Bridge owns everything a process needs to serve the front end: the job pool
and runner, the backend registry and the last-circuit cache.
*/
type Bridge struct {
	config  *qbridge.Config
	metrics *qbridge.Metrics
	pool    *qbridge.Q
	runner  *qbridge.Runner
	cache   *Cache

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// Option configures a Bridge.
type Option func(*options)

type options struct {
	backends []qbridge.Backend
	metrics  *qbridge.Metrics
}

// WithBackends registers extra backends next to the simulator.
func WithBackends(backends ...qbridge.Backend) Option {
	return func(o *options) {
		o.backends = append(o.backends, backends...)
	}
}

// WithMetrics makes the bridge report to metrics instead of its own set.
func WithMetrics(metrics *qbridge.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

func New(ctx context.Context, config *qbridge.Config, opts ...Option) (*Bridge, error) {
	if config == nil {
		config = qbridge.NewConfig()
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.metrics == nil {
		o.metrics = qbridge.NewMetrics()
	}

	cache, err := NewCache()
	if err != nil {
		return nil, err
	}

	governor := qbridge.NewResourceGovernor(config)
	simulator := qbridge.NewSimulator(
		config,
		qbridge.WithGovernor(governor),
		qbridge.WithSimulatorMetrics(o.metrics),
	)

	backends := qbridge.NewBackends(qbridge.NewSimulatorBackend(simulator, config.MaxQubits))
	for _, backend := range o.backends {
		backends.Register(backend)
	}

	pool := qbridge.NewQ(ctx, config, o.metrics, qbridge.WithRegulators(
		governor,
		qbridge.NewBackPressureRegulator(config.BackPressure),
	))

	return &Bridge{
		config:  config,
		metrics: o.metrics,
		pool:    pool,
		runner:  qbridge.NewRunner(config, backends, pool),
		cache:   cache,
		rng:     newRand(config.Seed),
		now:     time.Now,
	}, nil
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed>>1|1))
}

// Metrics returns the metrics the bridge reports to.
func (b *Bridge) Metrics() *qbridge.Metrics {
	return b.metrics
}

func (b *Bridge) draw() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.rng.Float64()
}

func (b *Bridge) angles() AngleSource {
	return func() float64 {
		b.mu.Lock()
		defer b.mu.Unlock()

		return RandomAngles(b.rng)()
	}
}

/*
BuildCircuit builds a fresh entangling circuit over qubits, caches its
descriptor as the last circuit and returns it.
*/
func (b *Bridge) BuildCircuit(qubits int) (*Descriptor, error) {
	_, d, err := b.buildCircuit(qubits)
	return d, err
}

func (b *Bridge) buildCircuit(qubits int) (*qbridge.Circuit, *Descriptor, error) {
	if qubits > b.config.MaxQubits {
		return nil, nil, &qbridge.ValidationError{
			Field:  "qubits",
			Reason: fmt.Sprintf("%d exceeds the limit of %d", qubits, b.config.MaxQubits),
		}
	}

	c := NewEntanglingCircuit(qubits, b.angles())
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	d := FromCircuit(c, descriptionQuantum, b.now())
	if err := b.cache.Store(d); err != nil {
		return nil, nil, err
	}

	return c, d, nil
}

/*
LastCircuit returns the cached descriptor. With an empty cache it builds and
caches a 5-qubit circuit, and if even that fails it caches the default
3-qubit descriptor.
*/
func (b *Bridge) LastCircuit() (*Descriptor, error) {
	d, err := b.cache.Last()
	if err == nil {
		return d, nil
	}

	if !errors.Is(err, ErrNoCircuit) {
		return nil, err
	}

	if d, err = b.BuildCircuit(PredictionQubits); err == nil {
		return d, nil
	}

	log.Printf("bridge: building a circuit failed, using the default: %v", err)

	d = DefaultDescriptor(3, b.now())
	if err := b.cache.Store(d); err != nil {
		return nil, err
	}

	return d, nil
}

/*
RunComputation decodes raw as either a descriptor or an internal circuit and
runs it. Shots of zero or less mean Config.DefaultShots.
*/
func (b *Bridge) RunComputation(ctx context.Context, raw []byte, shots int) (*Envelope, error) {
	c, err := DecodeCircuit(raw, b.angles())
	if err != nil {
		return nil, err
	}

	return b.Run(ctx, c, shots)
}

// RunDescriptor runs a descriptor that has already been decoded.
func (b *Bridge) RunDescriptor(ctx context.Context, d *Descriptor, shots int) (*Envelope, error) {
	c, err := ToCircuit(d, b.angles())
	if err != nil {
		return nil, err
	}

	return b.Run(ctx, c, shots)
}

// Run executes an internal circuit and wraps the execution in an Envelope.
func (b *Bridge) Run(ctx context.Context, c *qbridge.Circuit, shots int) (*Envelope, error) {
	if shots <= 0 {
		shots = b.config.DefaultShots
	}

	execution, err := b.runner.Run(ctx, c, shots)
	if err != nil {
		return nil, err
	}

	return NewEnvelope(execution), nil
}

// AnalyzeResults reduces a result envelope to its indicators.
func (b *Bridge) AnalyzeResults(raw []byte) (qbridge.IndicatorSet, error) {
	return qbridge.AnalyzeEnvelope(raw)
}

func (b *Bridge) ListDevices() []qbridge.Device {
	return b.runner.Backends().Devices()
}

/*
Predict runs the prediction circuit and blends its indicators into a fortune.
Every stage has a fallback: the backup circuit when building fails, the
uniform envelope when running fails and the default indicators when analysis
fails. Only a cancelled ctx abandons the prediction.
*/
func (b *Bridge) Predict(ctx context.Context, span string) *Prediction {
	if span == "" {
		span = defaultSpan
	}

	if err := ctx.Err(); err != nil {
		return failedPrediction(span, b.now(), err)
	}

	var fallbacks notes

	c, _, err := b.buildCircuit(PredictionQubits)
	if err != nil {
		log.Printf("bridge: building the prediction circuit failed, using the backup: %v", err)
		fallbacks.add("backup circuit: " + err.Error())
		c = BackupCircuit()
	}

	envelope, err := b.Run(ctx, c, b.config.DefaultShots)
	if err != nil {
		if ctx.Err() != nil {
			log.Printf("bridge: prediction abandoned: %v", err)
			return failedPrediction(span, b.now(), err)
		}

		log.Printf("bridge: running the prediction circuit failed, using uniform results: %v", err)
		fallbacks.add("uniform results: " + err.Error())
		envelope = UniformEnvelope(b.now())
	}

	indicators, err := qbridge.Analyze(envelope.Results)
	if err != nil {
		log.Printf("bridge: analyzing the prediction failed, using default indicators: %v", err)
		fallbacks.add("default indicators: " + err.Error())
		indicators = qbridge.DefaultIndicators()
	}

	return &Prediction{
		Fortune:          Fortune(b.draw(), indicators),
		Indicators:       indicators,
		Timestamp:        b.now().Format(time.RFC3339Nano),
		TimeSpan:         span,
		UsingRealQuantum: envelope.Metadata.RealQuantum,
		QuantumProvider:  envelope.Metadata.Provider,
		Message:          fallbacks.String(),
	}
}

// Close stops the job pool and drops the cache.
func (b *Bridge) Close() error {
	b.pool.Close()
	return b.cache.Close()
}
