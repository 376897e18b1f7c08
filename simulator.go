package qbridge

import (
	"context"
	"math/rand/v2"

	"github.com/theapemachine/errnie"
)

/*
Simulator runs circuits on a classical state vector. Each Run is independent:
it allocates its own register, evolves it through the circuit's operations in
order and samples the measurement histogram from the final amplitudes.
*/
type Simulator struct {
	config   *Config
	governor *ResourceGovernor
	sampler  *Sampler
	metrics  *Metrics
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithGovernor shares a governor between simulators so their reservations add up.
func WithGovernor(governor *ResourceGovernor) SimulatorOption {
	return func(s *Simulator) {
		s.governor = governor
	}
}

// WithSimulatorMetrics records shot and register-width metrics.
func WithSimulatorMetrics(metrics *Metrics) SimulatorOption {
	return func(s *Simulator) {
		s.metrics = metrics
	}
}

func NewSimulator(config *Config, opts ...SimulatorOption) *Simulator {
	if config == nil {
		config = NewConfig()
	}

	s := &Simulator{
		config:  config,
		sampler: NewSampler(config.sampleWorkers(), config.minShotsPerWorker()),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.governor == nil {
		s.governor = NewResourceGovernor(config)
	}

	return s
}

/*
Evolve applies every operation of the circuit to a fresh |0…0⟩ register and
returns it. Operations of unknown kind leave the state unchanged.
*/
func (s *Simulator) Evolve(c *Circuit) (*StateVector, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if err := s.governor.Admit(c.QubitCount); err != nil {
		return nil, err
	}

	return s.evolve(c)
}

func (s *Simulator) evolve(c *Circuit) (*StateVector, error) {
	sv, err := NewStateVector(c.QubitCount)
	if err != nil {
		return nil, err
	}

	for _, op := range c.Operations {
		if !sv.Apply(op) && !ParseGateKind(string(op.Kind)).Known() {
			errnie.Info("simulator: skipping operation of unknown kind %q", op.Kind)
		}
	}

	return sv, nil
}

/*
Run simulates c and samples shots measurements of every qubit. The returned
histogram keys are QubitCount characters wide, most significant qubit first,
and the counts sum to exactly shots.
*/
func (s *Simulator) Run(ctx context.Context, c *Circuit, shots int) (Histogram, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if shots <= 0 {
		return nil, validationErrorf("shots", "must be positive, got %d", shots)
	}

	release, err := s.governor.Reserve(c.QubitCount, shots)
	if err != nil {
		return nil, err
	}
	defer release()

	sv, err := s.evolve(c)
	if err != nil {
		return nil, err
	}

	h, err := s.sampler.Sample(ctx, sv.Probabilities(), shots, c.QubitCount, s.seed())
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.recordRun(c.QubitCount, shots)
	}

	return h, nil
}

// seed returns the configured seed, or a fresh random one when it is zero.
func (s *Simulator) seed() uint64 {
	if s.config.Seed != 0 {
		return s.config.Seed
	}
	return rand.Uint64()
}
