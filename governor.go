package qbridge

import (
	"log"
	"math"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"
)

const (
	// bytesPerBasisState covers one amplitude, its scratch copy, its
	// cumulative probability and its outcome tally.
	bytesPerBasisState = 16 + 16 + 8 + 8

	// bytesPerOutcome covers one histogram entry apart from its key bytes.
	bytesPerOutcome = 64

	// runOverhead covers sampling goroutines and their bookkeeping.
	runOverhead = 64 << 10
)

// memoryProbe reports the bytes of host memory currently available.
type memoryProbe func() (uint64, error)

func virtualMemoryAvailable() (uint64, error) {
	stat, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return stat.Available, nil
}

/*
ResourceGovernor keeps state vectors inside a memory ceiling. The ceiling is
the smaller of the configured byte limit and a fraction of the host's
available memory. Runs reserve their footprint before allocating and release
it when the histogram is built, so concurrent runs share the same ceiling.
*/
type ResourceGovernor struct {
	mu sync.Mutex

	maxQubits  int
	configured uint64
	fraction   float64
	probe      memoryProbe
	available  uint64
	reserved   uint64
	metrics    *Metrics
}

func NewResourceGovernor(cfg *Config) *ResourceGovernor {
	rg := &ResourceGovernor{
		maxQubits:  cfg.MaxQubits,
		configured: cfg.MemoryCeiling,
		fraction:   cfg.MemoryFraction,
		probe:      virtualMemoryAvailable,
	}
	rg.refresh()

	return rg
}

// Footprint returns the bytes a run over qubits needs, saturating at MaxUint64.
func Footprint(qubits int) uint64 {
	if qubits < 0 {
		return 0
	}
	if qubits >= 64 || uint64(1)<<qubits > math.MaxUint64/bytesPerBasisState {
		return math.MaxUint64
	}
	return uint64(1) << qubits * bytesPerBasisState
}

/*
RunFootprint returns the bytes a sampled run needs: the register footprint,
one histogram entry per distinct outcome and a fixed overhead. A run has at
most min(shots, 2^qubits) distinct outcomes.
*/
func RunFootprint(qubits, shots int) uint64 {
	state := Footprint(qubits)
	if qubits < 0 || state == math.MaxUint64 || shots <= 0 {
		return state
	}

	outcomes := uint64(shots)
	if states := uint64(1) << qubits; states < outcomes {
		outcomes = states
	}

	perOutcome := uint64(bytesPerOutcome + qubits)
	if outcomes > (math.MaxUint64-state-runOverhead)/perOutcome {
		return math.MaxUint64
	}

	return state + outcomes*perOutcome + runOverhead
}

// Ceiling returns the byte limit currently enforced.
func (rg *ResourceGovernor) Ceiling() uint64 {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	return rg.ceiling()
}

func (rg *ResourceGovernor) ceiling() uint64 {
	ceiling := rg.configured
	if rg.available > 0 && rg.fraction > 0 {
		if share := uint64(float64(rg.available) * rg.fraction); share < ceiling || ceiling == 0 {
			ceiling = share
		}
	}
	return ceiling
}

// Admit checks whether a single run over qubits would fit on its own.
func (rg *ResourceGovernor) Admit(qubits int) error {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	return rg.admit(qubits, Footprint(qubits), 0)
}

/*
Reserve admits a run of shots over qubits on top of everything already
reserved and returns the function that gives the bytes back.
*/
func (rg *ResourceGovernor) Reserve(qubits, shots int) (func(), error) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	need := RunFootprint(qubits, shots)
	if err := rg.admit(qubits, need, rg.reserved); err != nil {
		return nil, err
	}

	rg.reserved += need
	rg.publish()

	var once sync.Once

	return func() {
		once.Do(func() {
			rg.mu.Lock()
			defer rg.mu.Unlock()

			rg.reserved -= need
			rg.publish()
		})
	}, nil
}

func (rg *ResourceGovernor) admit(qubits int, need, inUse uint64) error {
	if qubits > rg.maxQubits {
		return &ResourceError{Qubits: qubits}
	}

	ceiling := rg.ceiling()

	if need > ceiling || inUse > ceiling-need {
		return &ResourceError{Qubits: qubits, Required: need + inUse, Ceiling: ceiling}
	}

	return nil
}

// Observe attaches metrics and refreshes the host memory reading.
func (rg *ResourceGovernor) Observe(metrics *Metrics) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	rg.metrics = metrics
	rg.refresh()
	rg.publish()
}

// Limit reports whether reservations already fill the ceiling.
func (rg *ResourceGovernor) Limit() bool {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	return rg.reserved >= rg.ceiling()
}

func (rg *ResourceGovernor) Renormalize() {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	rg.refresh()
}

// refresh must be called with mu held. A failed probe keeps the last reading.
func (rg *ResourceGovernor) refresh() {
	if rg.probe == nil {
		return
	}

	available, err := rg.probe()
	if err != nil {
		log.Printf("resource governor: memory probe failed, keeping ceiling %d: %v", rg.ceiling(), err)
		return
	}

	rg.available = available
}

func (rg *ResourceGovernor) publish() {
	if rg.metrics != nil {
		rg.metrics.setReserved(rg.reserved)
	}
}
