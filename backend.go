package qbridge

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

const (
	// SimulatorBackendName is the registry name of the built-in simulator.
	SimulatorBackendName = "simulator"
	SimulatorDeviceID    = "quantum_simulator"
)

// Device describes a backend the way front ends list it.
type Device struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Available bool   `json:"available"`
	MaxQubits int    `json:"max_qubits"`
}

/*
Backend executes a circuit and returns its measurement histogram. Execute
must not modify the circuit.
*/
type Backend interface {
	Name() string
	Provider() string
	Device() Device
	IsSimulator() bool
	Execute(ctx context.Context, c *Circuit, shots int) (Histogram, error)
}

// SimulatorBackend exposes a Simulator as a Backend.
type SimulatorBackend struct {
	simulator *Simulator
	maxQubits int
}

func NewSimulatorBackend(simulator *Simulator, maxQubits int) *SimulatorBackend {
	return &SimulatorBackend{simulator: simulator, maxQubits: maxQubits}
}

func (b *SimulatorBackend) Name() string      { return SimulatorBackendName }
func (b *SimulatorBackend) Provider() string  { return "local" }
func (b *SimulatorBackend) IsSimulator() bool { return true }

func (b *SimulatorBackend) Device() Device {
	return Device{
		ID:        SimulatorDeviceID,
		Name:      "State-vector simulator",
		Type:      "simulator",
		Available: true,
		MaxQubits: b.maxQubits,
	}
}

func (b *SimulatorBackend) Execute(ctx context.Context, c *Circuit, shots int) (Histogram, error) {
	return b.simulator.Run(ctx, c, shots)
}

// Backends is a name-indexed registry of execution backends.
type Backends struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

func NewBackends(backends ...Backend) *Backends {
	registry := &Backends{backends: make(map[string]Backend)}
	for _, b := range backends {
		registry.Register(b)
	}
	return registry
}

// Register adds b, replacing any backend with the same name.
func (r *Backends) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backends[b.Name()] = b
}

func (r *Backends) Get(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return b, nil
}

// Devices lists every registered backend, ordered by device id.
func (r *Backends) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.backends))
	for _, b := range r.backends {
		devices = append(devices, b.Device())
	}

	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	return devices
}
