package qbridge

import (
	"strings"
)

// GateKind names a gate operation. Kinds the simulator does not know are kept
// in the circuit and skipped at run time.
type GateKind string

const (
	GateHadamard      GateKind = "H"
	GateControlledNot GateKind = "CNOT"
	GateRotateZ       GateKind = "RZ"
	GateMeasure       GateKind = "MEASURE"
)

/*
ParseGateKind maps a gate name to its canonical kind, ignoring case and
accepting the "cx" alias for controlled-NOT. Unrecognized names come back
upper-cased so they survive as forward-compatible no-ops.
*/
func ParseGateKind(name string) GateKind {
	switch upper := strings.ToUpper(strings.TrimSpace(name)); upper {
	case "H":
		return GateHadamard
	case "CNOT", "CX":
		return GateControlledNot
	case "RZ":
		return GateRotateZ
	case "MEASURE":
		return GateMeasure
	default:
		return GateKind(upper)
	}
}

// arity is the number of qubit indices a known gate consumes, 0 for unknown kinds.
func (k GateKind) arity() int {
	switch k {
	case GateHadamard, GateRotateZ, GateMeasure:
		return 1
	case GateControlledNot:
		return 2
	default:
		return 0
	}
}

// Known reports whether the simulator acts on this kind.
func (k GateKind) Known() bool {
	return k.arity() > 0
}

/*
Operation is one gate application. For CNOT, Qubits holds [control, target].
Angle is the rotation in radians and only meaningful for RZ.
*/
type Operation struct {
	Kind   GateKind `json:"kind"`
	Qubits []int    `json:"qubits"`
	Angle  float64  `json:"angle,omitempty"`
}

/*
Circuit is an ordered list of operations over a fixed number of qubits. It is
the unit of work handed to a Simulator or Backend, which only ever read it.
*/
type Circuit struct {
	QubitCount int         `json:"qubitCount"`
	Operations []Operation `json:"operations"`
}

// NewCircuit returns an empty circuit over the given number of qubits.
func NewCircuit(qubits int) *Circuit {
	return &Circuit{
		QubitCount: qubits,
		Operations: make([]Operation, 0),
	}
}

// H appends a Hadamard on qubit.
func (c *Circuit) H(qubit int) *Circuit {
	c.Operations = append(c.Operations, Operation{Kind: GateHadamard, Qubits: []int{qubit}})
	return c
}

// CNOT appends a controlled-NOT.
func (c *Circuit) CNOT(control, target int) *Circuit {
	c.Operations = append(c.Operations, Operation{
		Kind:   GateControlledNot,
		Qubits: []int{control, target},
	})
	return c
}

// RZ appends a Z rotation by angle radians.
func (c *Circuit) RZ(qubit int, angle float64) *Circuit {
	c.Operations = append(c.Operations, Operation{
		Kind:   GateRotateZ,
		Qubits: []int{qubit},
		Angle:  angle,
	})
	return c
}

/*
Validate checks the structural invariants of the circuit: a positive qubit
count, every known operation carrying the right number of in-range qubit
indices, and CNOT control and target being distinct. Unknown kinds are not
inspected.
*/
func (c *Circuit) Validate() error {
	if c == nil {
		return validationErrorf("circuit", "circuit is nil")
	}

	if c.QubitCount <= 0 {
		return validationErrorf("qubitCount", "must be positive, got %d", c.QubitCount)
	}

	for i, op := range c.Operations {
		kind := ParseGateKind(string(op.Kind))
		if !kind.Known() {
			continue
		}

		if len(op.Qubits) < kind.arity() {
			return validationErrorf(
				"operations", "operation %d (%s) needs %d qubits, got %d",
				i, kind, kind.arity(), len(op.Qubits),
			)
		}

		for _, q := range op.Qubits[:kind.arity()] {
			if q < 0 || q >= c.QubitCount {
				return validationErrorf(
					"operations", "operation %d (%s) references qubit %d outside [0, %d)",
					i, kind, q, c.QubitCount,
				)
			}
		}

		if kind == GateControlledNot && op.Qubits[0] == op.Qubits[1] {
			return validationErrorf(
				"operations", "operation %d (CNOT) uses qubit %d as both control and target",
				i, op.Qubits[0],
			)
		}
	}

	return nil
}
