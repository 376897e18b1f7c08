package bridge

import (
	"time"

	"github.com/theapemachine/qbridge"
)

const (
	// PredictionQubits is the register width used for predictions.
	PredictionQubits   = 5
	descriptionQuantum = "quantum circuit"
	descriptionDefault = "default quantum circuit"
)

/*
NewEntanglingCircuit puts every qubit in superposition, entangles neighbours
with a CNOT chain and finishes with a Z rotation per qubit.
*/
func NewEntanglingCircuit(qubits int, angles AngleSource) *qbridge.Circuit {
	c := qbridge.NewCircuit(qubits)

	for q := 0; q < qubits; q++ {
		c.H(q)
	}

	for q := 0; q < qubits-1; q++ {
		c.CNOT(q, q+1)
	}

	for q := 0; q < qubits; q++ {
		c.RZ(q, angles())
	}

	return c
}

// BackupCircuit is the fixed 3-qubit circuit used when building a fresh one fails.
func BackupCircuit() *qbridge.Circuit {
	return qbridge.NewCircuit(3).
		H(0).H(1).H(2).
		CNOT(0, 1).CNOT(1, 2).
		RZ(0, 0.5).RZ(1, 0.8).RZ(2, 0.3)
}

/*
DefaultDescriptor is the descriptor handed out when nothing else can be
built: a Hadamard column, CNOT 0→1, CNOT 1→2 for wider registers and a
measure column.
*/
func DefaultDescriptor(qubits int, now time.Time) *Descriptor {
	d := &Descriptor{
		Qubits: qubitInfos(qubits),
		Gates:  make([]GateDescriptor, 0, 2*qubits+2),
		Metadata: Metadata{
			Description: descriptionDefault,
			CreatedAt:   now.Format(time.RFC3339Nano),
		},
	}

	for q := 0; q < qubits; q++ {
		d.Gates = append(d.Gates, newGate("H", 0, []int{q}, nil))
	}

	if qubits > 1 {
		d.Gates = append(d.Gates, newGate("CNOT", 1, []int{1}, []int{0}))
	}

	if qubits > 2 {
		d.Gates = append(d.Gates, newGate("CNOT", 2, []int{2}, []int{1}))
	}

	for q := 0; q < qubits; q++ {
		d.Gates = append(d.Gates, newGate("measure", 3, []int{q}, nil))
	}

	return d
}
