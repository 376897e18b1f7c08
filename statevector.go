package qbridge

import (
	"math"
)

// NormTolerance bounds the drift of Σ|amplitude|² away from 1.
const NormTolerance = 1e-9

/*
StateVector holds the 2^n complex amplitudes of an n-qubit pure state. It is
owned by the simulation run that created it and is never shared between runs.
*/
type StateVector struct {
	qubits  int
	amps    []complex128
	scratch []complex128
}

/*
NewStateVector allocates a register in the all-zero basis state |0…0⟩.
Callers are expected to have bounded qubits through a ResourceGovernor.
*/
func NewStateVector(qubits int) (*StateVector, error) {
	if qubits <= 0 {
		return nil, validationErrorf("qubitCount", "must be positive, got %d", qubits)
	}

	amps := make([]complex128, dimension(qubits))
	amps[0] = 1

	return &StateVector{qubits: qubits, amps: amps}, nil
}

// Qubits returns the register width.
func (sv *StateVector) Qubits() int {
	return sv.qubits
}

// Amplitudes returns a copy of the amplitude array.
func (sv *StateVector) Amplitudes() []complex128 {
	out := make([]complex128, len(sv.amps))
	copy(out, sv.amps)
	return out
}

// Amplitude returns the amplitude of a single basis state.
func (sv *StateVector) Amplitude(idx BasisIndex) complex128 {
	return sv.amps[idx]
}

/*
Apply dispatches a single operation to its gate function. Unknown kinds are a
no-op and return false. The operation must already have been validated
against this register's width.
*/
func (sv *StateVector) Apply(op Operation) bool {
	switch ParseGateKind(string(op.Kind)) {
	case GateHadamard:
		sv.ApplyHadamard(op.Qubits[0])
	case GateControlledNot:
		sv.ApplyControlledNot(op.Qubits[0], op.Qubits[1])
	case GateRotateZ:
		sv.ApplyRotateZ(op.Qubits[0], op.Angle)
	default:
		return false
	}

	return true
}

// ApplyHadamard applies H through the scratch buffer and swaps the buffers.
func (sv *StateVector) ApplyHadamard(target int) {
	if sv.scratch == nil {
		sv.scratch = make([]complex128, len(sv.amps))
	}

	Hadamard(sv.scratch, sv.amps, target)
	sv.amps, sv.scratch = sv.scratch, sv.amps
}

// ApplyControlledNot applies CNOT in place.
func (sv *StateVector) ApplyControlledNot(control, target int) {
	ControlledNot(sv.amps, control, target)
}

// ApplyRotateZ applies the Z-phase rotation in place.
func (sv *StateVector) ApplyRotateZ(target int, angle float64) {
	RotateZ(sv.amps, target, angle)
}

// Norm returns Σ|amplitude|², which is 1 for a valid state.
func (sv *StateVector) Norm() float64 {
	var total float64
	for _, a := range sv.amps {
		total += real(a)*real(a) + imag(a)*imag(a)
	}
	return total
}

// Normalized reports whether the register satisfies the normalization invariant.
func (sv *StateVector) Normalized() bool {
	return math.Abs(sv.Norm()-1) <= NormTolerance
}

/*
Probabilities returns the Born-rule distribution |amplitude|² over all basis
indices. When accumulated floating-point drift pushes the total outside
NormTolerance the vector is rescaled so it sums to 1.
*/
func (sv *StateVector) Probabilities() []float64 {
	probs := make([]float64, len(sv.amps))

	var total float64
	for i, a := range sv.amps {
		p := real(a)*real(a) + imag(a)*imag(a)
		probs[i] = p
		total += p
	}

	if total > 0 && math.Abs(total-1) > NormTolerance {
		for i := range probs {
			probs[i] /= total
		}
	}

	return probs
}
