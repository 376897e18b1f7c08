package qbridge

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/davecgh/go-spew/spew"
	. "github.com/smartystreets/goconvey/convey"
)

func amplitudesClose(a, b []complex128, tolerance float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if cmplx.Abs(a[i]-b[i]) > tolerance {
			return false
		}
	}
	return true
}

func TestBasisIndex(t *testing.T) {
	Convey("Given basis index 0b101", t, func() {
		idx := BasisIndex(0b101)

		So(idx.Bit(0), ShouldEqual, 1)
		So(idx.Bit(1), ShouldEqual, 0)
		So(idx.Bit(2), ShouldEqual, 1)
		So(idx.Flip(1), ShouldEqual, BasisIndex(0b111))

		Convey("It formats most significant qubit first", func() {
			So(idx.Bitstring(3), ShouldEqual, "101")
			So(BasisIndex(1).Bitstring(4), ShouldEqual, "0001")
		})

		Convey("It parses back", func() {
			parsed, err := ParseBitstring("0101")
			So(err, ShouldBeNil)
			So(parsed, ShouldEqual, idx)

			_, err = ParseBitstring("01x")
			So(err, ShouldNotBeNil)

			_, err = ParseBitstring("")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestNewStateVector(t *testing.T) {
	Convey("Given a fresh three-qubit register", t, func() {
		sv, err := NewStateVector(3)
		So(err, ShouldBeNil)

		So(sv.Qubits(), ShouldEqual, 3)
		So(sv.Amplitudes(), ShouldHaveLength, 8)
		So(sv.Amplitude(0), ShouldEqual, complex(1, 0))
		So(sv.Normalized(), ShouldBeTrue)

		Convey("Amplitudes returns a copy", func() {
			amps := sv.Amplitudes()
			amps[0] = 0
			So(sv.Amplitude(0), ShouldEqual, complex(1, 0))
		})
	})

	Convey("A non-positive width is rejected", t, func() {
		_, err := NewStateVector(0)
		So(IsValidation(err), ShouldBeTrue)
	})
}

func TestGates(t *testing.T) {
	Convey("Given a two-qubit register", t, func() {
		sv, _ := NewStateVector(2)

		Convey("Hadamard on qubit 0 splits |00> evenly with |01>", func() {
			sv.ApplyHadamard(0)

			So(real(sv.Amplitude(0)), ShouldAlmostEqual, invSqrt2, 1e-12)
			So(real(sv.Amplitude(1)), ShouldAlmostEqual, invSqrt2, 1e-12)
			So(sv.Amplitude(2), ShouldEqual, complex(0, 0))
			So(sv.Normalized(), ShouldBeTrue)

			Convey("And a second Hadamard restores |00>", func() {
				sv.ApplyHadamard(0)
				So(real(sv.Amplitude(0)), ShouldAlmostEqual, 1, 1e-12)
				So(cmplx.Abs(sv.Amplitude(1)), ShouldBeLessThan, 1e-12)
			})

			Convey("And CNOT(0, 1) builds a Bell state", func() {
				sv.ApplyControlledNot(0, 1)

				probs := sv.Probabilities()
				So(probs[0b00], ShouldAlmostEqual, 0.5, 1e-12)
				So(probs[0b11], ShouldAlmostEqual, 0.5, 1e-12)
				So(probs[0b01], ShouldAlmostEqual, 0, 1e-12)
				So(probs[0b10], ShouldAlmostEqual, 0, 1e-12)
			})
		})

		Convey("CNOT flips the target only when the control is set", func() {
			sv.ApplyControlledNot(0, 1)
			So(sv.Amplitude(0), ShouldEqual, complex(1, 0))

			flipped := []complex128{0, 1, 0, 0}
			ControlledNot(flipped, 0, 1)
			So(flipped, ShouldResemble, []complex128{0, 0, 0, 1})
		})

		Convey("RZ on |0> leaves the state alone", func() {
			sv.ApplyRotateZ(0, 1.3)
			So(sv.Amplitude(0), ShouldEqual, complex(1, 0))
		})
	})
}

func TestGateInvariants(t *testing.T) {
	Convey("Given an entangled four-qubit register", t, func() {
		sv, _ := NewStateVector(4)
		for q := 0; q < 4; q++ {
			sv.ApplyHadamard(q)
			So(sv.Normalized(), ShouldBeTrue)
		}
		sv.ApplyRotateZ(1, 0.7)
		sv.ApplyControlledNot(2, 0)
		sv.ApplyRotateZ(3, 2.1)
		So(sv.Normalized(), ShouldBeTrue)

		before := sv.Amplitudes()

		Convey("CNOT applied twice is the identity", func() {
			sv.ApplyControlledNot(1, 3)
			So(sv.Normalized(), ShouldBeTrue)
			sv.ApplyControlledNot(1, 3)

			So(amplitudesClose(sv.Amplitudes(), before, 1e-12), ShouldBeTrue)
		})

		Convey("CNOT changes a state with asymmetric amplitudes", func() {
			sv.ApplyRotateZ(3, 0.4)
			rotated := sv.Amplitudes()
			sv.ApplyControlledNot(3, 1)

			if amplitudesClose(sv.Amplitudes(), rotated, 1e-12) {
				t.Log(spew.Sdump(rotated))
			}
			So(amplitudesClose(sv.Amplitudes(), rotated, 1e-12), ShouldBeFalse)
		})

		Convey("RZ(θ) followed by RZ(-θ) is the identity", func() {
			sv.ApplyRotateZ(2, 1.234)
			So(sv.Normalized(), ShouldBeTrue)
			sv.ApplyRotateZ(2, -1.234)

			So(amplitudesClose(sv.Amplitudes(), before, 1e-12), ShouldBeTrue)
		})

		Convey("Probabilities sum to one", func() {
			total := 0.0
			for _, p := range sv.Probabilities() {
				total += p
			}
			So(math.Abs(total-1), ShouldBeLessThanOrEqualTo, NormTolerance)
		})
	})
}

func TestApply(t *testing.T) {
	Convey("Given operations of known and unknown kinds", t, func() {
		sv, _ := NewStateVector(2)

		So(sv.Apply(Operation{Kind: "h", Qubits: []int{1}}), ShouldBeTrue)
		So(sv.Apply(Operation{Kind: "SWAP", Qubits: []int{0, 1}}), ShouldBeFalse)
		So(sv.Apply(Operation{Kind: GateMeasure, Qubits: []int{0}}), ShouldBeFalse)

		probs := sv.Probabilities()
		So(probs[0b00], ShouldAlmostEqual, 0.5, 1e-12)
		So(probs[0b10], ShouldAlmostEqual, 0.5, 1e-12)
	})
}

func TestProbabilitiesRenormalize(t *testing.T) {
	Convey("Given a register that drifted off the unit sphere", t, func() {
		sv, _ := NewStateVector(1)
		sv.amps[0] = complex(1.1, 0)

		So(sv.Normalized(), ShouldBeFalse)

		probs := sv.Probabilities()
		So(probs[0], ShouldAlmostEqual, 1, 1e-12)
	})
}
