package bridge

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/theapemachine/qbridge"
)

func TestNewEntanglingCircuit(t *testing.T) {
	Convey("Given a 4-qubit entangling circuit", t, func() {
		c := NewEntanglingCircuit(4, fixedAngle(0.5))

		So(c.Validate(), ShouldBeNil)
		So(c.Operations, ShouldHaveLength, 4+3+4)

		Convey("It layers Hadamards, a CNOT chain and rotations", func() {
			So(c.Operations[3].Kind, ShouldEqual, qbridge.GateHadamard)
			So(c.Operations[4].Qubits, ShouldResemble, []int{0, 1})
			So(c.Operations[6].Qubits, ShouldResemble, []int{2, 3})
			So(c.Operations[10].Kind, ShouldEqual, qbridge.GateRotateZ)
			So(c.Operations[10].Angle, ShouldEqual, 0.5)
		})
	})

	Convey("The backup circuit is fixed", t, func() {
		c := BackupCircuit()

		So(c.QubitCount, ShouldEqual, 3)
		So(c.Validate(), ShouldBeNil)
		So(c.Operations[5].Angle, ShouldEqual, 0.5)
		So(c.Operations[6].Angle, ShouldEqual, 0.8)
		So(c.Operations[7].Angle, ShouldEqual, 0.3)
	})
}

func TestDefaultDescriptor(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	Convey("Given the default 3-qubit descriptor", t, func() {
		d := DefaultDescriptor(3, now)

		So(d.Qubits, ShouldHaveLength, 3)
		So(d.Gates, ShouldHaveLength, 3+2+3)
		So(d.Metadata.Description, ShouldEqual, "default quantum circuit")

		So(d.Gates[3], ShouldResemble, GateDescriptor{Name: "CNOT", Column: 1, Targets: []int{1}, Controls: []int{0}})
		So(d.Gates[4], ShouldResemble, GateDescriptor{Name: "CNOT", Column: 2, Targets: []int{2}, Controls: []int{1}})
		So(d.Gates[7].Name, ShouldEqual, "measure")
		So(d.Gates[7].Column, ShouldEqual, 3)

		Convey("It translates to a runnable circuit", func() {
			c, err := ToCircuit(d, fixedAngle(0))
			So(err, ShouldBeNil)
			So(c, ShouldResemble, qbridge.NewCircuit(3).H(0).H(1).H(2).CNOT(0, 1).CNOT(1, 2))
		})
	})

	Convey("Given a 2-qubit default descriptor", t, func() {
		d := DefaultDescriptor(2, now)

		So(d.Gates, ShouldHaveLength, 2+1+2)
	})
}
