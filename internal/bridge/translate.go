package bridge

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/theapemachine/errnie"
	"github.com/theapemachine/qbridge"
)

// AngleSource supplies rotation angles for RZ gates that do not carry one.
type AngleSource func() float64

// RandomAngles draws angles uniformly from [0, 2π).
func RandomAngles(r *rand.Rand) AngleSource {
	return func() float64 {
		return r.Float64() * 2 * math.Pi
	}
}

/*
ToCircuit converts a descriptor to the internal circuit. Gates are taken
column by column in ascending order, keeping their order within a column.
H and RZ act on every target, CNOT pairs controls[0] with targets[0], measure
gates are descriptive only and unknown gate names are dropped.
*/
func ToCircuit(d *Descriptor, angles AngleSource) (*qbridge.Circuit, error) {
	gates := make([]GateDescriptor, len(d.Gates))
	copy(gates, d.Gates)
	sort.SliceStable(gates, func(i, j int) bool { return gates[i].Column < gates[j].Column })

	c := qbridge.NewCircuit(len(d.Qubits))

	for _, gate := range gates {
		switch strings.ToLower(strings.TrimSpace(gate.Name)) {
		case "h":
			for _, target := range gate.Targets {
				c.H(target)
			}
		case "cnot", "cx":
			if len(gate.Controls) > 0 && len(gate.Targets) > 0 {
				c.CNOT(gate.Controls[0], gate.Targets[0])
			}
		case "rz":
			for _, target := range gate.Targets {
				c.RZ(target, angleOf(gate.Params, angles))
			}
		case "measure":
		default:
			errnie.Info("bridge: dropping gate %q in column %d", gate.Name, gate.Column)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func angleOf(params []float64, angles AngleSource) float64 {
	if len(params) > 0 {
		return params[0]
	}
	return angles()
}

/*
FromCircuit lays the circuit out one operation per column, followed by a
column measuring every qubit. RZ gates keep their angle in params.
*/
func FromCircuit(c *qbridge.Circuit, description string, now time.Time) *Descriptor {
	d := &Descriptor{
		Qubits: qubitInfos(c.QubitCount),
		Gates:  make([]GateDescriptor, 0, len(c.Operations)+c.QubitCount),
		Metadata: Metadata{
			Description: description,
			CreatedAt:   now.Format(time.RFC3339Nano),
		},
	}

	column := 0
	for _, op := range c.Operations {
		switch qbridge.ParseGateKind(string(op.Kind)) {
		case qbridge.GateHadamard:
			d.Gates = append(d.Gates, newGate("H", column, op.Qubits[:1], nil))
		case qbridge.GateControlledNot:
			d.Gates = append(d.Gates, newGate("CNOT", column, op.Qubits[1:2], op.Qubits[:1]))
		case qbridge.GateRotateZ:
			g := newGate("RZ", column, op.Qubits[:1], nil)
			g.Params = []float64{op.Angle}
			d.Gates = append(d.Gates, g)
		}
		column++
	}

	for q := 0; q < c.QubitCount; q++ {
		d.Gates = append(d.Gates, newGate("measure", column, []int{q}, nil))
	}

	return d
}

func newGate(name string, column int, targets, controls []int) GateDescriptor {
	return GateDescriptor{
		Name:     name,
		Column:   column,
		Targets:  append([]int{}, targets...),
		Controls: append([]int{}, controls...),
	}
}

func qubitInfos(n int) []QubitInfo {
	qubits := make([]QubitInfo, n)
	for i := range qubits {
		qubits[i] = QubitInfo{Name: fmt.Sprintf("qubit %d", i)}
	}
	return qubits
}

/*
wireCircuit accepts the internal circuit in its own JSON shape as well as the
older num_qubits / name / params spelling.
*/
type wireCircuit struct {
	QubitCount *int            `json:"qubitCount"`
	NumQubits  *int            `json:"num_qubits"`
	Operations []wireOperation `json:"operations"`
}

type wireOperation struct {
	Kind   string    `json:"kind"`
	Name   string    `json:"name"`
	Qubits []int     `json:"qubits"`
	Angle  *float64  `json:"angle"`
	Params []float64 `json:"params"`
}

/*
DecodeCircuit reads either a Descriptor or an internal circuit from raw. The
descriptor is recognised structurally; anything else must decode as an
internal circuit. RZ operations without an angle draw one from angles.
*/
func DecodeCircuit(raw []byte, angles AngleSource) (*qbridge.Circuit, error) {
	if IsDescriptor(raw) {
		d, err := ParseDescriptor(raw)
		if err != nil {
			return nil, err
		}
		return ToCircuit(d, angles)
	}

	var wire wireCircuit
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &qbridge.ValidationError{Field: "circuit", Reason: err.Error()}
	}

	c := &qbridge.Circuit{Operations: make([]qbridge.Operation, 0, len(wire.Operations))}

	switch {
	case wire.QubitCount != nil:
		c.QubitCount = *wire.QubitCount
	case wire.NumQubits != nil:
		c.QubitCount = *wire.NumQubits
	}

	for _, op := range wire.Operations {
		name := op.Kind
		if name == "" {
			name = op.Name
		}

		kind := qbridge.ParseGateKind(name)
		operation := qbridge.Operation{Kind: kind, Qubits: op.Qubits}

		if kind == qbridge.GateRotateZ {
			if op.Angle != nil {
				operation.Angle = *op.Angle
			} else {
				operation.Angle = angleOf(op.Params, angles)
			}
		}

		c.Operations = append(c.Operations, operation)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}
