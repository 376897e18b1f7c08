package bridge

import (
	"encoding/json"
	"fmt"
)

// QubitInfo labels one wire of a descriptor.
type QubitInfo struct {
	Name string `json:"name"`
}

/*
GateDescriptor is one gate as front ends draw it. Column orders gates along
the circuit. Params is optional and carries the rotation angle of an RZ.
*/
type GateDescriptor struct {
	Name     string    `json:"name"`
	Column   int       `json:"column"`
	Targets  []int     `json:"targets"`
	Controls []int     `json:"controls"`
	Params   []float64 `json:"params,omitempty"`
}

type Metadata struct {
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
}

// Descriptor is the front-end representation of a circuit.
type Descriptor struct {
	Qubits   []QubitInfo      `json:"qubits"`
	Gates    []GateDescriptor `json:"gates"`
	Metadata Metadata         `json:"metadata"`
}

/*
IsDescriptor reports whether raw has the structural shape of a Descriptor:
an object with a qubits list of named entries, a gates list whose entries
all carry name, column, targets and controls (the last two as lists), and a
metadata object with description and createdAt.
*/
func IsDescriptor(raw []byte) bool {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return false
	}

	var qubits []map[string]json.RawMessage
	if err := json.Unmarshal(top["qubits"], &qubits); err != nil || qubits == nil {
		return false
	}
	for _, qubit := range qubits {
		if !hasKeys(qubit, "name") {
			return false
		}
	}

	var gates []map[string]json.RawMessage
	if err := json.Unmarshal(top["gates"], &gates); err != nil || gates == nil {
		return false
	}
	for _, gate := range gates {
		if !hasKeys(gate, "name", "column", "targets", "controls") {
			return false
		}

		var targets, controls []json.RawMessage
		if json.Unmarshal(gate["targets"], &targets) != nil || targets == nil ||
			json.Unmarshal(gate["controls"], &controls) != nil || controls == nil {
			return false
		}
	}

	var metadata map[string]json.RawMessage
	if err := json.Unmarshal(top["metadata"], &metadata); err != nil || metadata == nil {
		return false
	}

	return hasKeys(metadata, "description", "createdAt")
}

func hasKeys(object map[string]json.RawMessage, keys ...string) bool {
	if object == nil {
		return false
	}
	for _, key := range keys {
		if _, ok := object[key]; !ok {
			return false
		}
	}
	return true
}

// ParseDescriptor decodes raw after checking its structure.
func ParseDescriptor(raw []byte) (*Descriptor, error) {
	if !IsDescriptor(raw) {
		return nil, fmt.Errorf("not a circuit descriptor")
	}

	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode circuit descriptor: %w", err)
	}

	return &d, nil
}
