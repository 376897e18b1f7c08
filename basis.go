package qbridge

import (
	"strconv"
	"strings"
)

/*
BasisIndex is the integer encoding of one computational-basis assignment of a
register. Bit k of the index holds the state of qubit k.
*/
type BasisIndex uint64

// Bit returns the state (0 or 1) of the given qubit in this basis index.
func (b BasisIndex) Bit(qubit int) uint {
	return uint(b>>uint(qubit)) & 1
}

// Flip returns the basis index with the given qubit inverted.
func (b BasisIndex) Flip(qubit int) BasisIndex {
	return b ^ (1 << uint(qubit))
}

/*
Bitstring formats the index as a fixed-width string of width characters, most
significant qubit first, so qubit 0 is the rightmost character.
*/
func (b BasisIndex) Bitstring(width int) string {
	s := strconv.FormatUint(uint64(b), 2)
	if len(s) >= width {
		return s
	}

	return strings.Repeat("0", width-len(s)) + s
}

// ParseBitstring converts an MSB-first bitstring back to a basis index.
func ParseBitstring(s string) (BasisIndex, error) {
	if s == "" {
		return 0, strconv.ErrSyntax
	}

	v, err := strconv.ParseUint(s, 2, 64)
	if err != nil {
		return 0, err
	}

	return BasisIndex(v), nil
}

// dimension is the number of basis states of an n-qubit register.
func dimension(qubits int) int {
	return 1 << uint(qubits)
}
