package qbridge

import (
	"sort"
)

/*
Histogram maps an observed bitstring (most significant qubit first) to the
number of shots that produced it.
*/
type Histogram map[string]int

// Total returns the sum of all counts.
func (h Histogram) Total() int {
	total := 0
	for _, count := range h {
		total += count
	}
	return total
}

// States returns the observed bitstrings in lexical order.
func (h Histogram) States() []string {
	states := make([]string, 0, len(h))
	for state := range h {
		states = append(states, state)
	}
	sort.Strings(states)
	return states
}

// Validate rejects negative counts, the only shape error a decoded map can carry.
func (h Histogram) Validate() error {
	for state, count := range h {
		if count < 0 {
			return validationErrorf("results", "state %q has negative count %d", state, count)
		}
	}
	return nil
}
