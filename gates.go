package qbridge

import (
	"math"
	"math/cmplx"
)

// invSqrt2 is the Hadamard scale factor.
const invSqrt2 = 1 / math.Sqrt2

/*
Hadamard applies H to the target qubit, reading every amplitude from src and
writing the result into dst.

Preconditions:
  - len(dst) == len(src) == 2^n and 0 <= target < n
  - dst and src do not alias

Postconditions:
  - src is untouched, so both members of a pair are read before either is written
  - Σ|dst|² == Σ|src|² within floating-point tolerance

For every pair (i, j = i|1<<target) with target bit 0 in i:

	dst[i] = (src[i] + src[j]) / √2
	dst[j] = (src[i] - src[j]) / √2
*/
func Hadamard(dst, src []complex128, target int) {
	bit := BasisIndex(1) << uint(target)
	h := complex(invSqrt2, 0)

	for i := range src {
		idx := BasisIndex(i)
		if idx&bit != 0 {
			continue
		}

		j := idx | bit
		a, b := src[idx], src[j]
		dst[idx] = h * (a + b)
		dst[j] = h * (a - b)
	}
}

/*
ControlledNot flips the target qubit of every basis state whose control qubit
is 1, in place.

Preconditions:
  - 0 <= control, target < n and control != target

Postconditions:
  - each unordered pair {i, i^(1<<target)} with the control bit set has been
    exchanged exactly once; applying the gate twice restores the input

Only indices with the target bit cleared initiate a swap. A scan that swapped
from both members of a pair would exchange it twice and act as the identity.
*/
func ControlledNot(amps []complex128, control, target int) {
	for i := range amps {
		idx := BasisIndex(i)
		if idx.Bit(control) != 1 || idx.Bit(target) != 0 {
			continue
		}

		j := idx.Flip(target)
		amps[idx], amps[j] = amps[j], amps[idx]
	}
}

/*
RotateZ multiplies every amplitude whose target bit is 1 by the unit phase
e^{i·angle}, in place. Amplitudes with the target bit 0 are untouched, so
RotateZ(q, θ) followed by RotateZ(q, -θ) is the identity.
*/
func RotateZ(amps []complex128, target int, angle float64) {
	phase := cmplx.Exp(complex(0, angle))

	for i := range amps {
		if BasisIndex(i).Bit(target) == 1 {
			amps[i] *= phase
		}
	}
}
