package mathhelp

import (
	"math"

	"golang.org/x/exp/constraints"
)

// AlmostEqual reports whether a and b are at most tolerance apart.
func AlmostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// BetweenInc reports whether p <= f <= q, for p and q in either order.
func BetweenInc[T constraints.Ordered](f, p, q T) bool {
	if p <= q {
		return p <= f && f <= q
	}
	return q <= f && f <= p
}

func Clamp[T constraints.Ordered](f, lo, hi T) T {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

func Pow2(n uint) uint {
	return 1 << n
}
