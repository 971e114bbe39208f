package mathx

import "golang.org/x/exp/constraints"

// CeilDiv returns ceil(a/b) for positive integers. b == 0 yields 0.
func CeilDiv[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// AlignUp rounds v up to a multiple of a. a must be a power of two.
func AlignUp[T constraints.Unsigned](v, a T) T {
	if a == 0 {
		return v
	}
	return (v + a - 1) &^ (a - 1)
}

// Aligned reports whether v is a multiple of a (a power of two).
func Aligned[T constraints.Unsigned](v, a T) bool {
	return a != 0 && v&(a-1) == 0
}

// IsPow2 reports whether v is a non-zero power of two.
func IsPow2[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}

// Log2 returns log2(v) for powers of two.
func Log2[T constraints.Unsigned](v T) (uint8, bool) {
	if !IsPow2(v) {
		return 0, false
	}
	var n uint8
	for v > 1 {
		v >>= 1
		n++
	}
	return n, true
}
