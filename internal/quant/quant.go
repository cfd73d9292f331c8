// Package quant implements the companded quantizer used throughout the
// ULC encoder: a closed-form rounding rule that packs small magnitudes
// into few codes while still resolving perceptually significant
// amplitudes.
//
// Given x pre-scaled by the quantizer step, and x' the companded value of
// x, the optimal rounding of x' minimizes (x-xq^2)^2 + ((xq+1)^2-x)^2. That
// reduces to:
//
//	xq = 0                     if x < 0.5
//	xq = round(sqrt(x - 0.25)) otherwise
//
// See the package tests for a derivation check against brute-force search.
package quant

import "math"

// Unsigned quantizes a non-negative value using the companded rule.
func Unsigned(v float32) int {
	if v >= 0.5 {
		return int(math.Round(math.Sqrt(float64(v - 0.25))))
	}
	return 0
}

// Signed quantizes v, preserving its sign.
func Signed(v float32) int {
	vq := Unsigned(abs32(v))
	if v < 0 {
		return -vq
	}
	return vq
}

// UnsignedBounded is Unsigned clamped to [0, limit].
func UnsignedBounded(v float32, limit int) int {
	vq := Unsigned(v)
	if vq > limit {
		return limit
	}
	return vq
}

// SignedBounded is Signed clamped to [-limit, +limit].
func SignedBounded(v float32, limit int) int {
	vq := UnsignedBounded(abs32(v), limit)
	if v < 0 {
		return -vq
	}
	return vq
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
