// Package noisefill estimates the noise-fill / HF-extension parameters for
// a quantizer zone that came up with zero surviving keys, as an optional
// diagnostic extension: a host application can use the estimate to
// synthesize comfort noise for an all-silent zone without spending any
// coded bits on it. It never changes the wire format — see DESIGN.md's
// open design decision 5.
package noisefill

import (
	"math"

	"github.com/ulccodec/ulc/internal/quant"
)

// Result is a quantizer zone's fitted noise-fill parameters: a companded
// amplitude code and a companded decay code describing how fast the
// zone's unquantized energy falls off across its width.
type Result struct {
	AmplitudeQ int
	DecayQ     int
}

// Fit solves a weighted least-squares exponential fit of a quantizer
// zone's unquantized log-energy against band position, then converts the
// fit to companded amplitude/decay codes via the same companded
// quantizer (internal/quant) the rest of the encoder uses.
//
// energy holds the zone's per-band unquantized magnitude; weight holds
// the matching per-band energy weight (coef^2, the same weight
// insertKeys already derives when building the zone's own step). ok is
// false when the fit is singular — too few non-zero bands, or the
// weighted Gram matrix of this 2-parameter fit has zero determinant —
// and the caller should treat the zone as having no noise-fill
// parameters at all.
func Fit(energy, weight []float32) (r Result, ok bool) {
	n := len(energy)
	if n == 0 || n != len(weight) {
		return Result{}, false
	}

	var sumX, sumX2, sumXY, sumY, sumW float64
	for i := 0; i < n; i++ {
		w := float64(weight[i])
		e := float64(energy[i])
		if w <= 0 || e <= 0 {
			continue
		}
		x := float64(i) * 2
		wy := w * math.Log(e)
		sumX += w * x
		sumX2 += w * x * x
		sumXY += x * wy
		sumY += wy
		sumW += w
	}

	det := sumW*sumX2 - sumX*sumX
	if det == 0 {
		return Result{}, false
	}
	amplitudeNp := (sumX2*sumY - sumX*sumXY) / det
	decayNp := (sumW*sumXY - sumX*sumY) / det

	amplitude := float32(math.Exp(amplitudeNp))
	decay := float32(math.Exp(decayNp))
	if decay > 1 {
		decay = 1
	}

	// Amplitude is scaled by 4.0 ahead of quantization (matching the HF
	// extension's wider, 4-bit amplitude range); decay is reparameterized
	// as (1-Decay)*2^19 so that Decay==1 (no falloff) quantizes to 0.
	ampQ := quant.UnsignedBounded(amplitude*4.0, 0xF)
	decayQ := quant.UnsignedBounded((1-decay)*0x80000, 0xFF)
	return Result{AmplitudeQ: ampQ, DecayQ: decayQ}, true
}

// Bits returns the bit cost a wire format would pay to signal r: a 4-bit
// amplitude code plus an 8-bit decay code, or 0 if the fit was singular.
// The current encoder never actually spends these bits — Fit is a pure
// analysis hook, per §4.J — so Bits exists only so a future wire-format
// revision has a single place to account for the cost.
func Bits(r Result, ok bool) int {
	if !ok {
		return 0
	}
	return 4 + 8
}
