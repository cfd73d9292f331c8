// Package blockcoder emits the final nybble stream for one block: the
// per-channel quantizer headers, zero-run-length-coded gaps, and clamped
// 4-bit coefficient codes that make up the wire format.
package blockcoder

import (
	"math"

	"github.com/ulccodec/ulc/internal/keys"
	"github.com/ulccodec/ulc/internal/nybble"
	"github.com/ulccodec/ulc/internal/ratectl"
)

// Quants is one channel's quantizer-zone step sizes, one entry per zone
// whose header nybble is emitted; an entry is ratectl.QuantizerUnused when
// the zone has no survivors.
type Quants = []float32

// Encode writes one block's bitstream into w. coef holds each channel's
// rescaled (post Block_Transform_ScaleAndToNepers) spectrum, length
// blockSize per channel. survivors must already be sorted into coding
// order (keys.SortByPosition) and trimmed to exactly the bands that will
// be coded. quants and widths are indexed [chan][qband] and have the same
// length per channel; one header nybble is emitted per entry, so callers
// trim both to the zones the block used. widths sums to blockSize per
// channel.
//
// Returns the number of coded non-zero coefficients.
func Encode(w *nybble.Writer, survivors []keys.Key, coef [][]float32, quants []Quants, widths [][]int, nChan, blockSize int) int {
	nNzCoded := 0
	key := 0

	for chanIdx := 0; chanIdx < nChan; chanIdx++ {
		quantsBw := widths[chanIdx]
		chanQuants := quants[chanIdx]
		nQuants := len(chanQuants)

		for q := 0; q < nQuants; q++ {
			step := chanQuants[q]
			if step == ratectl.QuantizerUnused {
				w.PushNybble(0xF)
				continue
			}
			w.PushNybble(uint8(log2Step(step)))
		}

		nextNz, lastNz := 0, 0
		nextQuantBand := 0
		for {
			for nextQuantBand < nQuants && chanQuants[nextQuantBand] == ratectl.QuantizerUnused {
				lastNz += quantsBw[nextQuantBand]
				nextQuantBand++
			}
			if nextQuantBand >= nQuants {
				break
			}

			nextNz = lastNz
			lastNz += quantsBw[nextQuantBand]
			curQuantBand := nextQuantBand
			curQuantEnd := lastNz

			for {
				nextQuantBand++
				if nextQuantBand >= nQuants || chanQuants[nextQuantBand] == ratectl.QuantizerUnused {
					break
				}
				lastNz += quantsBw[nextQuantBand]
			}

			for key < len(survivors) {
				k := survivors[key]
				if k.Band >= lastNz || k.Chan != chanIdx {
					break
				}
				tBand := k.Band

				zr := tBand - nextNz
				for zr >= 4 {
					n := zr
					if n < 26 {
						n = (n - 2) / 2
						w.PushNybble(0x8)
						w.PushNybble(uint8(n))
						n = n*2 + 2
					} else {
						n = (n - 26) / 2
						if n > 0x3F {
							n = 0x3F
						}
						w.PushNybble(0x8)
						w.PushNybble(uint8(0xC + (n >> 4)))
						w.PushNybble(uint8(n & 0xF))
						n = n*2 + 26
					}
					nextNz += n
					zr -= n
				}

				for nextNz <= tBand {
					if nextNz >= curQuantEnd {
						curQuantBand++
						if curQuantBand < nQuants {
							curQuantEnd += quantsBw[curQuantBand]
						}
					}

					step := chanQuants[curQuantBand]
					qn := 0
					if step > 0 {
						qn = int(math.Round(float64(coef[chanIdx][nextNz] / step)))
					}
					if qn < -7 {
						qn = -7
					}
					if qn > 7 {
						qn = 7
					}
					w.PushNybble(uint8(qn & 0xF))
					if qn != 0 {
						nNzCoded++
					}
					nextNz++
				}
				key++
			}

			n := lastNz - nextNz
			switch {
			case n == 1:
				w.PushNybble(0x0)
			case n >= 2:
				w.PushNybble(0x8)
				w.PushNybble(0x0)
			}
		}
	}

	return nNzCoded
}

// log2Step returns the integer log2 of a power-of-two quantizer step. The
// caller handles ratectl.QuantizerUnused (nybble 0xF) separately; this is
// only ever called with a real, positive step.
func log2Step(step float32) int {
	if step <= 0 {
		return 0
	}
	return int(math.Round(math.Log2(float64(step))))
}
