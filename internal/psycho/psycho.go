// Package psycho computes the psychoacoustic masking level of every
// spectral coefficient in a transformed block: a per-bin estimate, in
// nepers, of the energy a human listener can't distinguish from silence
// once nearby louder content is accounted for.
//
// The estimate is a contraharmonic mean of neighboring bins' log-energy,
// weighted by their linear energy, over a band whose width scales with
// position (wider at high bins, narrower at low ones, matching the ear's
// critical bandwidth). An optional second, narrower "noise" window biases
// the result toward tone-preserving behavior when noise-fill coding is in
// use — see Compute's ultrastable parameter.
package psycho

import (
	"math"

	"github.com/ulccodec/ulc/internal/window"
)

const (
	mainLoRangeScale = 29.0 / 32.0 // Beg = 0.90625*Band
	mainHiRangeScale = 45.0 / 32.0 // End = 1.40625*Band

	noiseLoRangeScale = 15.0 / 16.0 // Beg = 0.9375*Band
	noiseHiRangeScale = 20.0 / 16.0 // End = 1.25*Band
)

// Scratch holds the per-bin normalized-energy buffers Compute needs, sized
// once for the largest block size in use so repeated calls never allocate.
type Scratch struct {
	energyNp  []float32
	energyLin []float32
}

// NewScratch allocates a Scratch sized for the largest block size that will
// be passed to Compute.
func NewScratch(maxBlockSize int) *Scratch {
	return &Scratch{
		energyNp:  make([]float32, maxBlockSize),
		energyLin: make([]float32, maxBlockSize),
	}
}

// Compute fills maskingNp (length blockSize) with the masking level of
// every bin in bufferAmp2 (squared spectral magnitude, length blockSize),
// processing each sub-block named by windowCtrl's decimation pattern
// independently — a transient sub-block's masking curve must not leak
// across its own boundary into a neighboring sub-block.
//
// ultrastable selects the "weight out noise" policy: true biases masking
// up in noisy regions (so more bits go to tones, at the cost of duller
// noise reproduction), matching the codec's default whenever noise-fill
// coding is enabled.
func Compute(maskingNp, bufferAmp2 []float32, blockSize, windowCtrl int, ultrastable bool, scratch *Scratch) {
	pattern := window.DecimationPattern(windowCtrl)
	off := 0
	for {
		shift := int(pattern & 0x7)
		subBlockSize := blockSize >> uint(shift)
		if subBlockSize <= 0 || off+subBlockSize > blockSize {
			break
		}
		computeSubBlock(
			maskingNp[off:off+subBlockSize],
			bufferAmp2[off:off+subBlockSize],
			scratch.energyNp[off:off+subBlockSize],
			scratch.energyLin[off:off+subBlockSize],
			ultrastable,
		)
		off += subBlockSize
		pattern >>= 4
		if pattern == 0 {
			break
		}
	}
}

// computeSubBlock runs the sliding-window masking analysis over one
// sub-block's worth of bins.
func computeSubBlock(maskingNp, amp2, energyNp, energyLin []float32, ultrastable bool) {
	n := len(amp2)
	if n == 0 {
		return
	}

	var norm float32
	for _, v := range amp2 {
		if v > norm {
			norm = v
		}
	}
	if norm == 0 {
		for i := range maskingNp {
			maskingNp[i] = 0
		}
		return
	}

	for i, v := range amp2 {
		a := v / norm
		if a <= 0 {
			energyNp[i] = 0
			energyLin[i] = 0
			continue
		}
		energyNp[i] = float32(math.Log(float64(a)))
		energyLin[i] = float32(math.Sqrt(float64(a)))
	}

	log2SubBlockSize := uint(math.Log2(float64(n)))

	// energyNp is relative to this sub-block's peak; this term restores the
	// sub-block's absolute level in the output mask.
	normNp := math.Log(float64(norm)) / 3

	var bandBeg, bandEnd float64
	var sum, sumW float64
	oldBeg, oldEnd := 0, 0

	var noiseBeg, noiseEnd float64
	var noiseSum float64
	noiseOldBeg, noiseOldEnd := 0, 0

	for i := 0; i < n; i++ {
		bandBeg += mainLoRangeScale
		for newBeg := int(bandBeg); oldBeg < newBeg && oldBeg < n; oldBeg++ {
			sumW -= float64(energyLin[oldBeg])
			sum -= float64(energyLin[oldBeg]) * float64(energyNp[oldBeg])
		}
		bandEnd += mainHiRangeScale
		newEnd := int(bandEnd)
		if newEnd > n {
			newEnd = n
		}
		for oldEnd < newEnd {
			sumW += float64(energyLin[oldEnd])
			sum += float64(energyLin[oldEnd]) * float64(energyNp[oldEnd])
			oldEnd++
		}

		x := 0.0
		if sumW != 0 {
			x = sum / sumW
		}

		if ultrastable {
			noiseBeg += noiseLoRangeScale
			for nb := int(noiseBeg); noiseOldBeg < nb && noiseOldBeg < n; noiseOldBeg++ {
				noiseSum -= float64(energyNp[noiseOldBeg])
			}
			noiseEnd += noiseHiRangeScale
			ne := int(noiseEnd)
			if ne > n {
				ne = n
			}
			for noiseOldEnd < ne {
				noiseSum += float64(energyNp[noiseOldEnd])
				noiseOldEnd++
			}
			// This divides the running noise-window sum by the whole
			// sub-block size rather than by the noise window's own width;
			// kept as-is rather than "corrected" against the reference.
			x += noiseSum / float64(uint64(1)<<log2SubBlockSize)
		}

		maskingNp[i] = float32(x + normNp)
	}
}
