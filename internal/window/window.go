// Package window implements the transient detector and window-control-code
// emitter that drives overlap scaling and sub-block decimation ahead of the
// forward transform.
//
// The window control byte returned by Analyze packs two independent
// decisions into one octet:
//
//	bit 0-2: overlap scale (log2 of SubBlockSize/OverlapSamples)
//	bit 3:   0 if the block is coded whole, 1 if it was decimated
//	bit 4-7: unary-coded sub-block decimation pattern (see DecimationPattern)
//
// Decimation lets a transient that would otherwise force a small overlap
// scale across the entire block instead sit inside the transition region of
// one short sub-block, preserving a larger transform everywhere else.
package window

import "math"

// AnalysisModulo is the finest granularity, in decimated-bandpass-energy
// segments, that the transient search operates over: the LL/L/M/R
// comparison at the first (undecimated) search step groups AnalysisModulo
// consecutive segments into each of the four windows.
const AnalysisModulo = 4

// segmentsPerBlock is the total number of base segments the entropy
// accumulator produces for a block, covering the LL/L/M/R quadrants at the
// finest decimation level.
const segmentsPerBlock = AnalysisModulo * 4

// decimationPattern encodes, for each 4-bit unary decimation code (the high
// nybble of a window control byte, shifted down), the per-sub-block shift
// amount (bits 0-2 of each nybble) and which sub-block carries the
// transient, hence the overlap scaling (bit 3 of each nybble).
var decimationPattern = [16]uint16{
	0x0000 | 0x0000, // 0000: N/1 (unused; WindowCtrl low bit is never 0 here)
	0x0000 | 0x0008, // 0001: N/1*
	0x0011 | 0x0008, // 0010: N/2*,N/2
	0x0011 | 0x0080, // 0011: N/2,N/2*
	0x0122 | 0x0008, // 0100: N/4*,N/4,N/2
	0x0122 | 0x0080, // 0101: N/4,N/4*,N/2
	0x0221 | 0x0080, // 0110: N/2,N/4*,N/4
	0x0221 | 0x0800, // 0111: N/2,N/4,N/4*
	0x1233 | 0x0008, // 1000: N/8*,N/8,N/4,N/2
	0x1233 | 0x0080, // 1001: N/8,N/8*,N/4,N/2
	0x1332 | 0x0080, // 1010: N/4,N/8*,N/8,N/2
	0x1332 | 0x0800, // 1011: N/4,N/8,N/8*,N/2
	0x2331 | 0x0080, // 1100: N/2,N/8*,N/8,N/4
	0x2331 | 0x0800, // 1101: N/2,N/8,N/8*,N/4
	0x3321 | 0x0800, // 1110: N/2,N/4,N/8*,N/8
	0x3321 | 0x8000, // 1111: N/2,N/4,N/8,N/8*
}

// DecimationPattern returns the sub-block layout for a given window control
// byte: each nybble of the result, from LSB to MSB, is one sub-block's
// shift amount in bits 0-2 (SubBlockSize = BlockSize >> shift) and its
// transient flag (apply overlap scaling) in bit 3.
func DecimationPattern(windowCtrl int) uint16 {
	return decimationPattern[windowCtrl>>4]
}

// State holds the per-stream buffers the transient filter needs to persist
// between blocks: the previous block's filtered energy tail and the
// lowpass/DC-removal smoothing taps. A State must not be shared between
// concurrently-encoded streams.
type State struct {
	transientWindow []float32 // last block's filtered bandpass energy, length maxBlockSize/4
	stepBuffer      []float32 // scratch: restored tail + new energy, length maxBlockSize/2
	segments        []segSum  // scratch: per-segment log-energy accumulators
	smoothLP        float32
	smoothDC        float32
}

type segSum struct {
	sum, sumW float32
}

// NewState allocates a State sized for the largest block size the caller
// will analyze.
func NewState(maxBlockSize int) *State {
	return &State{
		transientWindow: make([]float32, maxBlockSize/4),
		stepBuffer:      make([]float32, maxBlockSize/2),
		segments:        make([]segSum, segmentsPerBlock),
	}
}

// Reset clears the persisted filter state, as if starting a fresh stream.
func (s *State) Reset() {
	for i := range s.transientWindow {
		s.transientWindow[i] = 0
	}
	s.smoothLP, s.smoothDC = 0, 0
}

// Analyze runs the transient filter over the channel-major data block and
// returns the window control byte to emit for it. data and lastBlockData
// must each hold nChan*blockSize samples; lastBlockData is the immediately
// preceding block (used only for the first two bandpass taps) and may be
// all-zero for the very first block of a stream.
func (s *State) Analyze(data, lastBlockData []float32, blockSize, nChan int, rateHz float32) int {
	n4 := blockSize / 4
	tail := s.stepBuffer[:n4]
	fresh := s.stepBuffer[n4 : 2*n4]

	copy(tail, s.transientWindow[:n4])
	for i := range fresh {
		fresh[i] = 0
	}
	bandpassEnergy(fresh, data, lastBlockData, blockSize, nChan)
	smoothEnergy(fresh, &s.smoothLP, &s.smoothDC)
	copy(s.transientWindow[:n4], fresh)

	full := s.stepBuffer[:2*n4] // == blockSize/2 samples, LL/L/M/R at finest granularity
	accumulateSegments(s.segments, full)

	return searchWindowCtrl(s.segments, blockSize, rateHz)
}

// bandpassEnergy applies H(z) = z^1 - z^-1, decimated by 4, accumulating
// squared response across channels into dst (length blockSize/4).
//
// The filter does not have unity gain and the very last sample of the new
// block is dropped; both match the reference filter's deliberate
// shortcuts, which only affect the relative transient ratios used below,
// never the coded audio.
func bandpassEnergy(dst, data, lastBlockData []float32, blockSize, nChan int) {
	n4 := blockSize / 4
	for chan_ := 0; chan_ < nChan; chan_++ {
		oldBase := chan_*blockSize + blockSize - 2
		newBase := chan_ * blockSize
		srcOld := lastBlockData[oldBase:]
		srcNew := data[newBase:]

		d := 0
		bp := func(zm1, z0, z1 float32) float32 { return z1 - zm1 }
		dst[d] += sqr32(bp(srcOld[0], srcNew[0], srcNew[1]))
		dst[d] += sqr32(bp(srcNew[0], srcNew[1], srcNew[2]))
		dst[d] += sqr32(bp(srcNew[1], srcNew[2], srcNew[3]))
		dst[d] += sqr32(bp(srcNew[2], srcNew[3], srcNew[4]))
		d++
		srcNew = srcNew[3:]
		for n := 1; n < n4-1; n++ {
			dst[d] += sqr32(bp(srcNew[0], srcNew[1], srcNew[2]))
			dst[d] += sqr32(bp(srcNew[1], srcNew[2], srcNew[3]))
			dst[d] += sqr32(bp(srcNew[2], srcNew[3], srcNew[4]))
			dst[d] += sqr32(bp(srcNew[3], srcNew[4], srcNew[5]))
			d++
			srcNew = srcNew[4:]
		}
		// Only three taps in the final group: a fourth would need one
		// sample past the end of the block, so its contribution is
		// approximated by scaling the running sum instead.
		dst[d] += sqr32(bp(srcNew[0], srcNew[1], srcNew[2]))
		dst[d] += sqr32(bp(srcNew[1], srcNew[2], srcNew[3]))
		dst[d] += sqr32(bp(srcNew[2], srcNew[3], srcNew[4]))
		dst[d] *= 4 / 3.0
	}
}

func sqr32(x float32) float32 { return x * x }

// smoothEnergy applies the lowpass + DC-removal smoothing pass over an
// energy segment in place, updating the persisted taps.
func smoothEnergy(buf []float32, lpTap, dcTap *float32) {
	const lpDecay = 240.0 / 256.0
	const dcDecay = 252.0 / 256.0
	lp, dc := *lpTap, *dcTap
	for i, e := range buf {
		v := float32(math.Sqrt(float64(e)))
		lp += v * (1 - lpDecay)
		v = lp
		lp *= lpDecay
		dc += v * (1 - dcDecay)
		v = absf32(v - dc)
		dc *= dcDecay
		buf[i] = v
	}
	*lpTap, *dcTap = lp, dc
}

func absf32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// accumulateSegments partitions full (blockSize/2 decimated-energy samples)
// into segmentsPerBlock equal groups and reduces each to a weighted-log
// energy accumulator, the input the transient search loop operates on.
func accumulateSegments(segments []segSum, full []float32) {
	per := len(full) / segmentsPerBlock
	if per == 0 {
		per = 1
	}
	for seg := range segments {
		lo := seg * per
		hi := lo + per
		if hi > len(full) {
			hi = len(full)
		}
		if lo > hi {
			lo = hi
		}
		var sum, sumW float32
		for _, d := range full[lo:hi] {
			w := d * d
			sumW += w
			sum += w * lnApprox(d)
		}
		segments[seg] = segSum{sum, sumW}
	}
}

// lnApprox is the natural log used to weight segment energies. Precision
// beyond float32 is not needed here: the result only ever feeds a ratio
// comparison, never the coded spectrum.
func lnApprox(x float32) float32 {
	if x <= 0 {
		return 0
	}
	return float32(math.Log(float64(x)))
}

// groupSum sums count consecutive base segments starting at the given
// offset; used to recombine the finest-granularity accumulators into the
// coarser LL/L/M/R groups the decimation search compares at each level.
func groupSum(segments []segSum, offset, count int) segSum {
	var out segSum
	for i := 0; i < count; i++ {
		idx := offset + i
		if idx < 0 || idx >= len(segments) {
			continue
		}
		out.sum += segments[idx].sum
		out.sumW += segments[idx].sumW
	}
	return out
}

const minLog = -100.0

func finalize(s segSum) float32 {
	if s.sum != 0 {
		return s.sum / s.sumW
	}
	return minLog
}

// searchWindowCtrl runs the binary decimation search over the segment
// accumulators and derives the final overlap scale, returning the packed
// window control byte.
func searchWindowCtrl(segments []segSum, blockSize int, rateHz float32) int {
	const (
		posL = iota
		posM
		posR
	)

	decimation := 1
	subBlockSize := blockSize
	analysisLen := AnalysisModulo
	groupBase := analysisLen // the search starts one AnalysisLen group into the segment array

	var ratio float32
	for {
		ll := groupSum(segments, groupBase-analysisLen, analysisLen)
		l := groupSum(segments, groupBase, analysisLen)
		m := groupSum(segments, groupBase+analysisLen, analysisLen)
		r := groupSum(segments, groupBase+2*analysisLen, analysisLen)

		llF, lF, mF, rF := finalize(ll), finalize(l), finalize(m), finalize(r)
		ratioL := lF - llF
		ratioM := mF - lF
		ratioR := rF - mF

		pos, best := posL, ratioL
		if ratioM > best {
			pos, best = posM, ratioM
		}
		if ratioR > best {
			pos, best = posR, ratioR
		}
		ratio = best

		if analysisLen > 1 && subBlockSize > 64 {
			const ln2 = 0.6931472
			if pos != posR && ratio > ln2 {
				if pos == posL {
					decimation = decimation << 1
				} else {
					decimation = (decimation << 1) | 1
					groupBase += analysisLen
				}
				analysisLen /= 2
				subBlockSize /= 2
				continue
			}
		}
		break
	}

	overlapScale := 0
	if subBlockSize > 0 {
		log2SubBlockSize := float32(31 - bitsLeadingZero32(uint32(subBlockSize)))
		log2OverlapScale := log2SubBlockSize + 4.3222656 - 1.4427090*(lnApprox(rateHz)-ratio)
		if log2OverlapScale > 0 {
			if log2OverlapScale >= 6.5 {
				overlapScale = 7
			} else {
				overlapScale = int(log2OverlapScale + 0.5)
			}
		}
	}
	for (subBlockSize >> uint(overlapScale)) < 16 {
		overlapScale--
	}

	decimatedFlag := 0
	if decimation != 1 {
		decimatedFlag = 8
	}
	return overlapScale + decimatedFlag + 16*decimation
}

func bitsLeadingZero32(x uint32) int {
	n := 0
	for x&0x80000000 == 0 && n < 32 {
		x <<= 1
		n++
	}
	return n
}
