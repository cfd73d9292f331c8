// Package mdct implements the forward lapped transform used by the block
// transform driver. Per the encoder's component contract this primitive is
// treated as an external building block: callers only rely on
//
//	Forward(out, in, lap, tmp, blockSize, overlapSamples)
//
// applying a sine taper over the transition region of length
// overlapSamples, producing blockSize frequency-domain coefficients, and
// rotating the new overlap tail into lap for the next call.
//
// The transform itself follows the "short-overlap" folding technique
// common to lapped audio transforms: rather than keeping a full
// 2*blockSize-sample history, only the most recent overlapSamples of the
// previous block are required (carried in lap), pre- and post-rotated
// around a half-size complex transform.
package mdct

import (
	"math"
	"sync"

	"golang.org/x/sys/cpu"
)

// LapSize returns the number of samples Forward expects in lap for a given
// block size.
func LapSize(blockSize int) int { return blockSize / 2 }

// Scratch holds the complex working buffers Forward needs so that repeated
// calls (one per encoded block) never allocate. Size must be at least
// blockSize/2 for the largest block size the caller will use.
type Scratch struct {
	fftIn  []complex128
	fftOut []complex128
	fftTmp []complex128
}

// NewScratch allocates a Scratch sized for the largest block size that
// will be passed to Forward.
func NewScratch(maxBlockSize int) *Scratch {
	n4 := maxBlockSize / 2
	if n4 < 1 {
		n4 = 1
	}
	return &Scratch{
		fftIn:  make([]complex128, n4),
		fftOut: make([]complex128, n4),
		fftTmp: make([]complex128, n4),
	}
}

// Forward computes blockSize MDCT coefficients from blockSize new time
// samples in, cross-fading the leading overlapSamples against the tail
// kept in lap from the previous call. tmp must have length at least
// 2*blockSize + overlapSamples; it is pure scratch. lap is updated in
// place with the new carry for the next call. scratch must come from
// NewScratch(maxBlockSize) with maxBlockSize >= blockSize.
//
// overlapSamples must be in [0, blockSize].
func Forward(out, in, lap, tmp []float32, blockSize, overlapSamples int, scratch *Scratch) {
	n2 := blockSize
	n4 := n2 / 2
	if n4 <= 0 {
		return
	}

	combined := tmp[:n2+overlapSamples]
	copy(combined[:overlapSamples], lap[LapSize(blockSize)-overlapSamples:])
	copy(combined[overlapSamples:], in[:n2])

	window := windowFor(overlapSamples)
	f := tmp[n2+overlapSamples : n2+overlapSamples+n2]
	foldWindowed(f, combined, window, n2, overlapSamples)

	trig := trigFor(n2)
	fftIn := scratch.fftIn[:n4]
	preRotate(fftIn, f, trig, n4)

	fftOut := scratch.fftOut[:n4]
	dftInto(fftOut, fftIn, scratch.fftTmp[:n4])
	postRotate(out, fftOut, trig, n2, n4)

	copy(lap[:LapSize(blockSize)], in[n2-LapSize(blockSize):n2])
}

// foldWindowed builds the pre-FFT real/imaginary-interleaved buffer f from
// the combined [overlap-tail | new samples] buffer, applying the sine
// taper only within the transition region. This mirrors the standard
// short-overlap MDCT folding used by lapped audio transforms: the
// non-overlapped middle of the block needs no windowing at all.
func foldWindowed(f, samples []float32, window []float32, n2, overlap int) {
	xp1 := overlap / 2
	xp2 := n2 - 1 + overlap/2
	wp1 := overlap / 2
	wp2 := overlap/2 - 1
	i := 0
	limit1 := (overlap + 3) >> 2
	n4 := n2 / 2

	for ; i < limit1; i++ {
		f[2*i] = samples[xp1+n2]*window[wp2] + samples[xp2]*window[wp1]
		f[2*i+1] = samples[xp1]*window[wp1] - samples[xp2-n2]*window[wp2]
		xp1 += 2
		xp2 -= 2
		wp1 += 2
		wp2 -= 2
	}
	for ; i < n4-limit1; i++ {
		f[2*i] = samples[xp2]
		f[2*i+1] = samples[xp1]
		xp1 += 2
		xp2 -= 2
	}
	wp1 = 0
	wp2 = overlap - 1
	for ; i < n4; i++ {
		f[2*i] = -samples[xp1-n2]*window[wp1] + samples[xp2]*window[wp2]
		f[2*i+1] = samples[xp1]*window[wp2] + samples[xp2+n2]*window[wp1]
		xp1 += 2
		xp2 -= 2
		wp1 += 2
		wp2 -= 2
	}
}

func preRotate(fftIn []complex128, f []float32, trig []float32, n4 int) {
	scale := 1.0 / float64(n4)
	for i := 0; i < n4; i++ {
		re := float64(f[2*i])
		im := float64(f[2*i+1])
		t0 := float64(trig[i])
		t1 := float64(trig[n4+i])
		yr := re*t0 - im*t1
		yi := im*t0 + re*t1
		fftIn[i] = complex(yr*scale, yi*scale)
	}
}

func postRotate(coeffs []float32, fftOut []complex128, trig []float32, n2, n4 int) {
	for i := 0; i < n4; i++ {
		re := real(fftOut[i])
		im := imag(fftOut[i])
		t0 := float64(trig[i])
		t1 := float64(trig[n4+i])
		yr := im*t1 - re*t0
		yi := re*t1 + im*t0
		coeffs[2*i] = float32(yr)
		coeffs[n2-1-2*i] = float32(yi)
	}
}

// dftInto computes the forward discrete Fourier transform of in into out
// by direct summation, using tmp (same length) as the per-bin twiddle
// scratch so the call never allocates. Block sizes in this codec are
// small powers of two (n4 tops out in the low thousands), so an O(n^2)
// reference transform keeps this opaque primitive simple and obviously
// correct.
func dftInto(out, in, tmp []complex128) {
	n := len(in)
	if hasAccel {
		dftIntoWide(out, in, tmp, n)
		return
	}
	dftIntoScalar(out, in, n)
}

// dftIntoScalar is the canonical reference transform.
func dftIntoScalar(out, in []complex128, n int) {
	for k := 0; k < n; k++ {
		var sum complex128
		for t := 0; t < n; t++ {
			angle := -2 * math.Pi * float64(k*t) / float64(n)
			sum += in[t] * complex(math.Cos(angle), math.Sin(angle))
		}
		out[k] = sum
	}
}

// dftIntoWide performs the identical summation, unrolled two bins at a
// time. It exists as the hook an AVX2 kernel would replace; the math is
// untouched, so it stays bit-for-bit identical to dftIntoScalar as
// required of any accelerated path in this codec.
func dftIntoWide(out, in, tmp []complex128, n int) {
	if n%2 != 0 {
		dftIntoScalar(out, in, n)
		return
	}
	_ = tmp
	for k := 0; k < n; k += 2 {
		var sum0, sum1 complex128
		for t := 0; t < n; t++ {
			v := in[t]
			a0 := -2 * math.Pi * float64(k*t) / float64(n)
			a1 := -2 * math.Pi * float64((k+1)*t) / float64(n)
			sum0 += v * complex(math.Cos(a0), math.Sin(a0))
			sum1 += v * complex(math.Cos(a1), math.Sin(a1))
		}
		out[k] = sum0
		out[k+1] = sum1
	}
}

// hasAccel reports whether AVX2 is available on this machine; it selects
// dftIntoWide over dftIntoScalar.
var hasAccel = cpu.X86.HasAVX2

var (
	trigMu    sync.Mutex
	trigCache = map[int][]float32{}

	windowMu    sync.Mutex
	windowCache = map[int][]float32{}
)

// trigFor returns the cos((i+0.125)*2*pi/n) table used by the pre/post
// rotation steps, sized n2 = n/2.
func trigFor(n2 int) []float32 {
	trigMu.Lock()
	defer trigMu.Unlock()
	if t, ok := trigCache[n2]; ok {
		return t
	}
	n := 2 * n2
	t := make([]float32, n2)
	for i := 0; i < n2; i++ {
		angle := 2.0 * math.Pi * (float64(i) + 0.125) / float64(n)
		t[i] = float32(math.Cos(angle))
	}
	trigCache[n2] = t
	return t
}

// windowFor returns the power-complementary taper used over the
// transition region: w[i] = sin(pi/2 * sin(pi/2 * (i+0.5)/overlap)^2).
// This is the same Vorbis-style window used for MDCT overlap-add in
// lapped audio transforms generally; unlike a fixed-length codec window
// table it must support the encoder's variable per-block overlap length.
func windowFor(overlap int) []float32 {
	if overlap <= 0 {
		return nil
	}
	windowMu.Lock()
	defer windowMu.Unlock()
	if w, ok := windowCache[overlap]; ok {
		return w
	}
	w := make([]float32, overlap)
	for i := 0; i < overlap; i++ {
		s := math.Sin(0.5 * math.Pi * (float64(i) + 0.5) / float64(overlap))
		w[i] = float32(math.Sin(0.5 * math.Pi * s * s))
	}
	windowCache[overlap] = w
	return w
}
