// Package transform drives one block's forward transform: it runs the
// window controller to decide overlap, calls the MDCT per channel, derives
// the Nepers-domain spectrum the rest of the encoder reasons in, scores
// every coefficient against the psychoacoustic mask, and emits the
// resulting candidate key list.
package transform

import (
	"math"

	"github.com/ulccodec/ulc/internal/keys"
	"github.com/ulccodec/ulc/internal/mdct"
	"github.com/ulccodec/ulc/internal/psycho"
	"github.com/ulccodec/ulc/internal/ratectl"
	"github.com/ulccodec/ulc/internal/window"
)

// neperOutOfRange marks a coefficient too small to distinguish from
// silence; it is excluded from key extraction entirely. This collides, by
// construction inherited from the reference algorithm, with the Nepers
// value a coefficient of magnitude exactly 1.0 would produce — an
// existing quirk, not one introduced here.
const neperOutOfRange = 0.0

// coefEps is half the smallest coefficient magnitude considered
// significant.
const coefEps = ratectl.CoefEps / 2

// Masking-equation scaling constants. Empirically tuned in the reference
// codec; not derived from first principles, and not second-guessed here.
//
// The reference's key-insertion step also adds a third, flatness-derived
// term (2*4*Flat^2*(Flat^2-1)) on top of these two. That term comes from
// an older masking-state API (MaskingState_Init/UpdateMaskingThreshold)
// that is a different, unretrieved revision of the masking computation —
// not the one internal/psycho implements, which is the 2021
// Block_Transform_CalculatePsychoacoustics and never produces a Flat
// value at all. Porting the flatness term would mean reintroducing that
// older masking state machine alongside the 2021 one already chosen
// (see DESIGN.md open decision 6), so it is omitted rather than guessed
// at from a different algorithm revision.
const (
	maskToneWeight = 3.4538777  // applied to the coefficient's own Nepers value
	maskLevelWeight = 2.5328436 // applied to the psychoacoustic mask level
)

// State holds everything that must persist across blocks: the window
// controller's transient filter, per-channel MDCT overlap tails, and the
// scratch buffers the transform and masking stages need to stay
// allocation-free.
type State struct {
	win          *window.State
	mdctScratch  *mdct.Scratch
	psychoScratch *psycho.Scratch

	lap      [][]float32 // per channel, length maxBlockSize/2
	tmp      []float32   // shared MDCT scratch, length 3*maxBlockSize
	lastData []float32   // previous block's raw samples, channel-major

	coef     [][]float32 // per channel, length maxBlockSize
	nepers   [][]float32 // per channel, length maxBlockSize
	amp2     []float32   // shared scratch, length maxBlockSize
	masking  [][]float32 // per channel, length maxBlockSize
	widths    [][]int     // per channel, length ratectl.MaxQBands
	numQBands []int       // per channel, number of zones actually used
	coefView  [][]float32 // reused view returned as Result.Coef, length maxChan
}

// NewState allocates a State sized for the largest block size and channel
// count the caller will drive through Process.
func NewState(maxBlockSize, maxChan int) *State {
	s := &State{
		win:           window.NewState(maxBlockSize),
		mdctScratch:   mdct.NewScratch(maxBlockSize),
		psychoScratch: psycho.NewScratch(maxBlockSize),
		tmp:           make([]float32, 3*maxBlockSize),
		lastData:      make([]float32, maxChan*maxBlockSize),
		amp2:          make([]float32, maxBlockSize),
		coefView:      make([][]float32, maxChan),
		numQBands:     make([]int, maxChan),
	}
	for c := 0; c < maxChan; c++ {
		s.lap = append(s.lap, make([]float32, maxBlockSize/2))
		s.coef = append(s.coef, make([]float32, maxBlockSize))
		s.nepers = append(s.nepers, make([]float32, maxBlockSize))
		s.masking = append(s.masking, make([]float32, maxBlockSize))
		s.widths = append(s.widths, make([]int, ratectl.MaxQBands))
	}
	return s
}

// Result is the outcome of processing one block: the window control byte
// to emit and the candidate key list, ready for weight-sorting and
// survivor selection.
type Result struct {
	WindowCtrl int
	Keys       []keys.Key
	// Widths holds, per channel, the number of raw spectral bands
	// (ratectl.MaxQBands entries, most left at 0) each quantizer zone
	// spans — the bitstream's QuantsBw, needed to locate zone boundaries
	// independent of which bands within a zone survived selection.
	Widths [][]int
	// Coef holds, per channel, the rescaled (post ScaleAndToNepers)
	// spectrum that blockcoder.Encode quantizes against the chosen
	// zone steps. Valid only until the next call to Process.
	Coef [][]float32
	// NumQBands holds, per channel, how many of Widths' MaxQBands entries
	// are actually in use this block — the caller should slice both
	// Widths[c] and its quantizer-step array down to this length before
	// handing them to blockcoder.Encode, so unused zone slots never cost
	// a header nybble.
	NumQBands []int
}

// Process runs the full transform pipeline over one channel-major block of
// data (nChan*blockSize samples) and appends every codeable coefficient's
// candidate key to dst (which the caller truncates to 0 length first, and
// which must have capacity nChan*blockSize).
//
// quantRange is the Nepers-domain half-range a quantizer zone may span
// before key extraction starts a new one (see ratectl.QuantRange).
// powerDecayNp is the per-channel bias applied to later channels' key
// weights (ln of the configured power-decay factor); it lets
// multi-channel streams favor earlier channels when bits are scarce.
func (s *State) Process(dst []keys.Key, data []float32, blockSize, nChan int, rateHz, quantRange, powerDecayNp float32, ultrastable bool) Result {
	windowCtrl := s.win.Analyze(data, s.lastData[:nChan*blockSize], blockSize, nChan, rateHz)
	overlapScale := windowCtrl & 0x7
	overlapSamples := blockSize >> uint(overlapScale)

	var analysisPowerNp float32
	for c := 0; c < nChan; c++ {
		src := data[c*blockSize : (c+1)*blockSize]
		coef := s.coef[c][:blockSize]
		s.coefView[c] = coef
		mdct.Forward(coef, src, s.lap[c][:mdct.LapSize(blockSize)], s.tmp, blockSize, overlapSamples, s.mdctScratch)

		nepers := s.nepers[c][:blockSize]
		scaleAndToNepers(nepers, coef, blockSize)

		amp2 := s.amp2[:blockSize]
		for i, v := range coef {
			amp2[i] = v * v
		}
		masking := s.masking[c][:blockSize]
		psycho.Compute(masking, amp2, blockSize, windowCtrl, ultrastable, s.psychoScratch)

		widths := s.widths[c]
		for i := range widths {
			widths[i] = 0
		}
		var qbandsUsed int
		dst, qbandsUsed = insertKeys(dst, coef, nepers, masking, widths, blockSize, c, analysisPowerNp, quantRange)
		s.numQBands[c] = qbandsUsed
		analysisPowerNp += powerDecayNp
	}

	copy(s.lastData[:nChan*blockSize], data[:nChan*blockSize])
	return Result{WindowCtrl: windowCtrl, Keys: dst, Widths: s.widths[:nChan], Coef: s.coefView[:nChan], NumQBands: s.numQBands[:nChan]}
}

// scaleAndToNepers rescales coef in place by 2/blockSize (the MDCT's
// natural normalization) and writes the natural log of each rescaled
// magnitude into nepers, using neperOutOfRange as a sentinel for
// coefficients too small to code.
func scaleAndToNepers(nepers, coef []float32, blockSize int) {
	scale := float32(2.0 / float64(blockSize))
	for i, c := range coef {
		v := c * scale
		coef[i] = v
		a := absf32(v)
		if a < coefEps {
			nepers[i] = neperOutOfRange
		} else {
			nepers[i] = float32(math.Log(float64(a)))
		}
	}
}

func absf32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// insertKeys walks one channel's spectrum, splitting it into quantizer
// zones as coefficient magnitude drifts outside the current zone's
// QuantRange, and appends one candidate key per codeable band. It returns
// the updated dst and the number of zones actually touched (qband's final
// value + 1), so the caller can trim away the unused tail of MaxQBands
// before the block encoder ever sees it.
func insertKeys(dst []keys.Key, coef, nepers, masking []float32, widths []int, blockSize, chanIdx int, analysisPowerNp, quantRange float32) ([]keys.Key, int) {
	qband := 0
	var qbandAvg, qbandAvgW float32

	for band := 0; band < blockSize; band++ {
		valNp := nepers[band]
		if valNp == neperOutOfRange {
			widths[qband]++
			continue
		}

		if (valNp+quantRange)*qbandAvgW < qbandAvg || (valNp-quantRange)*qbandAvgW > qbandAvg {
			if qband < ratectl.MaxQBands-1 {
				qbandAvg, qbandAvgW = 0, 0
				qband++
			}
		}
		widths[qband]++
		w := coef[band] * coef[band]
		qbandAvg += w * valNp
		qbandAvgW += w

		finalNp := maskToneWeight*valNp - maskLevelWeight*masking[band]
		val := float32(math.Exp(float64(2*finalNp + analysisPowerNp)))

		dst = append(dst, keys.Key{Band: band, Chan: chanIdx, QBand: qband, Val: val, CoefNp: valNp, CoefW: w})
	}
	return dst, qband + 1
}
