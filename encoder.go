// Package ulc implements an ultra-low-complexity perceptual audio encoder:
// window/overlap control, a forward MDCT, psychoacoustic masking,
// quantizer-zone construction, rate control, and nybble-stream bitstream
// emission. See the internal/* packages for each stage; this file wires
// them into the public EncoderState.
package ulc

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ulccodec/ulc/internal/blockcoder"
	"github.com/ulccodec/ulc/internal/keys"
	"github.com/ulccodec/ulc/internal/noisefill"
	"github.com/ulccodec/ulc/internal/nybble"
	"github.com/ulccodec/ulc/internal/ratectl"
	"github.com/ulccodec/ulc/internal/transform"
)

// ErrClosed indicates a method was called on an EncoderState after Destroy.
var ErrClosed = errors.New("ulc: encoder already destroyed")

// ErrBufferSize indicates src or dst does not match the stream's configured
// block size, or dst is too small to possibly hold a worst-case block.
var ErrBufferSize = errors.New("ulc: buffer size mismatch")

// EncoderState holds everything one encoded stream needs across blocks: the
// transform pipeline's persistent overlap/transient state, and the scratch
// arrays survivor selection and zone construction reuse every call so that
// EncodeBlockCBR/EncodeBlockVBR never allocate, matching §5's resource
// model. One EncoderState encodes one stream; like the teacher's Encoder
// types, it carries no internal synchronization — callers serialize their
// own access.
type EncoderState struct {
	cfg           Config
	streamID      uuid.UUID
	logger        *log.Logger
	log2BlockSize int
	closed        bool

	transform *transform.State
	writer    nybble.Writer

	candidates []keys.Key // capacity nChan*blockSize, truncated to 0 each block
	survivors  []keys.Key // capacity nChan*blockSize

	survivorChan   []int
	survivorQBand  []int
	survivorCoefNp []float64
	survivorWeight []float64

	zones  []ratectl.Zone
	quants [][]float32 // per channel, length ratectl.MaxQBands

	// quantsActive and widthsActive are reused slice-of-slice headers,
	// trimmed each block to the zone counts transform.Result.NumQBands
	// reports, so blockcoder.Encode never spends a header nybble on a
	// zone slot the block didn't actually use.
	quantsActive [][]float32
	widthsActive [][]int

	// noiseEnergy and noiseWeight are scratch for logNoiseFillHints,
	// capacity blockSize, reused per zone rather than per block.
	noiseEnergy []float32
	noiseWeight []float32
}

// StreamID identifies this encoder instance in log output.
func (s *EncoderState) StreamID() uuid.UUID { return s.streamID }

// Init allocates and validates a new EncoderState for cfg. All buffers used
// by EncodeBlockCBR/EncodeBlockVBR are allocated here, once.
func Init(cfg Config) (*EncoderState, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	nChan, blockSize := cfg.NChan, cfg.BlockSize
	maxKeys := nChan * blockSize

	s := &EncoderState{
		cfg:            cfg,
		streamID:       uuid.New(),
		log2BlockSize:  bits.TrailingZeros(uint(blockSize)),
		transform:      transform.NewState(blockSize, nChan),
		candidates:     make([]keys.Key, 0, maxKeys),
		survivors:      make([]keys.Key, maxKeys),
		survivorChan:   make([]int, maxKeys),
		survivorQBand:  make([]int, maxKeys),
		survivorCoefNp: make([]float64, maxKeys),
		survivorWeight: make([]float64, maxKeys),
		zones:          make([]ratectl.Zone, nChan*ratectl.MaxQBands),
		quants:         make([][]float32, nChan),
		quantsActive:   make([][]float32, nChan),
		widthsActive:   make([][]int, nChan),
		noiseEnergy:    make([]float32, 0, blockSize),
		noiseWeight:    make([]float32, 0, blockSize),
	}
	for c := range s.quants {
		s.quants[c] = make([]float32, ratectl.MaxQBands)
	}
	s.logger = streamLogger(s.streamID.String())
	s.logger.Debug("encoder initialized", "n_chan", nChan, "block_size", blockSize, "rate_hz", cfg.RateHz)

	return s, nil
}

// Destroy marks the EncoderState unusable. It performs no OS-level cleanup
// (there is none to do — the arena is ordinary Go memory the garbage
// collector reclaims) but guards against a stream being driven after the
// caller considers it finished.
func (s *EncoderState) Destroy() {
	if s.closed {
		return
	}
	s.closed = true
	s.logger.Debug("encoder destroyed")
}

// EncodeBlockCBR encodes one block targeting a constant bitrate. src must
// hold exactly NChan*BlockSize channel-major samples. dst must be large
// enough to hold the worst-case block (see ratectl.MaxCodingBits); on
// return its first bits bits hold the encoded block, window-control byte
// first.
func (s *EncoderState) EncodeBlockCBR(dst []byte, src []float32, rateKbps float32) (bits int, err error) {
	if s.closed {
		return 0, ErrClosed
	}
	if err := s.checkBuffers(dst, src); err != nil {
		return 0, err
	}
	if rateKbps <= 0 {
		return 0, fmt.Errorf("%w: rateKbps must be positive, got %v", ErrInvalidConfig, rateKbps)
	}

	maxKbps := ratectl.MaxCodingKbps(s.cfg.BlockSize, s.cfg.NChan, s.cfg.RateHz)
	quantRange := ratectl.QuantRange(ratectl.QuantRangeScale(rateKbps, maxKbps))

	result := s.runTransform(src, quantRange)
	keys.SortByWeight(result.Keys)

	targetBits := int(rateKbps*1000*float32(s.cfg.BlockSize)/s.cfg.RateHz) - 8
	if targetBits < 0 {
		targetBits = 0
	}

	n := ratectl.CBRSearch(len(result.Keys), targetBits, func(n int) int {
		return s.encodeSurvivors(dst, result, n)
	})
	bitsOut := s.encodeSurvivors(dst, result, n)
	s.logNoiseFillHints(result)
	return bitsOut, nil
}

// EncodeBlockVBR encodes one block targeting a constant perceptual quality
// in [0, 1]; bitrate follows from how many coefficients survive selection
// rather than from a binary search against a bit budget.
func (s *EncoderState) EncodeBlockVBR(dst []byte, src []float32, quality float32) (bits int, err error) {
	if s.closed {
		return 0, ErrClosed
	}
	if err := s.checkBuffers(dst, src); err != nil {
		return 0, err
	}

	// VBR has no rate target to size the zone split against, so it uses
	// the finest QuantRange (scale 1.0) and lets quality alone govern how
	// many coefficients survive.
	quantRange := ratectl.QuantRange(1.0)

	result := s.runTransform(src, quantRange)
	keys.SortByWeight(result.Keys)

	n := ratectl.VBRSurvivorCount(len(result.Keys), quality)
	if n > len(result.Keys) {
		n = len(result.Keys)
	}
	bitsOut := s.encodeSurvivors(dst, result, n)
	s.logNoiseFillHints(result)
	return bitsOut, nil
}

// runTransform drives one block through the window/MDCT/psychoacoustic
// pipeline, returning the candidate key list sorted by nothing yet (the
// caller sorts by weight next, then later by position once survivors are
// chosen).
func (s *EncoderState) runTransform(src []float32, quantRange float32) transform.Result {
	powerDecayNp := -s.cfg.PowerDecayDb * float32(math.Ln10) / 20
	return s.transform.Process(s.candidates[:0], src, s.cfg.BlockSize, s.cfg.NChan, s.cfg.RateHz, quantRange, powerDecayNp, s.cfg.Ultrastable)
}

// encodeSurvivors takes the top n keys of result.Keys (already sorted by
// descending weight), builds the quantizer zones they imply, and emits the
// full block — window-control byte plus nybble stream — into dst. It is
// called repeatedly during a CBR binary search and once more, with the
// winning n, to leave dst holding the final bitstream; none of those calls
// allocate.
func (s *EncoderState) encodeSurvivors(dst []byte, result transform.Result, n int) int {
	dst[0] = byte(result.WindowCtrl)

	survivors := s.survivors[:n]
	copy(survivors, result.Keys[:n])
	keys.SortByPosition(survivors, s.log2BlockSize)

	for i, k := range survivors {
		s.survivorChan[i] = k.Chan
		s.survivorQBand[i] = k.QBand
		s.survivorCoefNp[i] = float64(k.CoefNp)
		s.survivorWeight[i] = float64(k.CoefW)
	}
	ratectl.BuildQuants(s.quants, s.cfg.NChan, s.survivorChan[:n], s.survivorQBand[:n], s.survivorCoefNp[:n], s.survivorWeight[:n], s.zones)

	for c := 0; c < s.cfg.NChan; c++ {
		used := result.NumQBands[c]
		s.quantsActive[c] = s.quants[c][:used]
		s.widthsActive[c] = result.Widths[c][:used]
	}

	s.writer.Reset(dst[1:])
	blockcoder.Encode(&s.writer, survivors, result.Coef, s.quantsActive, s.widthsActive, s.cfg.NChan, s.cfg.BlockSize)
	return 8 + s.writer.Finalize()
}

// logNoiseFillHints fits noise-fill parameters (internal/noisefill, which
// in turn quantizes through the companded quantizer, internal/quant) for
// every quantizer zone the final survivor selection left with no coded
// coefficients at all, and logs them at debug level. This is a pure
// diagnostic: the fitted amplitude/decay codes are never written to dst,
// matching §4.J's "optional tail" treatment of noise-fill. It walks
// s.quantsActive/s.widthsActive, which still hold the winning n's zone
// layout from the encodeSurvivors call that just ran.
func (s *EncoderState) logNoiseFillHints(result transform.Result) {
	for c := 0; c < s.cfg.NChan; c++ {
		coef := result.Coef[c]
		quants := s.quantsActive[c]
		widths := s.widthsActive[c]
		band := 0
		for q, step := range quants {
			w := widths[q]
			if step != ratectl.QuantizerUnused || w == 0 {
				band += w
				continue
			}

			zone := coef[band : band+w]
			s.noiseEnergy = s.noiseEnergy[:0]
			s.noiseWeight = s.noiseWeight[:0]
			for _, v := range zone {
				s.noiseEnergy = append(s.noiseEnergy, absf32(v))
				s.noiseWeight = append(s.noiseWeight, v*v)
			}
			if r, ok := noisefill.Fit(s.noiseEnergy, s.noiseWeight); ok {
				s.logger.Debug("noise-fill hint", "chan", c, "qband", q, "amplitude_q", r.AmplitudeQ, "decay_q", r.DecayQ)
			}
			band += w
		}
	}
}

func absf32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func (s *EncoderState) checkBuffers(dst []byte, src []float32) error {
	wantSrc := s.cfg.NChan * s.cfg.BlockSize
	if len(src) != wantSrc {
		return fmt.Errorf("%w: src has %d samples, want %d (n_chan*block_size)", ErrBufferSize, len(src), wantSrc)
	}
	minDst := (ratectl.MaxCodingBits(s.cfg.BlockSize, s.cfg.NChan) + 7) / 8
	if len(dst) < minDst {
		return fmt.Errorf("%w: dst has %d bytes, need at least %d for the worst-case block", ErrBufferSize, len(dst), minDst)
	}
	return nil
}
