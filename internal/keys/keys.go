// Package keys sorts the candidate spectral coefficients a block's channels
// produced, first by perceptual importance (to pick survivors under a bit
// budget) and then by coding order (so the block encoder can walk them
// sequentially per channel).
package keys

import "sort"

// Key is one candidate coefficient: its location (Chan, Band, QBand), its
// perceptual weight (Val, already squared post-masking energy — higher is
// more important to keep), and the raw values the quantizer-zone builder
// needs once a key survives selection (CoefNp, the coefficient's own
// Nepers-domain magnitude, and CoefW, its coef^2 energy used to weight the
// zone's geometric mean).
type Key struct {
	Band   int
	Chan   int
	QBand  int
	Val    float32
	CoefNp float32
	CoefW  float32
}

// SortByWeight orders keys by descending Val, so a prefix of length n is
// the n most perceptually important coefficients in the whole block. Must
// be stable: equal-weight keys keep their relative order so survivor
// selection is deterministic from one run to the next.
func SortByWeight(k []Key) {
	sort.SliceStable(k, func(i, j int) bool { return k[i].Val > k[j].Val })
}

// SortByPosition re-orders a (typically already weight-trimmed) slice of
// keys into sequential coding order: channel-major, then band ascending
// within a channel, matching how the block encoder walks the spectrum.
func SortByPosition(k []Key, log2BlockSize int) {
	sort.Slice(k, func(i, j int) bool {
		return codingOrder(k[i], log2BlockSize) < codingOrder(k[j], log2BlockSize)
	})
}

func codingOrder(k Key, log2BlockSize int) int {
	return (k.Chan << uint(log2BlockSize)) | k.Band
}
