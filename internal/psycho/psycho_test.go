package psycho

import (
	"math"
	"testing"
)

func TestCompute_SilentBlockGivesZeroMasking(t *testing.T) {
	const blockSize = 64
	amp2 := make([]float32, blockSize)
	masking := make([]float32, blockSize)
	scratch := NewScratch(blockSize)

	Compute(masking, amp2, blockSize, 0x10, true, scratch)

	for i, v := range masking {
		if v != 0 {
			t.Fatalf("masking[%d] = %v, want 0 for silent input", i, v)
		}
	}
}

func TestCompute_ToneBinMasksAboveBinsOutsideItsReach(t *testing.T) {
	const blockSize = 64
	amp2 := make([]float32, blockSize)
	for i := range amp2 {
		amp2[i] = 0.01
	}
	amp2[32] = 1.0 // a single dominant tone
	masking := make([]float32, blockSize)
	scratch := NewScratch(blockSize)

	Compute(masking, amp2, blockSize, 0x10, true, scratch)

	// masking[i] averages over bins [(i+1)*29/32, (i+1)*45/32), so the tone
	// raises the mask of every bin whose window reaches bin 32 (i = 23..35),
	// and the narrower windows among them can rise above masking[32] itself.
	// Every bin whose window misses the tone must stay below it.
	for i, v := range masking {
		if (i+1)*29/32 <= 32 && 32 < (i+1)*45/32 {
			continue
		}
		if masking[32] < v {
			t.Fatalf("masking[32]=%v should dominate masking[%d]=%v near a strong tone", masking[32], i, v)
		}
	}
}

func TestCompute_NoOutputIsNaNOrInf(t *testing.T) {
	const blockSize = 128
	amp2 := make([]float32, blockSize)
	for i := range amp2 {
		amp2[i] = float32(i%7) * 0.1
	}
	masking := make([]float32, blockSize)
	scratch := NewScratch(blockSize)

	for _, ultrastable := range []bool{true, false} {
		Compute(masking, amp2, blockSize, 0x10, ultrastable, scratch)
		for i, v := range masking {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				t.Fatalf("ultrastable=%v masking[%d] = %v, not finite", ultrastable, i, v)
			}
		}
	}
}

func TestCompute_RespectsSubBlockBoundaries(t *testing.T) {
	// WindowCtrl 0x20 decimates into N/2*,N/2 (two 32-bin sub-blocks). A
	// loud tone confined to the first sub-block must not raise masking
	// levels in the second.
	const blockSize = 64
	amp2 := make([]float32, blockSize)
	for i := 0; i < 32; i++ {
		amp2[i] = 0.001
	}
	amp2[10] = 1.0
	for i := 32; i < 64; i++ {
		amp2[i] = 0.001
	}
	masking := make([]float32, blockSize)
	scratch := NewScratch(blockSize)

	Compute(masking, amp2, blockSize, 0x20, true, scratch)

	for i := 32; i < 64; i++ {
		if masking[i] > masking[10] {
			t.Fatalf("masking[%d]=%v leaked across sub-block boundary past masking[10]=%v", i, masking[i], masking[10])
		}
	}
}
