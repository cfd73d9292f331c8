package mdct

import (
	"math"
	"testing"
)

func TestForward_SilenceProducesSilence(t *testing.T) {
	const n = 64
	in := make([]float32, n)
	lap := make([]float32, LapSize(n))
	tmp := make([]float32, 2*n+n)
	out := make([]float32, n)
	scratch := NewScratch(n)

	Forward(out, in, lap, tmp, n, n/4, scratch)

	for i, v := range out {
		if v != 0 {
			t.Fatalf("out[%d] = %v, want 0 for silent input", i, v)
		}
	}
}

func TestForward_NoOverlapIsFinite(t *testing.T) {
	const n = 32
	in := make([]float32, n)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * float64(i) / float64(n)))
	}
	lap := make([]float32, LapSize(n))
	tmp := make([]float32, 2*n+n)
	out := make([]float32, n)
	scratch := NewScratch(n)

	Forward(out, in, lap, tmp, n, 0, scratch)

	for i, v := range out {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("out[%d] = %v, not finite", i, v)
		}
	}
}

func TestForward_CarriesLapForward(t *testing.T) {
	const n = 16
	in := make([]float32, n)
	for i := range in {
		in[i] = float32(i + 1)
	}
	lap := make([]float32, LapSize(n))
	tmp := make([]float32, 2*n+n)
	out := make([]float32, n)
	scratch := NewScratch(n)

	Forward(out, in, lap, tmp, n, n/4, scratch)

	want := in[n-LapSize(n):]
	for i, v := range want {
		if lap[i] != v {
			t.Fatalf("lap[%d] = %v, want %v (tail of in)", i, lap[i], v)
		}
	}
}

func TestForward_SineConcentratesEnergy(t *testing.T) {
	const n = 128
	in := make([]float32, n)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * 4 * float64(i) / float64(n)))
	}
	lap := make([]float32, LapSize(n))
	tmp := make([]float32, 2*n+n)
	out := make([]float32, n)
	scratch := NewScratch(n)

	Forward(out, in, lap, tmp, n, n/8, scratch)

	var total, peak float64
	peakIdx := -1
	for i, v := range out {
		e := float64(v) * float64(v)
		total += e
		if e > peak {
			peak, peakIdx = e, i
		}
	}
	if total == 0 {
		t.Fatal("transform of a sine wave produced no energy")
	}
	if peak/total < 0.3 {
		t.Fatalf("peak bin %d holds only %.2f%% of total energy, want concentrated spectrum", peakIdx, 100*peak/total)
	}
}
