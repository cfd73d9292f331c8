package quant

import (
	"math"
	"testing"
)

func TestUnsigned_BelowThreshold(t *testing.T) {
	for _, v := range []float32{0, 0.1, 0.49, 0.4999} {
		if got := Unsigned(v); got != 0 {
			t.Errorf("Unsigned(%v) = %d, want 0", v, got)
		}
	}
}

func TestUnsigned_MatchesBruteForceRounding(t *testing.T) {
	// The companded rule is meant to pick whichever of floor(x') or
	// floor(x')+1 minimizes squared error against x when both are
	// squared back (the quantizer's decode step is xq^2). On an exact tie
	// (v = 0.5 lies midway between 0^2 and 1^2) the rule rounds up, so the
	// brute force keeps the larger candidate.
	for _, v := range []float32{0.5, 0.6, 1.0, 2.0, 5.5, 10.0, 100.0} {
		got := Unsigned(v)
		best, bestErr := -1, math.MaxFloat64
		for cand := 0; cand <= got+2; cand++ {
			err := sq(float64(cand*cand) - float64(v))
			if err <= bestErr {
				bestErr, best = err, cand
			}
		}
		if got != best {
			t.Errorf("Unsigned(%v) = %d, want %d (brute force)", v, got, best)
		}
	}
}

func sq(x float64) float64 { return x * x }

func TestSigned_PreservesSign(t *testing.T) {
	if Signed(-3.0) >= 0 {
		t.Fatal("Signed(-3.0) should be negative")
	}
	if Signed(3.0) <= 0 {
		t.Fatal("Signed(3.0) should be positive")
	}
	if Signed(0.1) != 0 {
		t.Fatalf("Signed(0.1) = %d, want 0", Signed(0.1))
	}
}

func TestBounded_ClampsToLimit(t *testing.T) {
	if got := UnsignedBounded(1000.0, 7); got != 7 {
		t.Fatalf("UnsignedBounded(1000,7) = %d, want 7", got)
	}
	if got := SignedBounded(-1000.0, 7); got != -7 {
		t.Fatalf("SignedBounded(-1000,7) = %d, want -7", got)
	}
}
