package noisefill

import "testing"

func TestFit_EmptyZoneFails(t *testing.T) {
	_, ok := Fit(nil, nil)
	if ok {
		t.Fatal("Fit(nil, nil) should fail")
	}
}

func TestFit_MismatchedLengthsFails(t *testing.T) {
	_, ok := Fit([]float32{1, 2, 3}, []float32{1, 1})
	if ok {
		t.Fatal("Fit should fail when energy and weight lengths differ")
	}
}

func TestFit_SilentZoneFails(t *testing.T) {
	_, ok := Fit([]float32{0, 0, 0}, []float32{0, 0, 0})
	if ok {
		t.Fatal("Fit(all-zero) should fail (degenerate fit)")
	}
}

func TestFit_FlatEnergyGivesNoDecay(t *testing.T) {
	energy := []float32{2, 2, 2, 2}
	weight := []float32{1, 1, 1, 1}
	r, ok := Fit(energy, weight)
	if !ok {
		t.Fatal("Fit should succeed for non-degenerate input")
	}
	if r.DecayQ != 0 {
		t.Fatalf("DecayQ = %d, want 0 for perfectly flat energy", r.DecayQ)
	}
	if r.AmplitudeQ <= 0 {
		t.Fatalf("AmplitudeQ = %d, want a positive code for non-zero energy", r.AmplitudeQ)
	}
}

func TestFit_DecayingEnergyGivesNonZeroDecay(t *testing.T) {
	energy := []float32{8, 4, 2, 1}
	weight := []float32{1, 1, 1, 1}
	r, ok := Fit(energy, weight)
	if !ok {
		t.Fatal("Fit should succeed for non-degenerate input")
	}
	if r.DecayQ == 0 {
		t.Fatal("DecayQ should be non-zero for energy that falls off across the zone")
	}
}

func TestBits_ZeroWhenFitFailed(t *testing.T) {
	if Bits(Result{}, false) != 0 {
		t.Fatal("Bits should be 0 when the fit was singular")
	}
}

func TestBits_TwelveWhenFitSucceeded(t *testing.T) {
	if Bits(Result{AmplitudeQ: 3, DecayQ: 10}, true) != 12 {
		t.Fatal("Bits should be 4 (amplitude) + 8 (decay) = 12 when the fit succeeded")
	}
}
