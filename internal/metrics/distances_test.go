package metrics

import (
	"math"
	"testing"
)

func TestTotalVariation_Identical(t *testing.T) {
	p := []float64{0.2, 0.3, 0.5}

	tv := TotalVariation(p, p)

	if tv > 1e-12 {
		t.Errorf("Expected TV=0 for identical distributions. Got: %f", tv)
	}
}

func TestTotalVariation_Disjoint(t *testing.T) {
	tv := TotalVariation([]float64{1, 0}, []float64{0, 1})

	if math.Abs(tv-1.0) > 1e-12 {
		t.Errorf("Expected TV=1 for disjoint support. Got: %f", tv)
	}
}

func TestTotalVariation_LengthMismatch(t *testing.T) {
	tv := TotalVariation([]float64{1}, []float64{0.5, 0.5})

	if tv != 1.0 {
		t.Errorf("Expected TV=1 for mismatched lengths. Got: %f", tv)
	}
}

func TestKLDivergence(t *testing.T) {
	p := []float64{0.5, 0.5}
	q := []float64{0.25, 0.75}

	kl := KLDivergence(p, q)
	want := 0.5*math.Log(0.5/0.25) + 0.5*math.Log(0.5/0.75)

	if math.Abs(kl-want) > 1e-9 {
		t.Errorf("Expected KL=%f. Got: %f", want, kl)
	}
	if self := KLDivergence(p, p); self > 1e-12 {
		t.Errorf("Expected KL=0 against itself. Got: %f", self)
	}
}

func TestKLDivergence_UnvisitedStateIsFinite(t *testing.T) {
	kl := KLDivergence([]float64{0.9, 0.1}, []float64{1, 0})

	if math.IsInf(kl, 0) || math.IsNaN(kl) {
		t.Fatalf("Expected a finite KL when the estimate misses a state. Got: %f", kl)
	}
	if kl < 1 {
		t.Errorf("Expected a large penalty for the missed state. Got: %f", kl)
	}
}

func TestHellinger(t *testing.T) {
	if h := Hellinger([]float64{0.3, 0.7}, []float64{0.3, 0.7}); h > 1e-6 {
		t.Errorf("Expected H=0 for identical distributions. Got: %f", h)
	}
	if h := Hellinger([]float64{1, 0}, []float64{0, 1}); math.Abs(h-1) > 1e-12 {
		t.Errorf("Expected H=1 for disjoint support. Got: %f", h)
	}
}

func TestMaxAbsError(t *testing.T) {
	got := MaxAbsError([]float64{0.1, 0.6, 0.3}, []float64{0.15, 0.5, 0.35})

	if math.Abs(got-0.1) > 1e-12 {
		t.Errorf("Expected max abs error 0.1. Got: %f", got)
	}
}

func TestMonteCarloStdError(t *testing.T) {
	se := MonteCarloStdError(0.5, 10000)

	if math.Abs(se-0.005) > 1e-12 {
		t.Errorf("Expected SE=0.005. Got: %f", se)
	}
	if MonteCarloStdError(0.5, 0) != 0 {
		t.Errorf("Expected SE=0 with no draws")
	}
}
