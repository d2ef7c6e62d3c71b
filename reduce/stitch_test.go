package reduce

import (
	"math"
	"testing"
)

// flatCurve builds a constant curve over linear Q edges.
func flatCurve(t *testing.T, id string, lo, hi float64, bins int, r, variance float64) *Curve {
	t.Helper()
	edges, err := LinSpace(lo, hi, bins)
	if err != nil {
		t.Fatalf("LinSpace: %v", err)
	}
	c := &Curve{
		RunID:    id,
		QEdges:   edges,
		R:        make([]float64, bins),
		Variance: make([]float64, bins),
		Counts:   make([]int, bins),
	}
	for i := range c.R {
		c.R[i] = r
		c.Variance[i] = variance
		c.Counts[i] = 100
	}
	return c
}

// ---------------------------------------------------------------------------
// ScaleToOverlap
// ---------------------------------------------------------------------------

func TestScaleToOverlap_FirstCurveIsReference(t *testing.T) {
	a := flatCurve(t, "a", 0.01, 0.05, 10, 1.0, 0.01)
	b := flatCurve(t, "b", 0.04, 0.10, 10, 0.25, 0.01)

	scaled, factors, err := ScaleToOverlap([]*Curve{a, b}, nil)
	if err != nil {
		t.Fatalf("ScaleToOverlap: %v", err)
	}
	if factors[0] != 1 {
		t.Errorf("first factor = %v, want 1", factors[0])
	}
	// b reads 0.25 where a reads 1.0, so b must be scaled by 4.
	if math.Abs(factors[1]-4) > 1e-9 {
		t.Errorf("second factor = %v, want 4", factors[1])
	}
	for i := range scaled[1].R {
		q := 0.5 * (scaled[1].QEdges[i] + scaled[1].QEdges[i+1])
		if ra, _, ok := scaled[0].At(q); ok {
			if math.Abs(scaled[1].R[i]-ra) > 1e-9 {
				t.Errorf("overlap bin %d: %v vs %v", i, scaled[1].R[i], ra)
			}
		}
	}
}

func TestScaleToOverlap_NoOverlapKeepsFactorOne(t *testing.T) {
	a := flatCurve(t, "a", 0.01, 0.03, 5, 1.0, 0.01)
	b := flatCurve(t, "b", 0.05, 0.08, 5, 0.2, 0.01)

	_, factors, err := ScaleToOverlap([]*Curve{a, b}, nil)
	if err != nil {
		t.Fatalf("ScaleToOverlap: %v", err)
	}
	if factors[1] != 1 {
		t.Errorf("disjoint curve factor = %v, want 1", factors[1])
	}
}

func TestScaleToOverlap_CriticalEdgeAnchor(t *testing.T) {
	// The curve reads 0.2 inside the critical-edge interval where R is
	// known to be 1, so the factor must be 5.
	a := flatCurve(t, "a", 0.005, 0.02, 10, 0.2, 0.001)

	scaled, factors, err := ScaleToOverlap([]*Curve{a}, &Interval{Min: 0.005, Max: 0.02})
	if err != nil {
		t.Fatalf("ScaleToOverlap: %v", err)
	}
	if math.Abs(factors[0]-5) > 1e-9 {
		t.Errorf("factor = %v, want 5", factors[0])
	}
	for i := range scaled[0].R {
		if math.Abs(scaled[0].R[i]-1) > 1e-9 {
			t.Errorf("bin %d: scaled R = %v, want 1", i, scaled[0].R[i])
		}
	}
}

func TestScaleToOverlap_Validation(t *testing.T) {
	if _, _, err := ScaleToOverlap(nil, nil); err == nil {
		t.Error("expected error for no curves")
	}
	a := flatCurve(t, "a", 0.01, 0.05, 5, 1, 0.01)
	if _, _, err := ScaleToOverlap([]*Curve{a}, &Interval{Min: 0.02, Max: 0.02}); err == nil {
		t.Error("expected error for an empty critical-edge interval")
	}
}

func TestScaleToOverlap_VarianceScalesQuadratically(t *testing.T) {
	a := flatCurve(t, "a", 0.01, 0.05, 5, 1.0, 0.01)
	b := flatCurve(t, "b", 0.01, 0.05, 5, 0.5, 0.02)

	scaled, factors, err := ScaleToOverlap([]*Curve{a, b}, nil)
	if err != nil {
		t.Fatalf("ScaleToOverlap: %v", err)
	}
	f := factors[1]
	for i := range scaled[1].Variance {
		want := f * f * 0.02
		if math.Abs(scaled[1].Variance[i]-want) > 1e-12 {
			t.Errorf("bin %d: variance = %v, want %v", i, scaled[1].Variance[i], want)
		}
	}
}

// ---------------------------------------------------------------------------
// CombineCurves
// ---------------------------------------------------------------------------

func TestCombineCurves_SingleCoveragePassThrough(t *testing.T) {
	a := flatCurve(t, "a", 0.01, 0.05, 8, 0.7, 0.003)
	edges, _ := LinSpace(0.01, 0.05, 8)

	combined, err := CombineCurves([]*Curve{a}, edges)
	if err != nil {
		t.Fatalf("CombineCurves: %v", err)
	}
	for i := range combined.R {
		if math.Abs(combined.R[i]-0.7) > 1e-12 {
			t.Errorf("bin %d: R = %v, want 0.7", i, combined.R[i])
		}
		if math.Abs(combined.Variance[i]-0.003) > 1e-12 {
			t.Errorf("bin %d: variance = %v, want 0.003", i, combined.Variance[i])
		}
		if combined.Counts[i] != 100 {
			t.Errorf("bin %d: counts = %d, want 100", i, combined.Counts[i])
		}
	}
}

func TestCombineCurves_InverseVarianceMean(t *testing.T) {
	a := flatCurve(t, "a", 0.01, 0.05, 4, 1.0, 0.01)
	b := flatCurve(t, "b", 0.01, 0.05, 4, 2.0, 0.03)
	edges, _ := LinSpace(0.01, 0.05, 4)

	combined, err := CombineCurves([]*Curve{a, b}, edges)
	if err != nil {
		t.Fatalf("CombineCurves: %v", err)
	}
	// Weighted mean of 1.0 (w=100) and 2.0 (w=33.3): 1.25.
	wantR := (1.0/0.01 + 2.0/0.03) / (1/0.01 + 1/0.03)
	wantVar := 1 / (1/0.01 + 1/0.03)
	for i := range combined.R {
		if math.Abs(combined.R[i]-wantR) > 1e-9 {
			t.Errorf("bin %d: R = %v, want %v", i, combined.R[i], wantR)
		}
		if math.Abs(combined.Variance[i]-wantVar) > 1e-9 {
			t.Errorf("bin %d: variance = %v, want %v", i, combined.Variance[i], wantVar)
		}
	}
}

func TestCombineCurves_UncoveredBinsAreNaN(t *testing.T) {
	a := flatCurve(t, "a", 0.01, 0.03, 4, 1.0, 0.01)
	edges, _ := LinSpace(0.01, 0.09, 8) // upper bins uncovered

	combined, err := CombineCurves([]*Curve{a}, edges)
	if err != nil {
		t.Fatalf("CombineCurves: %v", err)
	}
	last := combined.NumBins() - 1
	if !math.IsNaN(combined.R[last]) || !math.IsNaN(combined.Variance[last]) {
		t.Errorf("uncovered bin: (R, Var) = (%v, %v), want NaN", combined.R[last], combined.Variance[last])
	}
	if math.IsNaN(combined.R[0]) {
		t.Error("covered bin came out NaN")
	}
}

func TestCombineCurves_SkipsZeroVarianceContributors(t *testing.T) {
	a := flatCurve(t, "a", 0.01, 0.05, 4, 1.0, 0)
	b := flatCurve(t, "b", 0.01, 0.05, 4, 2.0, 0.01)
	edges, _ := LinSpace(0.01, 0.05, 4)

	combined, err := CombineCurves([]*Curve{a, b}, edges)
	if err != nil {
		t.Fatalf("CombineCurves: %v", err)
	}
	for i := range combined.R {
		if math.Abs(combined.R[i]-2.0) > 1e-12 {
			t.Errorf("bin %d: R = %v, want 2.0 (zero-variance curve skipped)", i, combined.R[i])
		}
	}
}
