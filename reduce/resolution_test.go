package reduce

import (
	"math"
	"testing"
)

func TestWavelengthResolution(t *testing.T) {
	// 490 mm chopper separation over 12.4 m total flight path.
	got := WavelengthResolution(8400, 4000, 490)
	want := FWHMToStd(490.0 / 12400.0)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("WavelengthResolution = %v, want %v", got, want)
	}
}

func TestAngularResolution_ShrinksWithTheta(t *testing.T) {
	lo := AngularResolution(0.005, 4000, 2.5)
	hi := AngularResolution(0.02, 4000, 2.5)
	if hi >= lo {
		t.Errorf("relative angular resolution should shrink with theta: %v vs %v", lo, hi)
	}
}

func TestQResolution_Quadrature(t *testing.T) {
	got := QResolution(0.1, 0.03, 0.04, 0.0)
	want := 0.1 * math.Hypot(0.03, 0.04)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("QResolution = %v, want %v", got, want)
	}
}

func TestAttachQResolution(t *testing.T) {
	edges, _ := LinSpace(0.01, 0.05, 4)
	curve := &Curve{
		QEdges:   edges,
		R:        make([]float64, 4),
		Variance: make([]float64, 4),
		Counts:   make([]int, 4),
	}
	p := ResolutionParams{
		ChopperSeparation:         490,
		L1:                        8400,
		L2:                        4000,
		DetectorSpatialResolution: 2.5,
	}
	run := &Run{Rotation: 0.9, SampleSize: 10, BeamSize: 1.5}

	AttachQResolution(curve, p, run)
	if len(curve.QResolution) != 4 {
		t.Fatalf("QResolution has %d entries, want 4", len(curve.QResolution))
	}
	mids := edges.Midpoints()
	for i, s := range curve.QResolution {
		if !(s > 0) {
			t.Fatalf("bin %d: sigma = %v", i, s)
		}
		// The relative resolution is constant across bins.
		rel := s / mids[i]
		rel0 := curve.QResolution[0] / mids[0]
		if math.Abs(rel-rel0) > 1e-12 {
			t.Errorf("bin %d: relative sigma %v differs from %v", i, rel, rel0)
		}
	}
}
