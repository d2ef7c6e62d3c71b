package reduce

import (
	"bytes"
	"image/png"
	"math"
	"strings"
	"testing"
)

func figureCurve(id string, scale float64) *Curve {
	edges, _ := LinSpace(0.01, 0.1, 20)
	c := &Curve{
		RunID:    id,
		QEdges:   edges,
		R:        make([]float64, 20),
		Variance: make([]float64, 20),
		Counts:   make([]int, 20),
	}
	mids := edges.Midpoints()
	for i, q := range mids {
		// A plausible decaying reflectivity with one NaN gap.
		c.R[i] = scale * math.Pow(0.01/q, 4)
		c.Variance[i] = 1e-6
		c.Counts[i] = 100
	}
	c.R[7] = math.NaN()
	c.Variance[7] = math.NaN()
	return c
}

func TestRenderToSVG(t *testing.T) {
	r := NewCurveRenderer(figureCurve("a", 1), figureCurve("b", 0.5))

	var buf bytes.Buffer
	if err := r.RenderToSVG(&buf); err != nil {
		t.Fatalf("RenderToSVG: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "<svg") {
		t.Error("output does not look like SVG")
	}
	if !strings.Contains(out, "<path") {
		t.Error("no paths in the figure")
	}
}

func TestRenderToPNG(t *testing.T) {
	r := NewCurveRenderer(figureCurve("a", 1))

	var buf bytes.Buffer
	if err := r.RenderToPNG(&buf); err != nil {
		t.Fatalf("RenderToPNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decoding PNG: %v", err)
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		t.Error("empty image")
	}
}

func TestRender_NoFinitePoints(t *testing.T) {
	edges, _ := LinSpace(0.01, 0.1, 4)
	empty := &Curve{
		QEdges:   edges,
		R:        []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()},
		Variance: []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()},
		Counts:   make([]int, 4),
	}
	var buf bytes.Buffer
	if err := NewCurveRenderer(empty).RenderToSVG(&buf); err == nil {
		t.Error("expected error for a curve with no drawable points")
	}
}

func TestRenderGridPNG(t *testing.T) {
	inst := fixtureInstrument()
	edges := fixtureWavelengthEdges(t)
	ref := fixtureReferenceRun(t, 2)
	// Leave some rows empty so the gap coloring path runs too.
	ref.ROI = ROI{ZIndex: &IndexRange{Lo: 4, Hi: 27}}

	grid, err := BuildReferenceGrid(ref, inst, edges, 1)
	if err != nil {
		t.Fatalf("BuildReferenceGrid: %v", err)
	}

	var buf bytes.Buffer
	if err := RenderGridPNG(&buf, grid); err != nil {
		t.Fatalf("RenderGridPNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decoding PNG: %v", err)
	}
	wantW := 20 + grid.NumGroups*3
	wantH := 20 + edges.NumBins()*3
	if img.Bounds().Dx() != wantW || img.Bounds().Dy() != wantH {
		t.Errorf("image is %dx%d, want %dx%d", img.Bounds().Dx(), img.Bounds().Dy(), wantW, wantH)
	}
}
