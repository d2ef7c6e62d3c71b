package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nlund/reflred/reduce"
)

const testConfigYAML = `
instrument: planar
wavelength_bins:
  min: {value: 2.0, unit: angstrom}
  max: {value: 12.0, unit: angstrom}
  num: 10
q_bins:
  min: {value: 0.005, unit: 1/angstrom}
  max: {value: 0.15, unit: 1/angstrom}
  num: 20
runs:
  - id: ref-1
    kind: reference
    file: ref-1.csv
    rotation: {value: 1.0, unit: deg}
    sample_size: {value: 500, unit: mm}
    beam_size: {value: 1.0, unit: mm}
    supermirror:
      critical_edge: {value: 0.2, unit: 1/angstrom}
      m_value: 2
      alpha: 0
  - id: sam-1
    kind: sample
    file: sam-1.csv
    rotation: {value: 1.0, unit: deg}
    sample_size: {value: 500, unit: mm}
    beam_size: {value: 1.0, unit: mm}
`

// writeTestData builds a config plus reference and sample event files on a
// planar detector. The sample holds exactly half the reference events, so the
// reduced reflectivity is 0.5 in every covered bin.
func writeTestData(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(testConfigYAML), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	edges, err := reduce.LinSpace(2, 12, 10)
	if err != nil {
		t.Fatalf("LinSpace: %v", err)
	}
	var ref, sam strings.Builder
	ref.WriteString("wavelength,pixel\n")
	sam.WriteString("wavelength,pixel\n")
	for group := 0; group < 32; group++ {
		for _, lambda := range edges.Midpoints() {
			for k := 0; k < 4; k++ {
				pixel := group*64 + (k*7)%64
				fmt.Fprintf(&ref, "%v,%d\n", lambda, pixel)
				if k%2 == 0 {
					fmt.Fprintf(&sam, "%v,%d\n", lambda, pixel)
				}
			}
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "ref-1.csv"), []byte(ref.String()), 0644); err != nil {
		t.Fatalf("writing reference events: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sam-1.csv"), []byte(sam.String()), 0644); err != nil {
		t.Fatalf("writing sample events: %v", err)
	}
	return dir
}

func newTestApp(t *testing.T, dir string) *App {
	t.Helper()
	app := NewApp()
	app.ConfigFile = filepath.Join(dir, "config.yaml")
	app.DataDir = dir
	app.OutputDir = filepath.Join(dir, "out")
	app.GridCache = filepath.Join(dir, "grid.json")
	app.Workers = 1
	if err := app.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return app
}

func TestAppEndToEnd(t *testing.T) {
	dir := writeTestData(t)
	app := newTestApp(t, dir)

	if err := app.RunReduction(); err != nil {
		t.Fatalf("RunReduction: %v", err)
	}

	grid := app.Grid()
	if grid == nil {
		t.Fatal("no reference grid after reduction")
	}
	if grid.TotalEvents != 32*10*4 {
		t.Errorf("grid TotalEvents = %d, want %d", grid.TotalEvents, 32*10*4)
	}

	curves := app.Curves()
	if len(curves) != 1 {
		t.Fatalf("got %d curves, want 1", len(curves))
	}
	curve, ok := curves["sam-1"]
	if !ok {
		t.Fatal("curve for sam-1 missing")
	}
	covered := 0
	for i := 0; i < curve.NumBins(); i++ {
		if curve.Counts[i] == 0 {
			continue
		}
		covered++
		if math.Abs(curve.R[i]-0.5) > 1e-9 {
			t.Errorf("bin %d: R = %v, want 0.5", i, curve.R[i])
		}
	}
	if covered == 0 {
		t.Fatal("no covered bins")
	}
	if app.Combined() == nil {
		t.Fatal("no combined curve")
	}
}

func TestAppWriteOutputs(t *testing.T) {
	dir := writeTestData(t)
	app := newTestApp(t, dir)
	if err := app.RunReduction(); err != nil {
		t.Fatalf("RunReduction: %v", err)
	}
	if err := app.WriteOutputs(); err != nil {
		t.Fatalf("WriteOutputs: %v", err)
	}

	for _, name := range []string{
		"curve-sam-1.json",
		"curve-combined.json",
		"reflectivity.svg",
		"reference-grid.png",
	} {
		path := filepath.Join(app.OutputDir, name)
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("missing output %s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("output %s is empty", name)
		}
	}

	// The curve JSON round-trips through the NaN-tolerant encoding.
	data, err := os.ReadFile(filepath.Join(app.OutputDir, "curve-sam-1.json"))
	if err != nil {
		t.Fatalf("reading curve JSON: %v", err)
	}
	var curve reduce.Curve
	if err := json.Unmarshal(data, &curve); err != nil {
		t.Fatalf("parsing curve JSON: %v", err)
	}
	if curve.RunID != "sam-1" {
		t.Errorf("RunID = %q", curve.RunID)
	}
}

func TestAppReusesPersistedGrid(t *testing.T) {
	dir := writeTestData(t)

	first := newTestApp(t, dir)
	if err := first.RunReduction(); err != nil {
		t.Fatalf("RunReduction: %v", err)
	}
	if _, err := os.Stat(first.GridCache); err != nil {
		t.Fatalf("grid cache not persisted: %v", err)
	}

	// A second session with the same configuration picks the grid up from
	// disk and produces the same curve.
	second := newTestApp(t, dir)
	if err := second.RunReduction(); err != nil {
		t.Fatalf("RunReduction (second): %v", err)
	}
	a := first.Curves()["sam-1"]
	b := second.Curves()["sam-1"]
	for i := 0; i < a.NumBins(); i++ {
		if math.IsNaN(a.R[i]) != math.IsNaN(b.R[i]) {
			t.Fatalf("bin %d: NaN pattern differs between sessions", i)
		}
		if !math.IsNaN(a.R[i]) && a.R[i] != b.R[i] {
			t.Fatalf("bin %d: R %v vs %v", i, a.R[i], b.R[i])
		}
	}
}
