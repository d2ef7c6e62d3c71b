package reduce

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// ErrEmptyReference is returned when a reference run contributes no events at
// all to the grid. It is distinct from a sparse grid with empty cells, which
// is reported through the per-cell counts instead.
var ErrEmptyReference = errors.New("reference run contributed no events to the grid")

// ReferenceGrid is the precomputed ideal-intensity lookup table built from a
// reference run. It is indexed by (wavelength bin, reduced pixel group) and
// holds, per cell, the sum of event weights 1/(F*R_sm), the sum of squared
// weights for variance propagation, and the number of contributing events.
//
// The grid is built once per (reference run, configuration) pair and never
// mutated afterwards; sample reductions share it without synchronization.
type ReferenceGrid struct {
	Instrument      string   `json:"instrument"`
	WavelengthEdges BinEdges `json:"wavelengthEdges"`
	NumGroups       int      `json:"numGroups"`

	// Weights, SquaredWeights and Counts are flattened row-major tables:
	// cell (bin, group) lives at index bin*NumGroups+group.
	Weights        []float64 `json:"weights"`
	SquaredWeights []float64 `json:"squaredWeights"`
	Counts         []int     `json:"counts"`

	// TotalEvents is the number of events accumulated into the grid.
	// Excluded counts ROI-passing events dropped because the supermirror
	// reflectivity is unknown at their momentum transfer.
	TotalEvents int `json:"totalEvents"`
	Excluded    int `json:"excluded"`
}

func newReferenceGrid(inst Instrument, edges BinEdges) *ReferenceGrid {
	n := edges.NumBins() * inst.NumGroups()
	return &ReferenceGrid{
		Instrument:      inst.Name(),
		WavelengthEdges: edges,
		NumGroups:       inst.NumGroups(),
		Weights:         make([]float64, n),
		SquaredWeights:  make([]float64, n),
		Counts:          make([]int, n),
	}
}

// cell returns the flat index for (bin, group).
func (g *ReferenceGrid) cell(bin, group int) int {
	return bin*g.NumGroups + group
}

// At returns the accumulated weight, squared weight and event count of the
// cell (bin, group).
func (g *ReferenceGrid) At(bin, group int) (weight, squared float64, count int) {
	i := g.cell(bin, group)
	return g.Weights[i], g.SquaredWeights[i], g.Counts[i]
}

// Empty reports whether the grid holds no events at all.
func (g *ReferenceGrid) Empty() bool {
	return g.TotalEvents == 0
}

// EmptyCells returns the (bin, group) cells that received no reference
// events. Sample events landing in these cells cannot be normalized.
func (g *ReferenceGrid) EmptyCells() [][2]int {
	var cells [][2]int
	for bin := 0; bin < g.WavelengthEdges.NumBins(); bin++ {
		for group := 0; group < g.NumGroups; group++ {
			if g.Counts[g.cell(bin, group)] == 0 {
				cells = append(cells, [2]int{bin, group})
			}
		}
	}
	return cells
}

// add accumulates the tables of o into g. Panics if the shapes differ; the
// callers guarantee identical geometry.
func (g *ReferenceGrid) add(o *ReferenceGrid) {
	for i := range g.Weights {
		g.Weights[i] += o.Weights[i]
		g.SquaredWeights[i] += o.SquaredWeights[i]
		g.Counts[i] += o.Counts[i]
	}
	g.TotalEvents += o.TotalEvents
	g.Excluded += o.Excluded
}

// BuildReferenceGrid reduces a reference run into its coarse lookup table.
//
// Events are filtered by the run's ROI, weighted by 1/(F*R_sm) using the full
// per-pixel geometry at the reference rotation, and accumulated into
// (wavelength bin, pixel group) cells. The build depends only on the
// reference run and the given wavelength edges, never on sample parameters.
//
// workers <= 0 uses one worker per CPU. The accumulation is a sum, so the
// result does not depend on how the events are partitioned.
func BuildReferenceGrid(run *Run, inst Instrument, wavelengthEdges BinEdges, workers int) (*ReferenceGrid, error) {
	if run.Kind != ReferenceRun {
		return nil, fmt.Errorf("reference grid: run %q has kind %q, want %q", run.ID, run.Kind, ReferenceRun)
	}
	if run.Supermirror == nil {
		return nil, fmt.Errorf("reference grid: run %q has no supermirror calibration", run.ID)
	}
	if err := run.Supermirror.Validate(); err != nil {
		return nil, fmt.Errorf("reference grid: run %q: %w", run.ID, err)
	}
	if _, err := NewBinEdges(wavelengthEdges); err != nil {
		return nil, fmt.Errorf("reference grid: %w", err)
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	n := run.Events.Len()
	if workers > n {
		workers = 1
	}

	parts := make([]*ReferenceGrid, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * n / workers
		hi := (w + 1) * n / workers
		part := newReferenceGrid(inst, wavelengthEdges)
		parts[w] = part
		wg.Add(1)
		go func(events EventSet) {
			defer wg.Done()
			accumulateReference(part, run, inst, events)
		}(run.Events.Slice(lo, hi))
	}
	wg.Wait()

	grid := parts[0]
	for _, part := range parts[1:] {
		grid.add(part)
	}
	if grid.Empty() {
		return nil, fmt.Errorf("reference grid: run %q: %w", run.ID, ErrEmptyReference)
	}
	return grid, nil
}

func accumulateReference(grid *ReferenceGrid, run *Run, inst Instrument, events EventSet) {
	sm := *run.Supermirror
	for i := 0; i < events.Len(); i++ {
		lambda, pixel := events.Wavelength[i], events.PixelID[i]
		if !run.ROI.Contains(inst, lambda, pixel) {
			continue
		}
		bin, ok := grid.WavelengthEdges.Locate(lambda)
		if !ok {
			continue
		}
		theta := inst.Theta(lambda, pixel, run.Rotation)
		r, known := sm.Reflectivity(ReflectometryQ(lambda, theta))
		if !known {
			grid.Excluded++
			continue
		}
		w := FootprintCorrection(theta, run.BeamSize, run.SampleSize) / r
		c := grid.cell(bin, inst.GroupOf(pixel))
		grid.Weights[c] += w
		grid.SquaredWeights[c] += w * w
		grid.Counts[c]++
		grid.TotalEvents++
	}
}

// MergeReferenceGrids combines grids built from disjoint reference
// measurements with identical geometry into one grid. The tables are summed
// elementwise, so merging two grids equals building one grid from the
// concatenated event lists. This fills detector coverage gaps when a single
// supermirror measurement does not span the full usable region.
func MergeReferenceGrids(grids ...*ReferenceGrid) (*ReferenceGrid, error) {
	if len(grids) == 0 {
		return nil, errors.New("merge reference grids: no grids given")
	}
	first := grids[0]
	out := &ReferenceGrid{
		Instrument:      first.Instrument,
		WavelengthEdges: append(BinEdges(nil), first.WavelengthEdges...),
		NumGroups:       first.NumGroups,
		Weights:         make([]float64, len(first.Weights)),
		SquaredWeights:  make([]float64, len(first.SquaredWeights)),
		Counts:          make([]int, len(first.Counts)),
	}
	for _, g := range grids {
		if g.Instrument != first.Instrument || g.NumGroups != first.NumGroups ||
			!g.WavelengthEdges.Equal(first.WavelengthEdges) {
			return nil, fmt.Errorf("merge reference grids: grid geometry mismatch (%s/%d groups vs %s/%d groups)",
				g.Instrument, g.NumGroups, first.Instrument, first.NumGroups)
		}
		out.add(g)
	}
	return out, nil
}
