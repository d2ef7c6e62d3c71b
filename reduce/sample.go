package reduce

import (
	"fmt"
	"math"
	"runtime"
	"sync"
)

// QAccumulator collects the per-Q-bin sums of one sample reduction: the
// footprint-corrected sample intensity (numerator), the ideal intensity from
// the reference grid (denominator), and the squared-weight sums backing the
// variance of both. Accumulation is a plain sum per bin, so partitions of
// the event list can be accumulated independently and merged.
type QAccumulator struct {
	QEdges BinEdges

	Numerator   []float64
	Denominator []float64
	NumVar      []float64
	DenVar      []float64
	Counts      []int

	// Excluded counts ROI-passing events dropped because their coarse cell
	// has no reference contribution; OutOfRange counts events whose Q or
	// wavelength falls outside the configured grids.
	Excluded   int
	OutOfRange int
}

// NewQAccumulator returns an empty accumulator over the given Q edges.
func NewQAccumulator(qEdges BinEdges) *QAccumulator {
	n := qEdges.NumBins()
	return &QAccumulator{
		QEdges:      qEdges,
		Numerator:   make([]float64, n),
		Denominator: make([]float64, n),
		NumVar:      make([]float64, n),
		DenVar:      make([]float64, n),
		Counts:      make([]int, n),
	}
}

// Merge adds the sums of o into a. The edges must be identical.
func (a *QAccumulator) Merge(o *QAccumulator) error {
	if !a.QEdges.Equal(o.QEdges) {
		return fmt.Errorf("merge accumulators: Q edges differ")
	}
	for i := range a.Numerator {
		a.Numerator[i] += o.Numerator[i]
		a.Denominator[i] += o.Denominator[i]
		a.NumVar[i] += o.NumVar[i]
		a.DenVar[i] += o.DenVar[i]
		a.Counts[i] += o.Counts[i]
	}
	a.Excluded += o.Excluded
	a.OutOfRange += o.OutOfRange
	return nil
}

// Finalize divides the accumulated sums into a reflectivity curve. The
// variance follows ratio-of-sums propagation,
//
//	Var(R) = Var(N)/D^2 + N^2*Var(D)/D^4.
//
// Bins with a zero denominator get NaN values, never zero.
func (a *QAccumulator) Finalize(runID string) *Curve {
	n := a.QEdges.NumBins()
	curve := &Curve{
		RunID:    runID,
		QEdges:   append(BinEdges(nil), a.QEdges...),
		R:        make([]float64, n),
		Variance: make([]float64, n),
		Counts:   append([]int(nil), a.Counts...),
	}
	for i := 0; i < n; i++ {
		d := a.Denominator[i]
		if d == 0 {
			curve.R[i] = math.NaN()
			curve.Variance[i] = math.NaN()
			continue
		}
		num := a.Numerator[i]
		curve.R[i] = num / d
		curve.Variance[i] = a.NumVar[i]/(d*d) + num*num*a.DenVar[i]/(d*d*d*d)
	}
	return curve
}

// ReduceSample reduces one sample run against a prebuilt reference grid and
// returns the reflectivity curve for that run.
//
// The numerator path uses the exact per-pixel incidence angle at the sample
// rotation; the denominator projects each non-empty reference cell into Q
// space at the sample rotation, evaluated at the cell's wavelength midpoint
// and group center. Events whose coarse cell has no reference contribution
// are dropped entirely and reported via the accumulator's Excluded count.
//
// The grid is only read; concurrent reductions of different runs may share
// one grid instance.
func ReduceSample(run *Run, grid *ReferenceGrid, inst Instrument, qEdges BinEdges, workers int) (*Curve, error) {
	acc, err := AccumulateSample(run, grid, inst, qEdges, workers)
	if err != nil {
		return nil, err
	}
	return acc.Finalize(run.ID), nil
}

// AccumulateSample runs the sample reduction but stops before the final
// division, returning the raw per-bin sums.
func AccumulateSample(run *Run, grid *ReferenceGrid, inst Instrument, qEdges BinEdges, workers int) (*QAccumulator, error) {
	if run.Kind != SampleRun {
		return nil, fmt.Errorf("sample reduction: run %q has kind %q, want %q", run.ID, run.Kind, SampleRun)
	}
	if grid == nil || grid.Empty() {
		return nil, fmt.Errorf("sample reduction: run %q: %w", run.ID, ErrEmptyReference)
	}
	if inst.Name() != grid.Instrument {
		return nil, fmt.Errorf("sample reduction: instrument %q does not match grid built for %q", inst.Name(), grid.Instrument)
	}
	if _, err := NewBinEdges(qEdges); err != nil {
		return nil, fmt.Errorf("sample reduction: %w", err)
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	n := run.Events.Len()
	if workers > n {
		workers = 1
	}

	parts := make([]*QAccumulator, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * n / workers
		hi := (w + 1) * n / workers
		part := NewQAccumulator(qEdges)
		parts[w] = part
		wg.Add(1)
		go func(events EventSet) {
			defer wg.Done()
			accumulateSampleEvents(part, run, grid, inst, events)
		}(run.Events.Slice(lo, hi))
	}
	wg.Wait()

	acc := parts[0]
	for _, part := range parts[1:] {
		if err := acc.Merge(part); err != nil {
			return nil, err
		}
	}
	accumulateReferenceCells(acc, run, grid, inst)
	return acc, nil
}

// accumulateSampleEvents fills the numerator sums from individual sample
// events using the exact per-pixel geometry.
func accumulateSampleEvents(acc *QAccumulator, run *Run, grid *ReferenceGrid, inst Instrument, events EventSet) {
	for i := 0; i < events.Len(); i++ {
		lambda, pixel := events.Wavelength[i], events.PixelID[i]
		if !run.ROI.Contains(inst, lambda, pixel) {
			continue
		}
		bin, ok := grid.WavelengthEdges.Locate(lambda)
		if !ok {
			acc.OutOfRange++
			continue
		}
		if _, _, count := grid.At(bin, inst.GroupOf(pixel)); count == 0 {
			// The reference cannot estimate the ideal intensity here;
			// normalizing would divide by zero.
			acc.Excluded++
			continue
		}
		theta := inst.Theta(lambda, pixel, run.Rotation)
		qbin, ok := acc.QEdges.Locate(ReflectometryQ(lambda, theta))
		if !ok {
			acc.OutOfRange++
			continue
		}
		v := FootprintCorrection(theta, run.BeamSize, run.SampleSize)
		acc.Numerator[qbin] += v
		acc.NumVar[qbin] += v * v
		acc.Counts[qbin]++
	}
}

// accumulateReferenceCells fills the denominator sums by projecting every
// non-empty reference cell into the sample's Q space. The cell already
// embodies the integral over its reference sub-region, so it enters its Q
// bin exactly once.
func accumulateReferenceCells(acc *QAccumulator, run *Run, grid *ReferenceGrid, inst Instrument) {
	mids := grid.WavelengthEdges.Midpoints()
	for bin, lambda := range mids {
		for group := 0; group < grid.NumGroups; group++ {
			w, sq, count := grid.At(bin, group)
			if count == 0 {
				continue
			}
			theta := inst.Theta(lambda, inst.GroupCenterPixel(group), run.Rotation)
			qbin, ok := acc.QEdges.Locate(ReflectometryQ(lambda, theta))
			if !ok {
				continue
			}
			acc.Denominator[qbin] += w
			acc.DenVar[qbin] += sq
		}
	}
}

// GridReflectivity is the un-binned-in-Q diagnostic view of a sample run:
// the ratio of sample to ideal intensity per (wavelength bin, pixel group)
// cell. External tooling projects it into 2D figures.
type GridReflectivity struct {
	WavelengthEdges BinEdges  `json:"wavelengthEdges"`
	NumGroups       int       `json:"numGroups"`
	R               []float64 `json:"r"`
	Variance        []float64 `json:"variance"`
	Counts          []int     `json:"counts"`
}

// At returns the cell (bin, group).
func (g *GridReflectivity) At(bin, group int) (r, variance float64, count int) {
	i := bin*g.NumGroups + group
	return g.R[i], g.Variance[i], g.Counts[i]
}

// ReduceSampleOverGrid normalizes a sample run on the reference grid's own
// (wavelength, group) coordinates instead of binning in Q. Cells without
// reference contribution are NaN.
func ReduceSampleOverGrid(run *Run, grid *ReferenceGrid, inst Instrument) (*GridReflectivity, error) {
	if run.Kind != SampleRun {
		return nil, fmt.Errorf("sample reduction: run %q has kind %q, want %q", run.ID, run.Kind, SampleRun)
	}
	if grid == nil || grid.Empty() {
		return nil, fmt.Errorf("sample reduction: run %q: %w", run.ID, ErrEmptyReference)
	}

	n := len(grid.Weights)
	num := make([]float64, n)
	numVar := make([]float64, n)
	counts := make([]int, n)
	events := run.Events
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
		v := FootprintCorrection(theta, run.BeamSize, run.SampleSize)
		c := bin*grid.NumGroups + inst.GroupOf(pixel)
		num[c] += v
		numVar[c] += v * v
		counts[c]++
	}

	out := &GridReflectivity{
		WavelengthEdges: append(BinEdges(nil), grid.WavelengthEdges...),
		NumGroups:       grid.NumGroups,
		R:               make([]float64, n),
		Variance:        make([]float64, n),
		Counts:          counts,
	}
	for i := 0; i < n; i++ {
		d := grid.Weights[i]
		if grid.Counts[i] == 0 || d == 0 {
			out.R[i] = math.NaN()
			out.Variance[i] = math.NaN()
			continue
		}
		out.R[i] = num[i] / d
		out.Variance[i] = numVar[i]/(d*d) + num[i]*num[i]*grid.SquaredWeights[i]/(d*d*d*d)
	}
	return out, nil
}
