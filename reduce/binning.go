package reduce

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrBadEdges indicates bin edges that are not strictly increasing or have
// fewer than two entries. It is a configuration error: no event processing
// happens once it is returned.
var ErrBadEdges = errors.New("bin edges must be strictly increasing with at least two entries")

// BinEdges is a strictly increasing sequence of bin boundaries. A sequence of
// n edges defines n-1 bins; bin i covers the half-open interval
// [edges[i], edges[i+1]).
type BinEdges []float64

// NewBinEdges validates edges and returns them as BinEdges.
func NewBinEdges(edges []float64) (BinEdges, error) {
	if len(edges) < 2 {
		return nil, fmt.Errorf("%w: got %d edges", ErrBadEdges, len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return nil, fmt.Errorf("%w: edges[%d]=%v, edges[%d]=%v", ErrBadEdges, i-1, edges[i-1], i, edges[i])
		}
	}
	return BinEdges(edges), nil
}

// NumBins returns the number of bins, len(edges)-1.
func (b BinEdges) NumBins() int {
	return len(b) - 1
}

// Locate returns the index of the bin containing v under the half-open
// convention [edges[i], edges[i+1]). A value equal to the final edge or
// otherwise outside the covered range returns (-1, false).
func (b BinEdges) Locate(v float64) (int, bool) {
	if v < b[0] || v >= b[len(b)-1] {
		return -1, false
	}
	// sort.SearchFloat64s returns the first index with edges[i] >= v.
	i := sort.SearchFloat64s(b, v)
	if i < len(b) && b[i] == v {
		return i, true
	}
	return i - 1, true
}

// Midpoints returns the center of each bin.
func (b BinEdges) Midpoints() []float64 {
	mids := make([]float64, b.NumBins())
	for i := range mids {
		mids[i] = 0.5 * (b[i] + b[i+1])
	}
	return mids
}

// Min returns the lowest edge.
func (b BinEdges) Min() float64 { return b[0] }

// Max returns the highest edge.
func (b BinEdges) Max() float64 { return b[len(b)-1] }

// Equal reports whether two edge sequences are identical.
func (b BinEdges) Equal(o BinEdges) bool {
	if len(b) != len(o) {
		return false
	}
	for i := range b {
		if b[i] != o[i] {
			return false
		}
	}
	return true
}

// LinSpace returns num+1 linearly spaced edges covering [lo, hi],
// defining num bins.
func LinSpace(lo, hi float64, num int) (BinEdges, error) {
	if num < 1 {
		return nil, fmt.Errorf("%w: need at least one bin", ErrBadEdges)
	}
	edges := make([]float64, num+1)
	step := (hi - lo) / float64(num)
	for i := range edges {
		edges[i] = lo + float64(i)*step
	}
	edges[num] = hi
	return NewBinEdges(edges)
}

// GeomSpace returns num+1 logarithmically spaced edges covering [lo, hi],
// defining num bins. Both limits must be positive.
func GeomSpace(lo, hi float64, num int) (BinEdges, error) {
	if num < 1 {
		return nil, fmt.Errorf("%w: need at least one bin", ErrBadEdges)
	}
	if lo <= 0 || hi <= 0 {
		return nil, fmt.Errorf("%w: log spacing requires positive limits", ErrBadEdges)
	}
	edges := make([]float64, num+1)
	ratio := math.Log(hi/lo) / float64(num)
	for i := range edges {
		edges[i] = lo * math.Exp(float64(i)*ratio)
	}
	edges[0] = lo
	edges[num] = hi
	return NewBinEdges(edges)
}

// LinLogSpace builds edges with a mixture of linear and logarithmic pieces.
// breaks lists the boundaries of the pieces, scales gives "linear" or "log"
// per piece and nums the bin count per piece. len(scales) and len(nums) must
// be len(breaks)-1.
func LinLogSpace(breaks []float64, scales []string, nums []int) (BinEdges, error) {
	if len(scales) != len(breaks)-1 || len(nums) != len(breaks)-1 {
		return nil, fmt.Errorf("%w: need one scale and bin count per piece", ErrBadEdges)
	}
	var edges []float64
	for i := range scales {
		var piece BinEdges
		var err error
		switch scales[i] {
		case "linear":
			piece, err = LinSpace(breaks[i], breaks[i+1], nums[i])
		case "log":
			piece, err = GeomSpace(breaks[i], breaks[i+1], nums[i])
		default:
			return nil, fmt.Errorf("%w: unknown scale %q", ErrBadEdges, scales[i])
		}
		if err != nil {
			return nil, err
		}
		// Skip the leading edge of every piece but the first.
		if i > 0 {
			piece = piece[1:]
		}
		edges = append(edges, piece...)
	}
	return NewBinEdges(edges)
}
