package reduce

import (
	"errors"
	"fmt"
	"math"
)

// criticalEdgeBins is the number of bins used for the synthetic unit curve
// anchoring scale-to-overlap at the critical edge.
const criticalEdgeBins = 25

// ScaleToOverlap determines one multiplicative factor per curve such that the
// curves agree in their overlapping Q ranges, and returns the scaled curves
// together with the factors.
//
// Without a critical-edge interval the first curve keeps factor 1 and every
// following curve is matched, in order, against the already scaled ones by a
// weighted least-squares fit over the shared Q range. If criticalEdge is
// given, the reflectivity is known to be 1 there and all curves are scaled,
// anchored to a synthetic unit curve spanning the interval.
//
// A curve with no overlap to match against keeps factor 1.
func ScaleToOverlap(curves []*Curve, criticalEdge *Interval) ([]*Curve, []float64, error) {
	if len(curves) == 0 {
		return nil, nil, errors.New("scale to overlap: no curves given")
	}

	var anchors []*Curve
	if criticalEdge != nil {
		if criticalEdge.Width() <= 0 {
			return nil, nil, fmt.Errorf("scale to overlap: critical edge interval [%v, %v] is empty",
				criticalEdge.Min, criticalEdge.Max)
		}
		anchors = append(anchors, unitCurve(*criticalEdge))
	}

	scaled := make([]*Curve, len(curves))
	factors := make([]float64, len(curves))
	for i, curve := range curves {
		factor := 1.0
		if len(anchors) > 0 {
			factor = matchFactor(curve, anchors)
		}
		factors[i] = factor
		scaled[i] = curve.Scale(factor)
		anchors = append(anchors, scaled[i])
	}
	return scaled, factors, nil
}

// unitCurve builds the synthetic R=1 curve over the critical-edge interval.
// Unit variance per point keeps the least-squares weights finite.
func unitCurve(iv Interval) *Curve {
	edges, _ := LinSpace(iv.Min, iv.Max, criticalEdgeBins)
	c := &Curve{
		QEdges:   edges,
		R:        make([]float64, criticalEdgeBins),
		Variance: make([]float64, criticalEdgeBins),
		Counts:   make([]int, criticalEdgeBins),
	}
	for i := range c.R {
		c.R[i] = 1
		c.Variance[i] = 1
	}
	return c
}

// matchFactor fits the factor f minimizing
//
//	sum_i w_i * (f*r_i - ref_i)^2,  w_i = 1/(var_ref_i + var_i)
//
// over the Q midpoints of curve where any anchor curve is defined. The
// reference value at a midpoint is the inverse-variance mean of the covering
// anchors. With no shared points the factor is 1.
func matchFactor(curve *Curve, anchors []*Curve) float64 {
	var num, den float64
	mids := curve.QEdges.Midpoints()
	for i, q := range mids {
		r := curve.R[i]
		v := curve.Variance[i]
		if math.IsNaN(r) || v < 0 {
			continue
		}
		ref, refVar, ok := lookupAnchors(anchors, q)
		if !ok {
			continue
		}
		w := 1 / (refVar + v)
		if math.IsInf(w, 0) || math.IsNaN(w) {
			continue
		}
		num += w * r * ref
		den += w * r * r
	}
	if den == 0 {
		return 1
	}
	return num / den
}

// lookupAnchors evaluates the inverse-variance weighted mean of all anchor
// curves defined at q.
func lookupAnchors(anchors []*Curve, q float64) (r, variance float64, ok bool) {
	var sum, wsum float64
	for _, a := range anchors {
		av, avar, defined := a.At(q)
		if !defined || avar == 0 || math.IsNaN(avar) {
			continue
		}
		w := 1 / avar
		sum += w * av
		wsum += w
	}
	if wsum == 0 {
		return math.NaN(), math.NaN(), false
	}
	return sum / wsum, 1 / wsum, true
}

// CombineCurves merges scaled curves into a single stitched curve on the
// given Q edges. Each output bin is the inverse-variance weighted mean of
// the curves covering its midpoint; bins covered by no curve are NaN, bins
// covered by exactly one curve pass through unchanged.
func CombineCurves(curves []*Curve, qEdges BinEdges) (*Curve, error) {
	if len(curves) == 0 {
		return nil, errors.New("combine curves: no curves given")
	}
	if _, err := NewBinEdges(qEdges); err != nil {
		return nil, fmt.Errorf("combine curves: %w", err)
	}

	n := qEdges.NumBins()
	out := &Curve{
		RunID:    "combined",
		QEdges:   append(BinEdges(nil), qEdges...),
		R:        make([]float64, n),
		Variance: make([]float64, n),
		Counts:   make([]int, n),
	}
	mids := qEdges.Midpoints()
	for i, q := range mids {
		var sum, wsum float64
		covered := 0
		for _, c := range curves {
			r, v, ok := c.At(q)
			if !ok || v == 0 || math.IsNaN(v) {
				continue
			}
			w := 1 / v
			sum += w * r
			wsum += w
			covered++
			if bin, inRange := c.QEdges.Locate(q); inRange {
				out.Counts[i] += c.Counts[bin]
			}
		}
		if covered == 0 {
			out.R[i] = math.NaN()
			out.Variance[i] = math.NaN()
			continue
		}
		out.R[i] = sum / wsum
		out.Variance[i] = 1 / wsum
	}
	return out, nil
}
