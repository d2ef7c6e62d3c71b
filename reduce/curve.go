package reduce

import (
	"encoding/json"
	"math"
)

// Curve is a binned reflectivity curve R(Q) with propagated variance. Bins
// with a zero denominator carry NaN values; Counts lets callers tell sparse
// statistics from uncovered bins.
type Curve struct {
	RunID string `json:"runId"`

	QEdges   BinEdges  `json:"qEdges"`
	R        []float64 `json:"r"`
	Variance []float64 `json:"variance"`
	// QResolution is the per-bin sigma of Q. Nil unless attached.
	QResolution []float64 `json:"qResolution,omitempty"`
	// Counts is the number of sample events contributing to each bin.
	Counts []int `json:"counts"`
}

// NumBins returns the number of Q bins of the curve.
func (c *Curve) NumBins() int { return c.QEdges.NumBins() }

// At returns the reflectivity value and variance of the bin containing q.
// ok is false when q falls outside the curve's range or in a bin with no
// defined value.
func (c *Curve) At(q float64) (r, variance float64, ok bool) {
	i, ok := c.QEdges.Locate(q)
	if !ok || math.IsNaN(c.R[i]) {
		return math.NaN(), math.NaN(), false
	}
	return c.R[i], c.Variance[i], true
}

// curveJSON mirrors Curve with NaN-tolerant number encoding: undefined bins
// are encoded as nulls, which encoding/json cannot do for plain float64.
type curveJSON struct {
	RunID       string     `json:"runId"`
	QEdges      []float64  `json:"qEdges"`
	R           []*float64 `json:"r"`
	Variance    []*float64 `json:"variance"`
	QResolution []float64  `json:"qResolution,omitempty"`
	Counts      []int      `json:"counts"`
}

func optional(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i, v := range vs {
		if !math.IsNaN(v) {
			v := v
			out[i] = &v
		}
	}
	return out
}

// MarshalJSON encodes the curve with nulls for undefined bins.
func (c *Curve) MarshalJSON() ([]byte, error) {
	return json.Marshal(curveJSON{
		RunID:       c.RunID,
		QEdges:      c.QEdges,
		R:           optional(c.R),
		Variance:    optional(c.Variance),
		QResolution: c.QResolution,
		Counts:      c.Counts,
	})
}

// UnmarshalJSON decodes a curve, mapping nulls back to NaN.
func (c *Curve) UnmarshalJSON(data []byte) error {
	var raw curveJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.RunID = raw.RunID
	c.QEdges = raw.QEdges
	c.QResolution = raw.QResolution
	c.Counts = raw.Counts
	fill := func(vs []*float64) []float64 {
		out := make([]float64, len(vs))
		for i, v := range vs {
			if v == nil {
				out[i] = math.NaN()
			} else {
				out[i] = *v
			}
		}
		return out
	}
	c.R = fill(raw.R)
	c.Variance = fill(raw.Variance)
	return nil
}

// Scale multiplies the curve by a constant factor, scaling the variance by
// the factor squared, and returns the scaled copy.
func (c *Curve) Scale(factor float64) *Curve {
	out := &Curve{
		RunID:    c.RunID,
		QEdges:   append(BinEdges(nil), c.QEdges...),
		R:        make([]float64, len(c.R)),
		Variance: make([]float64, len(c.Variance)),
		Counts:   append([]int(nil), c.Counts...),
	}
	if c.QResolution != nil {
		out.QResolution = append([]float64(nil), c.QResolution...)
	}
	for i := range c.R {
		out.R[i] = factor * c.R[i]
		out.Variance[i] = factor * factor * c.Variance[i]
	}
	return out
}
