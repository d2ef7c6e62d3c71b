package reduce

import (
	"math"

	"github.com/paulmach/orb"
)

// IndexRange is an inclusive range of detector indices.
type IndexRange struct {
	Lo int `json:"lo" yaml:"lo"`
	Hi int `json:"hi" yaml:"hi"`
}

// ROI is the region of interest of a run: the part of (pixel, angle,
// wavelength) space where the intensity model is trusted. Every limit is
// optional; a nil limit means no restriction on that axis. All limits are
// inclusive.
type ROI struct {
	// YIndex restricts the y detector index (the stripe axis on Amor).
	YIndex *IndexRange `json:"yIndex,omitempty" yaml:"y_index,omitempty"`
	// ZIndex restricts the z detector index (the blade/wire axis on Amor).
	ZIndex *IndexRange `json:"zIndex,omitempty" yaml:"z_index,omitempty"`
	// Divergence restricts the beam divergence angle in degrees.
	Divergence *Interval `json:"divergence,omitempty" yaml:"divergence,omitempty"`
	// Wavelength restricts the event wavelength in angstrom.
	Wavelength *Interval `json:"wavelength,omitempty" yaml:"wavelength,omitempty"`
}

// pixelBound returns the configured pixel index window as a planar bound.
// Unrestricted axes are unbounded.
func (r ROI) pixelBound() orb.Bound {
	b := orb.Bound{
		Min: orb.Point{math.Inf(-1), math.Inf(-1)},
		Max: orb.Point{math.Inf(1), math.Inf(1)},
	}
	if r.YIndex != nil {
		b.Min[0], b.Max[0] = float64(r.YIndex.Lo), float64(r.YIndex.Hi)
	}
	if r.ZIndex != nil {
		b.Min[1], b.Max[1] = float64(r.ZIndex.Lo), float64(r.ZIndex.Hi)
	}
	return b
}

// Contains reports whether an event with the given wavelength on the given
// pixel lies inside the region of interest.
func (r ROI) Contains(inst Instrument, wavelength float64, pixel int) bool {
	if r.Wavelength != nil && !r.Wavelength.Contains(wavelength) {
		return false
	}
	if r.YIndex != nil || r.ZIndex != nil {
		y, z := inst.PixelIndices(pixel)
		if !r.pixelBound().Contains(orb.Point{float64(y), float64(z)}) {
			return false
		}
	}
	if r.Divergence != nil && !r.Divergence.Contains(inst.DivergenceAngle(pixel)) {
		return false
	}
	return true
}

// Filter returns the subset of events inside the region of interest.
func (r ROI) Filter(inst Instrument, events EventSet) EventSet {
	var out EventSet
	for i := 0; i < events.Len(); i++ {
		if r.Contains(inst, events.Wavelength[i], events.PixelID[i]) {
			out.Append(events.Wavelength[i], events.PixelID[i])
		}
	}
	return out
}
