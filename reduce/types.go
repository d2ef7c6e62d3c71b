package reduce

import "math"

// RunKind distinguishes the role of a measurement run.
type RunKind string

const (
	// SampleRun is a measurement of the sample under study.
	SampleRun RunKind = "sample"
	// ReferenceRun is a supermirror measurement used to estimate the
	// ideal intensity distribution in the detector.
	ReferenceRun RunKind = "reference"
)

// EventSet holds detected neutron events in columnar form. The slices are
// parallel: event i has wavelength Wavelength[i] (angstrom) and fell on
// detector pixel PixelID[i].
type EventSet struct {
	Wavelength []float64 `json:"wavelength"`
	PixelID    []int     `json:"pixelId"`
}

// Len returns the number of events in the set.
func (e *EventSet) Len() int {
	return len(e.Wavelength)
}

// Append adds a single event to the set.
func (e *EventSet) Append(wavelength float64, pixelID int) {
	e.Wavelength = append(e.Wavelength, wavelength)
	e.PixelID = append(e.PixelID, pixelID)
}

// Slice returns a view of events [lo, hi). The underlying arrays are shared.
func (e *EventSet) Slice(lo, hi int) EventSet {
	return EventSet{
		Wavelength: e.Wavelength[lo:hi],
		PixelID:    e.PixelID[lo:hi],
	}
}

// Run is a named collection of events plus the scalar metadata needed to
// reduce them. Sample and reference runs share the type and differ by Kind;
// only reference runs carry a supermirror calibration.
type Run struct {
	ID   string  `json:"id"`
	Kind RunKind `json:"kind"`

	// Rotation is the sample rotation mu in degrees.
	Rotation float64 `json:"rotation"`
	// SampleSize is the sample width along the beam in millimeters.
	SampleSize float64 `json:"sampleSize"`
	// BeamSize is the FWHM of the beam in millimeters.
	BeamSize float64 `json:"beamSize"`

	ROI ROI `json:"roi"`

	// Supermirror is the known reflectivity calibration of the reference
	// supermirror. Nil for sample runs.
	Supermirror *Supermirror `json:"supermirror,omitempty"`

	Events EventSet `json:"-"`
}

// ReflectometryQ computes the momentum transfer Q = 4*pi*sin(theta)/lambda
// with theta in radians and lambda in angstrom. The result is in 1/angstrom.
func ReflectometryQ(wavelength, theta float64) float64 {
	return 4 * math.Pi * math.Sin(theta) / wavelength
}

// Interval is a closed interval [Min, Max] on a scalar coordinate.
type Interval struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether v lies inside the interval, limits included.
func (iv Interval) Contains(v float64) bool {
	return v >= iv.Min && v <= iv.Max
}

// Width returns the length of the interval.
func (iv Interval) Width() float64 {
	return iv.Max - iv.Min
}
