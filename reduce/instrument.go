package reduce

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Instrument abstracts the detector geometry of a reflectometer. One
// implementation exists per instrument variant; the reduction engines only
// go through this interface.
//
// Pixels are flat integer ids. Each pixel maps to a pair of detector indices
// (y, z) used by the region-of-interest filter and to a reduced pixel group
// used by the coarse reference grid. The group discards one detector
// coordinate; GroupAngularSpread reports how much the incidence angle
// actually varies over the discarded coordinate so the approximation stays
// inspectable.
type Instrument interface {
	Name() string
	NumPixels() int
	NumGroups() int

	// Theta returns the incidence angle in radians for an event with the
	// given wavelength (angstrom) on the given pixel, at sample rotation
	// rotation (degrees).
	Theta(wavelength float64, pixel int, rotation float64) float64

	// DivergenceAngle returns the beam divergence angle of the pixel in
	// degrees relative to the detector center.
	DivergenceAngle(pixel int) float64

	// PixelIndices returns the (y, z) detector indices of the pixel.
	PixelIndices(pixel int) (y, z int)

	// GroupOf returns the reduced pixel group of the pixel.
	GroupOf(pixel int) int

	// GroupCenterPixel returns a representative pixel at the center of the
	// discarded coordinate for the group.
	GroupCenterPixel(group int) int

	// GroupAngularSpread returns the spread (max minus min) of theta in
	// radians across the discarded coordinate within the group, for the
	// given wavelength and rotation.
	GroupAngularSpread(group int, wavelength, rotation float64) float64

	// PixelPosition returns the pixel position in the detector plane in
	// millimeters.
	PixelPosition(pixel int) orb.Point
}

// gravityConstant is g*m_n^2/h^2 in SI units (1/m^3). It appears in the
// gravity drop term of the incidence angle.
var gravityConstant = 9.80665 * 1.67492749804e-27 * 1.67492749804e-27 /
	(6.62607015e-34 * 6.62607015e-34)

const (
	amorBlades      = 14
	amorWires       = 32
	amorStripes     = 64
	amorBladeAngle  = 5.1 * math.Pi / 180 // rad
	amorBladePitch  = 10.455              // mm, distance between blades
	amorPixelPitch  = 4.0                 // mm, neighboring pixels on a blade
	amorFocalLength = 4000.0              // mm, focal point to leading blade edge
)

// AmorDetector models the multi-blade detector of the Amor reflectometer.
// Pixels are numbered blade-major: pixel = (blade*nWires + wire)*nStripes +
// stripe. The stripe coordinate is the one discarded by the pixel group
// reduction; the incidence angle does not depend on it.
type AmorDetector struct {
	// DetectorRotation is the detector arm rotation nu in degrees.
	DetectorRotation float64
}

// NewAmorDetector returns an Amor detector with the given arm rotation in
// degrees.
func NewAmorDetector(nu float64) *AmorDetector {
	return &AmorDetector{DetectorRotation: nu}
}

func (d *AmorDetector) Name() string { return "amor" }

func (d *AmorDetector) NumPixels() int { return amorBlades * amorWires * amorStripes }

func (d *AmorDetector) NumGroups() int { return amorBlades * amorWires }

// decompose splits a pixel id into blade, wire and stripe indices.
func (d *AmorDetector) decompose(pixel int) (blade, wire, stripe int) {
	blade = pixel / (amorWires * amorStripes)
	rest := pixel % (amorWires * amorStripes)
	wire = rest / amorStripes
	stripe = rest % amorStripes
	return
}

func (d *AmorDetector) PixelIndices(pixel int) (y, z int) {
	blade, wire, stripe := d.decompose(pixel)
	return stripe, blade*amorWires + wire
}

func (d *AmorDetector) GroupOf(pixel int) int {
	blade, wire, _ := d.decompose(pixel)
	return blade*amorWires + wire
}

func (d *AmorDetector) GroupCenterPixel(group int) int {
	return group*amorStripes + amorStripes/2
}

// dZ and dX are the vertical and depth distances between neighboring pixels
// on one blade.
func amorDZ() float64 { return amorPixelPitch * math.Sin(amorBladeAngle) }
func amorDX() float64 { return amorPixelPitch * math.Cos(amorBladeAngle) }

// DivergenceAngle computes the beam divergence angle of the pixel from the
// blade and wire indices, in degrees.
func (d *AmorDetector) DivergenceAngle(pixel int) float64 {
	blade, wire, _ := d.decompose(pixel)
	bladeAngle := 2 * math.Asin(0.5*amorBladePitch/amorFocalLength) * 180 / math.Pi
	wireAngle := math.Atan(float64(wire)*amorDZ()/(amorFocalLength+float64(wire)*amorDX())) * 180 / math.Pi
	return (float64(amorBlades)/2-float64(blade))*bladeAngle - wireAngle
}

// flightPath returns the distance from the focal point to the pixel in
// millimeters, accounting for the beam travel inside the detector.
func (d *AmorDetector) flightPath(pixel int) float64 {
	_, wire, _ := d.decompose(pixel)
	return amorFocalLength + float64(amorWires-1-wire)*amorDX()
}

// Theta computes the incidence angle including the gravity drop of the
// neutron between sample and detector:
//
//	sin(gamma*) = sin(nu + delta) + g*m_n^2/h^2 * L2 * lambda^2
//	theta       = asin(sin(gamma*)) - mu
func (d *AmorDetector) Theta(wavelength float64, pixel int, rotation float64) float64 {
	l2 := d.flightPath(pixel) * 1e-3           // m
	lambda := wavelength * 1e-10               // m
	drop := gravityConstant * l2 * lambda * lambda
	angle := (d.DivergenceAngle(pixel) + d.DetectorRotation) * math.Pi / 180
	return math.Asin(math.Sin(angle)+drop) - rotation*math.Pi/180
}

// GroupAngularSpread reports the theta spread across the stripes of a group.
// For the Amor geometry the stripe coordinate only moves pixels horizontally,
// so the spread is zero; it is still computed rather than assumed.
func (d *AmorDetector) GroupAngularSpread(group int, wavelength, rotation float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	base := group * amorStripes
	for stripe := 0; stripe < amorStripes; stripe++ {
		th := d.Theta(wavelength, base+stripe, rotation)
		lo = math.Min(lo, th)
		hi = math.Max(hi, th)
	}
	return hi - lo
}

// PixelPosition returns the (horizontal, vertical) position of the pixel in
// the detector plane in millimeters.
func (d *AmorDetector) PixelPosition(pixel int) orb.Point {
	_, _, stripe := d.decompose(pixel)
	dist := d.flightPath(pixel)
	angle := (d.DivergenceAngle(pixel) + d.DetectorRotation) * math.Pi / 180
	// Stripes span roughly +-100 mm around the detector center.
	x := (float64(stripe)/float64(amorStripes-1) - 0.5) * 200
	return orb.Point{x, dist * math.Sin(angle)}
}

// PlanarDetector is a simple flat detector with Width stripes per row and
// Height rows. The row index is the reduced pixel group; the incidence angle
// is rotation plus a per-row divergence and does not depend on wavelength.
// It is used for synthetic data and tests.
type PlanarDetector struct {
	Width  int
	Height int
	// RowPitch is the divergence angle step between rows in degrees.
	RowPitch float64
}

func (d *PlanarDetector) Name() string { return "planar" }

func (d *PlanarDetector) NumPixels() int { return d.Width * d.Height }

func (d *PlanarDetector) NumGroups() int { return d.Height }

func (d *PlanarDetector) PixelIndices(pixel int) (y, z int) {
	return pixel % d.Width, pixel / d.Width
}

func (d *PlanarDetector) GroupOf(pixel int) int { return pixel / d.Width }

func (d *PlanarDetector) GroupCenterPixel(group int) int {
	return group*d.Width + d.Width/2
}

func (d *PlanarDetector) DivergenceAngle(pixel int) float64 {
	z := pixel / d.Width
	return (float64(z) - float64(d.Height-1)/2) * d.RowPitch
}

func (d *PlanarDetector) Theta(wavelength float64, pixel int, rotation float64) float64 {
	return (rotation + d.DivergenceAngle(pixel)) * math.Pi / 180
}

func (d *PlanarDetector) GroupAngularSpread(group int, wavelength, rotation float64) float64 {
	return 0
}

func (d *PlanarDetector) PixelPosition(pixel int) orb.Point {
	y, z := d.PixelIndices(pixel)
	return orb.Point{float64(y), float64(z)}
}

// NewInstrument returns the instrument implementation registered under the
// given name. detectorRotation is in degrees and only used by instruments
// with a movable detector arm.
func NewInstrument(name string, detectorRotation float64) (Instrument, error) {
	switch name {
	case "amor":
		return NewAmorDetector(detectorRotation), nil
	case "planar":
		return &PlanarDetector{Width: 64, Height: 32, RowPitch: 0.02}, nil
	default:
		return nil, fmt.Errorf("unknown instrument %q", name)
	}
}
