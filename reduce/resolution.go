package reduce

import "math"

// ResolutionParams holds the instrument quantities entering the Q resolution,
// all lengths in millimeters.
type ResolutionParams struct {
	// ChopperSeparation is the distance between the two choppers.
	ChopperSeparation float64 `yaml:"chopper_separation"`
	// L1 is the distance from the chopper midpoint to the sample.
	L1 float64 `yaml:"l1"`
	// L2 is the distance from the sample to the detector.
	L2 float64 `yaml:"l2"`
	// DetectorSpatialResolution is the FWHM of the detector pixel response.
	DetectorSpatialResolution float64 `yaml:"detector_spatial_resolution"`
}

// WavelengthResolution is the relative wavelength uncertainty from the finite
// chopper separation, as a standard deviation.
func WavelengthResolution(l1, l2, chopperSeparation float64) float64 {
	return FWHMToStd(math.Abs(chopperSeparation) / (l1 + l2))
}

// SampleSizeResolution is the relative angular uncertainty from the projected
// sample size, as a standard deviation.
func SampleSizeResolution(l2, sampleSize float64) float64 {
	return FWHMToStd(sampleSize / l2)
}

// AngularResolution is the relative angular uncertainty from the detector
// pixel size at incidence angle theta (radians), as a standard deviation.
func AngularResolution(theta, l2, detectorSpatialResolution float64) float64 {
	return FWHMToStd(math.Atan(detectorSpatialResolution/l2)) / theta
}

// QResolution combines the relative resolution contributions into the sigma
// of Q.
func QResolution(q, angular, wavelength, sampleSize float64) float64 {
	return math.Sqrt((angular*angular + wavelength*wavelength + sampleSize*sampleSize) * q * q)
}

// AttachQResolution computes a per-bin Q resolution for the curve, using the
// run's rotation as the representative incidence angle for the angular term.
// The curve is modified in place and returned.
func AttachQResolution(curve *Curve, p ResolutionParams, run *Run) *Curve {
	theta := run.Rotation * math.Pi / 180
	wav := WavelengthResolution(p.L1, p.L2, p.ChopperSeparation)
	ang := AngularResolution(theta, p.L2, p.DetectorSpatialResolution)
	samp := SampleSizeResolution(p.L2, run.SampleSize)
	mids := curve.QEdges.Midpoints()
	curve.QResolution = make([]float64, len(mids))
	for i, q := range mids {
		curve.QResolution[i] = QResolution(q, ang, wav, samp)
	}
	return curve
}
