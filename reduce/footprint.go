package reduce

import (
	"fmt"
	"math"
)

// stdToFWHM converts a standard deviation to full width at half maximum,
// 2*sqrt(2*ln 2).
var stdToFWHM = 2 * math.Sqrt(2*math.Log(2))

// FWHMToStd converts a full width at half maximum to a standard deviation.
func FWHMToStd(fwhm float64) float64 {
	return fwhm / stdToFWHM
}

// FootprintOnSample computes the fraction of the beam hitting the sample.
//
// theta is the incidence angle in radians, beamSize the FWHM of the beam and
// sampleSize the sample width along the beam, both in millimeters. The beam
// profile is taken as Gaussian, so the intercepted fraction is the error
// function of the sample size over the projected beam size.
func FootprintOnSample(theta, beamSize, sampleSize float64) float64 {
	beamOnSample := beamSize / math.Sin(theta)
	return math.Erf(FWHMToStd(sampleSize / beamOnSample))
}

// FootprintCorrection returns the multiplicative weight 1/F applied to an
// event at incidence angle theta. The angle must be inside the illuminated
// range: a non-positive footprint means the event was fed in without ROI
// filtering, which is a caller bug, so this panics rather than returning a
// bad weight.
func FootprintCorrection(theta, beamSize, sampleSize float64) float64 {
	f := FootprintOnSample(theta, beamSize, sampleSize)
	if !(f > 0) {
		panic(fmt.Sprintf("reduce: footprint fraction %v at theta=%v rad; event outside illuminated range must be ROI-filtered before correction", f, theta))
	}
	return 1 / f
}
