package reduce

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Amor geometry
// ---------------------------------------------------------------------------

func TestAmorDecomposition(t *testing.T) {
	d := NewAmorDetector(0)
	if got := d.NumPixels(); got != 14*32*64 {
		t.Fatalf("NumPixels() = %d, want %d", got, 14*32*64)
	}
	if got := d.NumGroups(); got != 14*32 {
		t.Fatalf("NumGroups() = %d, want %d", got, 14*32)
	}

	// pixel = (blade*32 + wire)*64 + stripe
	pixel := (3*32+17)*64 + 41
	y, z := d.PixelIndices(pixel)
	if y != 41 || z != 3*32+17 {
		t.Errorf("PixelIndices(%d) = (%d, %d), want (41, %d)", pixel, y, z, 3*32+17)
	}
	if got := d.GroupOf(pixel); got != 3*32+17 {
		t.Errorf("GroupOf(%d) = %d, want %d", pixel, got, 3*32+17)
	}

	center := d.GroupCenterPixel(3*32 + 17)
	if got := d.GroupOf(center); got != 3*32+17 {
		t.Errorf("GroupCenterPixel is in group %d, want %d", got, 3*32+17)
	}
}

func TestAmorGroupAngularSpreadZero(t *testing.T) {
	// The stripe coordinate only moves pixels sideways, so theta must not
	// change across a group.
	d := NewAmorDetector(4.0)
	for _, group := range []int{0, 101, 14*32 - 1} {
		if spread := d.GroupAngularSpread(group, 5.0, 1.0); spread != 0 {
			t.Errorf("GroupAngularSpread(group %d) = %v, want 0", group, spread)
		}
	}
}

func TestAmorThetaGravity(t *testing.T) {
	d := NewAmorDetector(4.0)
	pixel := d.GroupCenterPixel(7 * 32)

	// Gravity bends slow (long-wavelength) neutrons downward, so they must
	// have left the sample at a larger angle to arrive at the same pixel.
	short := d.Theta(1.0, pixel, 1.0)
	long := d.Theta(12.0, pixel, 1.0)
	if long <= short {
		t.Errorf("Theta(12 A) = %v <= Theta(1 A) = %v; gravity term missing", long, short)
	}

	// The correction is small at reflectometry angles.
	if long-short > 0.01 {
		t.Errorf("gravity correction %v rad implausibly large", long-short)
	}
}

func TestAmorDivergenceDecreasesDownward(t *testing.T) {
	d := NewAmorDetector(0)
	// Higher blade index means lower on the detector, hence smaller
	// divergence angle.
	top := d.DivergenceAngle(d.GroupCenterPixel(0 * 32))
	bottom := d.DivergenceAngle(d.GroupCenterPixel(13 * 32))
	if top <= bottom {
		t.Errorf("divergence top=%v, bottom=%v; want top > bottom", top, bottom)
	}
}

// ---------------------------------------------------------------------------
// Planar geometry
// ---------------------------------------------------------------------------

func TestPlanarTheta(t *testing.T) {
	d := &PlanarDetector{Width: 64, Height: 32, RowPitch: 0.02}

	// Center rows 15 and 16 straddle the detector center.
	want := (1.0 + 0.5*0.02) * math.Pi / 180
	got := d.Theta(5.0, 16*64, 1.0)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Theta(row 16) = %v, want %v", got, want)
	}

	// Theta is wavelength independent and constant across a row.
	if d.Theta(2.0, 16*64+5, 1.0) != d.Theta(11.0, 16*64+60, 1.0) {
		t.Error("planar theta should depend only on row and rotation")
	}
	if spread := d.GroupAngularSpread(16, 5.0, 1.0); spread != 0 {
		t.Errorf("GroupAngularSpread = %v, want 0", spread)
	}
}

func TestNewInstrument(t *testing.T) {
	if inst, err := NewInstrument("amor", 4.0); err != nil || inst.Name() != "amor" {
		t.Errorf("NewInstrument(amor) = (%v, %v)", inst, err)
	}
	if inst, err := NewInstrument("planar", 0); err != nil || inst.Name() != "planar" {
		t.Errorf("NewInstrument(planar) = (%v, %v)", inst, err)
	}
	if _, err := NewInstrument("offspec", 0); err == nil {
		t.Error("NewInstrument(offspec): expected error")
	}
}
