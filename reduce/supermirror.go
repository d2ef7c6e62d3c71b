package reduce

import "fmt"

// Supermirror describes the known reflectivity curve of the reference
// supermirror. Below the critical edge the mirror reflects fully; between
// the critical edge and m times the critical edge the reflectivity falls off
// linearly with slope alpha; beyond that the curve is unknown.
type Supermirror struct {
	// CriticalEdge is the critical momentum transfer Qc in 1/angstrom.
	CriticalEdge float64 `json:"criticalEdge" yaml:"critical_edge"`
	// MValue is the m-value of the supermirror coating.
	MValue float64 `json:"mValue" yaml:"m_value"`
	// Alpha is the linear falloff per 1/angstrom above the critical edge.
	Alpha float64 `json:"alpha" yaml:"alpha"`
}

// Validate checks the calibration parameters before any event processing.
func (s Supermirror) Validate() error {
	if s.CriticalEdge <= 0 {
		return fmt.Errorf("supermirror: critical edge must be positive, got %v", s.CriticalEdge)
	}
	if s.MValue < 1 {
		return fmt.Errorf("supermirror: m-value must be at least 1, got %v", s.MValue)
	}
	if s.Alpha < 0 {
		return fmt.Errorf("supermirror: alpha must be non-negative, got %v", s.Alpha)
	}
	return nil
}

// Reflectivity returns the supermirror reflectivity at momentum transfer q.
// Outside the region of known reflectivity (q >= m*Qc) ok is false and the
// value must not be used.
func (s Supermirror) Reflectivity(q float64) (float64, bool) {
	switch {
	case q < s.CriticalEdge:
		return 1, true
	case q < s.MValue*s.CriticalEdge:
		return 1 - s.Alpha*(q-s.CriticalEdge), true
	default:
		return 0, false
	}
}
