package reduce

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Quantity is a scalar configuration value with an explicit unit tag. Units
// are converted once at ingestion; the core works in canonical units only
// (degrees, millimeters, angstrom, 1/angstrom).
type Quantity struct {
	Value float64 `yaml:"value" json:"value"`
	Unit  string  `yaml:"unit" json:"unit"`
}

// AngleDeg converts the quantity to degrees.
func (q Quantity) AngleDeg() (float64, error) {
	switch q.Unit {
	case "deg", "degree", "":
		return q.Value, nil
	case "rad":
		return q.Value * 180 / math.Pi, nil
	case "mrad":
		return q.Value * 0.18 / math.Pi, nil
	default:
		return 0, fmt.Errorf("unit %q is not an angle unit", q.Unit)
	}
}

// LengthMM converts the quantity to millimeters.
func (q Quantity) LengthMM() (float64, error) {
	switch q.Unit {
	case "mm", "":
		return q.Value, nil
	case "cm":
		return q.Value * 10, nil
	case "m":
		return q.Value * 1000, nil
	case "um":
		return q.Value / 1000, nil
	default:
		return 0, fmt.Errorf("unit %q is not a length unit", q.Unit)
	}
}

// WavelengthAngstrom converts the quantity to angstrom.
func (q Quantity) WavelengthAngstrom() (float64, error) {
	switch q.Unit {
	case "angstrom", "A", "":
		return q.Value, nil
	case "nm":
		return q.Value * 10, nil
	default:
		return 0, fmt.Errorf("unit %q is not a wavelength unit", q.Unit)
	}
}

// QInvAngstrom converts the quantity to inverse angstrom.
func (q Quantity) QInvAngstrom() (float64, error) {
	switch q.Unit {
	case "1/angstrom", "1/A", "":
		return q.Value, nil
	case "1/nm":
		return q.Value / 10, nil
	default:
		return 0, fmt.Errorf("unit %q is not a momentum transfer unit", q.Unit)
	}
}

// BinsConfig describes a binning axis in the configuration file.
type BinsConfig struct {
	Min   Quantity `yaml:"min"`
	Max   Quantity `yaml:"max"`
	Num   int      `yaml:"num"`
	Scale string   `yaml:"scale"` // "linear" (default) or "log"
}

func (b BinsConfig) edges(convert func(Quantity) (float64, error)) (BinEdges, error) {
	lo, err := convert(b.Min)
	if err != nil {
		return nil, err
	}
	hi, err := convert(b.Max)
	if err != nil {
		return nil, err
	}
	switch b.Scale {
	case "log":
		return GeomSpace(lo, hi, b.Num)
	case "linear", "":
		return LinSpace(lo, hi, b.Num)
	default:
		return nil, fmt.Errorf("%w: unknown scale %q", ErrBadEdges, b.Scale)
	}
}

// SupermirrorConfig is the supermirror calibration in configuration units.
type SupermirrorConfig struct {
	CriticalEdge Quantity `yaml:"critical_edge"`
	MValue       float64  `yaml:"m_value"`
	Alpha        float64  `yaml:"alpha"`
}

// RunConfig describes one measurement run in the configuration file.
type RunConfig struct {
	ID   string `yaml:"id"`
	Kind string `yaml:"kind"`
	// File is the event list for this run, relative to the data directory.
	File string `yaml:"file"`

	Rotation   Quantity `yaml:"rotation"`
	SampleSize Quantity `yaml:"sample_size"`
	BeamSize   Quantity `yaml:"beam_size"`

	ROI ROI `yaml:"roi"`

	Supermirror *SupermirrorConfig `yaml:"supermirror,omitempty"`
}

// MQTTConfig configures curve publication.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Config is the experiment configuration loaded from YAML.
type Config struct {
	Instrument       string   `yaml:"instrument"`
	DetectorRotation Quantity `yaml:"detector_rotation"`

	WavelengthBins BinsConfig `yaml:"wavelength_bins"`
	QBins          BinsConfig `yaml:"q_bins"`

	// CriticalEdge optionally gives a Q interval (1/angstrom) where the
	// reflectivity is known to be 1, anchoring scale-to-overlap.
	CriticalEdge *Interval `yaml:"critical_edge,omitempty"`

	Resolution *ResolutionParams `yaml:"resolution,omitempty"`

	MQTT MQTTConfig `yaml:"mqtt"`

	Runs []RunConfig `yaml:"runs"`
}

// LoadConfig loads the experiment configuration from a YAML file and
// validates it eagerly: a broken configuration is rejected before any event
// processing starts.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if config.Instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	if config.WavelengthBins.Num < 1 {
		return nil, fmt.Errorf("wavelength_bins.num must be at least 1")
	}
	if config.QBins.Num < 1 {
		return nil, fmt.Errorf("q_bins.num must be at least 1")
	}
	if _, err := config.WavelengthEdges(); err != nil {
		return nil, fmt.Errorf("wavelength_bins: %w", err)
	}
	if _, err := config.QEdges(); err != nil {
		return nil, fmt.Errorf("q_bins: %w", err)
	}
	if len(config.Runs) == 0 {
		return nil, fmt.Errorf("at least one run must be defined")
	}

	haveReference := false
	for i, rc := range config.Runs {
		if rc.ID == "" {
			return nil, fmt.Errorf("runs[%d].id is required", i)
		}
		switch RunKind(rc.Kind) {
		case SampleRun:
		case ReferenceRun:
			haveReference = true
			if rc.Supermirror == nil {
				return nil, fmt.Errorf("runs[%d] (%s): reference runs require a supermirror calibration", i, rc.ID)
			}
		default:
			return nil, fmt.Errorf("runs[%d] (%s): kind must be %q or %q", i, rc.ID, SampleRun, ReferenceRun)
		}
		if _, err := rc.Run(); err != nil {
			return nil, fmt.Errorf("runs[%d] (%s): %w", i, rc.ID, err)
		}
	}
	if !haveReference {
		return nil, fmt.Errorf("a reference run is required")
	}

	return &config, nil
}

// WavelengthEdges returns the configured wavelength bin edges in angstrom.
func (c *Config) WavelengthEdges() (BinEdges, error) {
	return c.WavelengthBins.edges(Quantity.WavelengthAngstrom)
}

// QEdges returns the configured Q bin edges in 1/angstrom.
func (c *Config) QEdges() (BinEdges, error) {
	return c.QBins.edges(Quantity.QInvAngstrom)
}

// BuildInstrument constructs the configured instrument.
func (c *Config) BuildInstrument() (Instrument, error) {
	nu, err := c.DetectorRotation.AngleDeg()
	if err != nil {
		return nil, fmt.Errorf("detector_rotation: %w", err)
	}
	return NewInstrument(c.Instrument, nu)
}

// Run converts the run configuration into a core Run with canonical units.
// Events are not attached; the caller loads them separately.
func (rc RunConfig) Run() (*Run, error) {
	rotation, err := rc.Rotation.AngleDeg()
	if err != nil {
		return nil, fmt.Errorf("rotation: %w", err)
	}
	sampleSize, err := rc.SampleSize.LengthMM()
	if err != nil {
		return nil, fmt.Errorf("sample_size: %w", err)
	}
	if sampleSize <= 0 {
		return nil, fmt.Errorf("sample_size must be positive, got %v", sampleSize)
	}
	beamSize, err := rc.BeamSize.LengthMM()
	if err != nil {
		return nil, fmt.Errorf("beam_size: %w", err)
	}
	if beamSize <= 0 {
		return nil, fmt.Errorf("beam_size must be positive, got %v", beamSize)
	}

	run := &Run{
		ID:         rc.ID,
		Kind:       RunKind(rc.Kind),
		Rotation:   rotation,
		SampleSize: sampleSize,
		BeamSize:   beamSize,
		ROI:        rc.ROI,
	}
	if rc.Supermirror != nil {
		edge, err := rc.Supermirror.CriticalEdge.QInvAngstrom()
		if err != nil {
			return nil, fmt.Errorf("supermirror.critical_edge: %w", err)
		}
		sm := &Supermirror{
			CriticalEdge: edge,
			MValue:       rc.Supermirror.MValue,
			Alpha:        rc.Supermirror.Alpha,
		}
		if err := sm.Validate(); err != nil {
			return nil, err
		}
		run.Supermirror = sm
	}
	return run, nil
}

// SaveConfig writes the configuration back to a YAML file.
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
