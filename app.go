package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nlund/reflred/reduce"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *reduce.Config
	Instrument reduce.Instrument
	Cache      *reduce.GridCache
	MQTTClient mqtt.Client
	Publisher  *reduce.Publisher

	// CLI flags (effectively dependencies)
	ConfigFile string
	DataDir    string
	OutputDir  string
	GridCache  string
	Workers    int
	HttpPort   int
	MqttMode   bool
	HttpMode   bool

	mu       sync.RWMutex
	grid     *reduce.ReferenceGrid
	gridKey  reduce.GridKey
	curves   map[string]*reduce.Curve
	combined *reduce.Curve
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Cache:  reduce.NewGridCache(),
		curves: make(map[string]*reduce.Curve),
	}
}

// Load reads the configuration and constructs the instrument.
func (a *App) Load() error {
	config, err := reduce.LoadConfig(a.ConfigFile)
	if err != nil {
		return err
	}
	inst, err := config.BuildInstrument()
	if err != nil {
		return err
	}
	a.Config = config
	a.Instrument = inst
	return nil
}

// loadRun builds the run from its configuration and attaches its events.
func (a *App) loadRun(rc reduce.RunConfig) (*reduce.Run, error) {
	run, err := rc.Run()
	if err != nil {
		return nil, err
	}
	if rc.File == "" {
		return nil, fmt.Errorf("run %s: no event file configured", rc.ID)
	}
	events, err := reduce.LoadEventsCSV(filepath.Join(a.DataDir, rc.File))
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", rc.ID, err)
	}
	run.Events = events
	log.Printf("Loaded %d events for run %s", events.Len(), run.ID)
	return run, nil
}

// buildReferenceGrid reduces every configured reference run (at most once
// each, through the cache) and merges the results. A grid persisted by an
// earlier session is fed back into the cache first so the reduction is
// skipped entirely when the configuration still matches.
func (a *App) buildReferenceGrid() (*reduce.ReferenceGrid, error) {
	wavelengthEdges, err := a.Config.WavelengthEdges()
	if err != nil {
		return nil, err
	}

	var grids []*reduce.ReferenceGrid
	var lastKey reduce.GridKey
	for _, rc := range a.Config.Runs {
		if reduce.RunKind(rc.Kind) != reduce.ReferenceRun {
			continue
		}
		run, err := a.loadRun(rc)
		if err != nil {
			return nil, err
		}
		key := reduce.GridKey{
			RunID:       run.ID,
			Fingerprint: reduce.ConfigFingerprint(a.Instrument.Name(), wavelengthEdges, run.ROI, run.Supermirror),
		}
		lastKey = key

		if a.GridCache != "" {
			if cached, err := reduce.LoadGrid(a.GridCache); err != nil {
				log.Printf("Ignoring grid cache: %v", err)
			} else if cached != nil && cached.Key == key {
				log.Printf("Reusing persisted reference grid for %s", key.RunID)
				a.Cache.Put(key, cached.Grid)
			}
		}

		grid, err := a.Cache.GetOrBuild(key, func() (*reduce.ReferenceGrid, error) {
			log.Printf("Building reference grid for %s", run.ID)
			return reduce.BuildReferenceGrid(run, a.Instrument, wavelengthEdges, a.Workers)
		})
		if err != nil {
			return nil, err
		}
		grids = append(grids, grid)
	}

	grid := grids[0]
	if len(grids) > 1 {
		if grid, err = reduce.MergeReferenceGrids(grids...); err != nil {
			return nil, err
		}
	}

	if a.GridCache != "" && len(grids) == 1 {
		if err := reduce.SaveGrid(a.GridCache, lastKey, grid); err != nil {
			log.Printf("Error persisting reference grid: %v", err)
		}
	}

	a.mu.Lock()
	a.grid = grid
	a.gridKey = lastKey
	a.mu.Unlock()
	return grid, nil
}

// RunReduction executes the full reduction: reference grid, one curve per
// sample run, then scaling and stitching.
func (a *App) RunReduction() error {
	grid, err := a.buildReferenceGrid()
	if err != nil {
		return err
	}
	log.Printf("Reference grid: %d events, %d excluded, %d empty cells",
		grid.TotalEvents, grid.Excluded, len(grid.EmptyCells()))

	qEdges, err := a.Config.QEdges()
	if err != nil {
		return err
	}

	var curves []*reduce.Curve
	for _, rc := range a.Config.Runs {
		if reduce.RunKind(rc.Kind) != reduce.SampleRun {
			continue
		}
		run, err := a.loadRun(rc)
		if err != nil {
			return err
		}
		curve, err := reduce.ReduceSample(run, grid, a.Instrument, qEdges, a.Workers)
		if err != nil {
			return err
		}
		if a.Config.Resolution != nil {
			reduce.AttachQResolution(curve, *a.Config.Resolution, run)
		}
		curves = append(curves, curve)
		log.Printf("Reduced run %s: %d Q bins", run.ID, curve.NumBins())
	}
	if len(curves) == 0 {
		return fmt.Errorf("no sample runs configured")
	}

	scaled, factors, err := reduce.ScaleToOverlap(curves, a.Config.CriticalEdge)
	if err != nil {
		return err
	}
	for i, f := range factors {
		log.Printf("Scale factor for %s: %.4f", curves[i].RunID, f)
	}

	combined, err := reduce.CombineCurves(scaled, qEdges)
	if err != nil {
		return err
	}

	a.mu.Lock()
	for _, c := range scaled {
		a.curves[c.RunID] = c
	}
	a.combined = combined
	a.mu.Unlock()

	if a.Publisher != nil {
		for _, c := range scaled {
			if err := a.Publisher.PublishCurve(c); err != nil {
				log.Printf("Error publishing %s: %v", c.RunID, err)
			}
		}
		if err := a.Publisher.PublishCurve(combined); err != nil {
			log.Printf("Error publishing combined curve: %v", err)
		}
	}
	return nil
}

// Grid returns the current reference grid, if built.
func (a *App) Grid() *reduce.ReferenceGrid {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.grid
}

// Curves returns the scaled per-run curves.
func (a *App) Curves() map[string]*reduce.Curve {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]*reduce.Curve, len(a.curves))
	for id, c := range a.curves {
		out[id] = c
	}
	return out
}

// Combined returns the stitched curve, if computed.
func (a *App) Combined() *reduce.Curve {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.combined
}

// WriteOutputs writes curve JSON files and figures into the output directory.
func (a *App) WriteOutputs() error {
	if a.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(a.OutputDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	writeJSON := func(name string, v interface{}) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling %s: %w", name, err)
		}
		return os.WriteFile(filepath.Join(a.OutputDir, name), data, 0644)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	var all []*reduce.Curve
	for id, c := range a.curves {
		if err := writeJSON(fmt.Sprintf("curve-%s.json", id), c); err != nil {
			return err
		}
		all = append(all, c)
	}
	if a.combined != nil {
		if err := writeJSON("curve-combined.json", a.combined); err != nil {
			return err
		}
		all = append(all, a.combined)
	}

	if len(all) > 0 {
		f, err := os.Create(filepath.Join(a.OutputDir, "reflectivity.svg"))
		if err != nil {
			return fmt.Errorf("creating figure file: %w", err)
		}
		defer f.Close()
		if err := reduce.NewCurveRenderer(all...).RenderToSVG(f); err != nil {
			return err
		}
	}
	if a.grid != nil {
		f, err := os.Create(filepath.Join(a.OutputDir, "reference-grid.png"))
		if err != nil {
			return fmt.Errorf("creating grid figure file: %w", err)
		}
		defer f.Close()
		if err := reduce.RenderGridPNG(f, a.grid); err != nil {
			return err
		}
	}
	log.Printf("Wrote outputs to %s", a.OutputDir)
	return nil
}
