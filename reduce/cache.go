package reduce

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultGridCachePath is the default path for the persisted reference grid.
const DefaultGridCachePath = ".reference-grid.json"

// GridKey identifies one (reference run, configuration) pair. Two keys are
// equal exactly when reusing the grid is valid.
type GridKey struct {
	RunID       string `json:"runId"`
	Fingerprint string `json:"fingerprint"`
}

// ConfigFingerprint digests everything the reference grid build depends on:
// instrument, wavelength edges, ROI and supermirror calibration. Sample-run
// parameters deliberately do not enter the fingerprint; the grid is reused
// unchanged for every sample run.
func ConfigFingerprint(instrument string, edges BinEdges, roi ROI, sm *Supermirror) string {
	payload := struct {
		Instrument  string       `json:"instrument"`
		Edges       BinEdges     `json:"edges"`
		ROI         ROI          `json:"roi"`
		Supermirror *Supermirror `json:"supermirror"`
	}{instrument, edges, roi, sm}
	data, err := json.Marshal(payload)
	if err != nil {
		// All field types marshal cleanly; this cannot happen at runtime.
		panic(fmt.Sprintf("reduce: fingerprint marshal: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

type gridEntry struct {
	once sync.Once
	grid *ReferenceGrid
	err  error
}

// GridCache guarantees that the expensive reference reduction runs at most
// once per GridKey within a session. Callers either build through GetOrBuild
// or feed a previously computed grid back in with Put; either way every
// sample reduction for the same key sees the same immutable instance.
type GridCache struct {
	mu      sync.Mutex
	entries map[GridKey]*gridEntry
}

// NewGridCache returns an empty cache.
func NewGridCache() *GridCache {
	return &GridCache{entries: make(map[GridKey]*gridEntry)}
}

func (c *GridCache) entry(key GridKey) *gridEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &gridEntry{}
		c.entries[key] = e
	}
	return e
}

// GetOrBuild returns the cached grid for key, invoking build exactly once on
// first use. Concurrent callers for the same key block until the single
// build finishes. A build error is cached as well: the reduction is
// deterministic, so retrying cannot succeed.
func (c *GridCache) GetOrBuild(key GridKey, build func() (*ReferenceGrid, error)) (*ReferenceGrid, error) {
	e := c.entry(key)
	e.once.Do(func() {
		e.grid, e.err = build()
	})
	return e.grid, e.err
}

// Put stores a previously computed grid under key, short-circuiting any
// later GetOrBuild for it. A key that already holds a grid is left alone.
func (c *GridCache) Put(key GridKey, grid *ReferenceGrid) {
	e := c.entry(key)
	e.once.Do(func() {
		e.grid = grid
	})
}

// Get returns the grid cached under key, if any.
func (c *GridCache) Get(key GridKey) (*ReferenceGrid, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok || e.grid == nil {
		return nil, false
	}
	return e.grid, true
}

// CachedGrid is the on-disk form of a persisted reference grid.
type CachedGrid struct {
	Key     GridKey        `json:"key"`
	Grid    *ReferenceGrid `json:"grid"`
	SavedAt int64          `json:"savedAt"`
}

// LoadGrid loads a persisted reference grid from a JSON cache file. A
// missing file is not an error and returns nil.
func LoadGrid(path string) (*CachedGrid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading grid cache: %w", err)
	}

	var cached CachedGrid
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("parsing grid cache: %w", err)
	}
	return &cached, nil
}

// SaveGrid persists a reference grid to a JSON cache file so later sessions
// can skip the reduction entirely.
func SaveGrid(path string, key GridKey, grid *ReferenceGrid) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating grid cache directory: %w", err)
	}

	cached := CachedGrid{Key: key, Grid: grid, SavedAt: time.Now().Unix()}
	data, err := json.MarshalIndent(&cached, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling grid cache: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing grid cache: %w", err)
	}
	return nil
}
