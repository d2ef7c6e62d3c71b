package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/nlund/reflred/reduce"
)

// newHTTPServer creates an HTTP server exposing the reduced curves and
// diagnostic figures.
func newHTTPServer(app *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		w.Header().Set("Content-Type", "application/json")
		status := struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			HasGrid   bool      `json:"hasGrid"`
			NumCurves int       `json:"numCurves"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			HasGrid:   app.Grid() != nil,
			NumCurves: len(app.Curves()),
		}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding health status: %v", err)
		}
	})

	// All scaled per-run curves as JSON
	mux.HandleFunc("/curves", func(w http.ResponseWriter, r *http.Request) {
		curves := app.Curves()
		if len(curves) == 0 {
			http.Error(w, "No curves available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(curves); err != nil {
			log.Printf("Error encoding curves: %v", err)
		}
	})

	// The stitched curve as JSON
	mux.HandleFunc("/combined", func(w http.ResponseWriter, r *http.Request) {
		combined := app.Combined()
		if combined == nil {
			http.Error(w, "No combined curve available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(combined); err != nil {
			log.Printf("Error encoding combined curve: %v", err)
		}
	})

	// Per-run curve figure: /curve/{id}.svg
	mux.HandleFunc("/curve/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/curve/")
		id = strings.TrimSuffix(id, ".svg")
		curve, ok := app.Curves()[id]
		if !ok {
			http.Error(w, "Unknown run: "+id, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		if err := reduce.NewCurveRenderer(curve).RenderToSVG(w); err != nil {
			log.Printf("Error rendering curve %s: %v", id, err)
		}
	})

	// Combined figure of all curves
	mux.HandleFunc("/reflectivity.svg", func(w http.ResponseWriter, r *http.Request) {
		curves := app.Curves()
		if len(curves) == 0 {
			http.Error(w, "No curves available", http.StatusServiceUnavailable)
			return
		}
		var all []*reduce.Curve
		for _, c := range curves {
			all = append(all, c)
		}
		if combined := app.Combined(); combined != nil {
			all = append(all, combined)
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		if err := reduce.NewCurveRenderer(all...).RenderToSVG(w); err != nil {
			log.Printf("Error rendering curves: %v", err)
		}
	})

	// Reference grid heatmap
	mux.HandleFunc("/reference-grid.png", func(w http.ResponseWriter, r *http.Request) {
		grid := app.Grid()
		if grid == nil {
			http.Error(w, "No reference grid available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		if err := reduce.RenderGridPNG(w, grid); err != nil {
			log.Printf("Error rendering reference grid: %v", err)
		}
	})

	return mux
}
