package reduce

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// CurveRenderer draws reflectivity curves as static diagnostic figures.
// Reflectivity is plotted on a log10 axis against Q.
type CurveRenderer struct {
	Curves []*Curve

	Width      float64 // canvas width in mm
	Height     float64 // canvas height in mm
	Padding    float64 // margin around the plot area in mm
	Resolution canvas.Resolution
	// FloorR clips the log axis from below; values under it are not drawn.
	FloorR float64
}

// NewCurveRenderer creates a renderer with default dimensions.
func NewCurveRenderer(curves ...*Curve) *CurveRenderer {
	return &CurveRenderer{
		Curves:     curves,
		Width:      160,
		Height:     100,
		Padding:    10,
		Resolution: canvas.DPI(300),
		FloorR:     1e-8,
	}
}

// canvasRenderer is the interface both the svg and rasterizer backends
// implement.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the curve figure as an SVG to the provided writer.
func (r *CurveRenderer) RenderToSVG(w io.Writer) error {
	svgRenderer := svg.New(w, r.Width, r.Height, nil)
	if err := r.renderToCanvas(svgRenderer); err != nil {
		return err
	}
	return svgRenderer.Close()
}

// RenderToPNG writes the curve figure as a PNG to the provided writer.
func (r *CurveRenderer) RenderToPNG(w io.Writer) error {
	rast := rasterizer.New(r.Width, r.Height, r.Resolution, canvas.DefaultColorSpace)
	if err := r.renderToCanvas(rast); err != nil {
		return err
	}
	return png.Encode(w, rast)
}

var curvePalette = []color.RGBA{
	{31, 119, 180, 255},
	{255, 127, 14, 255},
	{44, 160, 44, 255},
	{214, 39, 40, 255},
}

func (r *CurveRenderer) renderToCanvas(renderer canvasRenderer) error {
	qMin, qMax, lMin, lMax, ok := r.dataBounds()
	if !ok {
		return fmt.Errorf("curve figure: no finite points to draw")
	}

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(r.Width, r.Height), bgStyle, canvas.Identity)

	plotW := r.Width - 2*r.Padding
	plotH := r.Height - 2*r.Padding
	toCanvas := func(q, logR float64) (float64, float64) {
		x := r.Padding + (q-qMin)/(qMax-qMin)*plotW
		y := r.Padding + (logR-lMin)/(lMax-lMin)*plotH
		return x, y
	}

	// Frame and decade grid lines.
	gridStyle := canvas.DefaultStyle
	gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	gridStyle.StrokeWidth = 0.2
	gridStyle.Dashes = []float64{1.0, 1.0}
	for decade := math.Ceil(lMin); decade <= lMax; decade++ {
		p := &canvas.Path{}
		x1, y1 := toCanvas(qMin, decade)
		x2, y2 := toCanvas(qMax, decade)
		p.MoveTo(x1, y1)
		p.LineTo(x2, y2)
		renderer.RenderPath(p, gridStyle, canvas.Identity)
	}

	frameStyle := canvas.DefaultStyle
	frameStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	frameStyle.Stroke = canvas.Paint{Color: canvas.Black}
	frameStyle.StrokeWidth = 0.4
	frame := &canvas.Path{}
	frame.MoveTo(r.Padding, r.Padding)
	frame.LineTo(r.Padding+plotW, r.Padding)
	frame.LineTo(r.Padding+plotW, r.Padding+plotH)
	frame.LineTo(r.Padding, r.Padding+plotH)
	frame.Close()
	renderer.RenderPath(frame, frameStyle, canvas.Identity)

	for ci, curve := range r.Curves {
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: canvas.Transparent}
		style.Stroke = canvas.Paint{Color: curvePalette[ci%len(curvePalette)]}
		style.StrokeWidth = 0.5

		p := &canvas.Path{}
		drawing := false
		mids := curve.QEdges.Midpoints()
		for i, q := range mids {
			v := curve.R[i]
			if math.IsNaN(v) || v < r.FloorR {
				drawing = false
				continue
			}
			x, y := toCanvas(q, math.Log10(v))
			if drawing {
				p.LineTo(x, y)
			} else {
				p.MoveTo(x, y)
				drawing = true
			}
		}
		renderer.RenderPath(p, style, canvas.Identity)
	}
	return nil
}

// dataBounds finds the Q and log10(R) ranges covered by the finite curve
// points.
func (r *CurveRenderer) dataBounds() (qMin, qMax, lMin, lMax float64, ok bool) {
	qMin, lMin = math.Inf(1), math.Inf(1)
	qMax, lMax = math.Inf(-1), math.Inf(-1)
	for _, curve := range r.Curves {
		mids := curve.QEdges.Midpoints()
		for i, q := range mids {
			v := curve.R[i]
			if math.IsNaN(v) || v < r.FloorR {
				continue
			}
			l := math.Log10(v)
			qMin, qMax = math.Min(qMin, q), math.Max(qMax, q)
			lMin, lMax = math.Min(lMin, l), math.Max(lMax, l)
		}
	}
	if qMin >= qMax {
		return 0, 0, 0, 0, false
	}
	if lMin == lMax {
		lMin, lMax = lMin-0.5, lMax+0.5
	}
	return qMin, qMax, lMin, lMax, true
}

// RenderGridPNG draws the reference grid as a wavelength-by-group heatmap.
// Empty cells are gray so coverage gaps are visible at a glance.
func RenderGridPNG(w io.Writer, grid *ReferenceGrid) error {
	const cell = 3
	const margin = 20

	bins := grid.WavelengthEdges.NumBins()
	imgW := margin + grid.NumGroups*cell
	imgH := margin + bins*cell
	img := image.NewRGBA(image.Rect(0, 0, imgW, imgH))
	for x := 0; x < imgW; x++ {
		for y := 0; y < imgH; y++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	maxW := 0.0
	for _, v := range grid.Weights {
		maxW = math.Max(maxW, v)
	}

	for bin := 0; bin < bins; bin++ {
		for group := 0; group < grid.NumGroups; group++ {
			weight, _, count := grid.At(bin, group)
			var c color.RGBA
			if count == 0 {
				c = color.RGBA{200, 200, 200, 255}
			} else {
				c = heatColor(weight / maxW)
			}
			for dy := 0; dy < cell; dy++ {
				for dx := 0; dx < cell; dx++ {
					img.Set(margin+group*cell+dx, margin+bin*cell+dy, c)
				}
			}
		}
	}

	drawText(img, 2, 12, "group >", color.RGBA{0, 0, 0, 255})
	drawText(img, 2, imgH-4, "wavelength v", color.RGBA{0, 0, 0, 255})

	return png.Encode(w, img)
}

// heatColor maps a normalized intensity to a dark-blue-to-yellow ramp.
func heatColor(t float64) color.RGBA {
	t = math.Max(0, math.Min(1, t))
	return color.RGBA{
		R: uint8(255 * t),
		G: uint8(220 * t),
		B: uint8(150 * (1 - t)),
		A: 255,
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
