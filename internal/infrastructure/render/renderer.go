// Package render draws the visualization surface: decision map, grid, axis
// labels, points and the erase cursor.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/wcharczuk/go-chart/v2/drawing"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/nnvisu/nnvisu-go/internal/infrastructure/bitmap"
	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// PointRadius is the radius of a drawn point in pixels.
const PointRadius = 5.0

var (
	backgroundColor = drawing.ColorFromHex("f9f9f9")
	gridColor       = drawing.ColorFromHex("dddddd")
	labelColor      = drawing.ColorFromHex("666666")
	cursorColor     = drawing.ColorFromHex("333333")
	outlineColor    = drawing.ColorWhite
)

// Scene is everything one frame shows.
type Scene struct {
	// Bitmap is the decision map, stretched to the surface. Nil draws none.
	Bitmap image.Image

	Points []shared.Point
	Tool   shared.Tool

	// Cursor is the last pointer position in normalized coordinates.
	Cursor *shared.Vec

	// EraseRadius is the erase cursor radius in pixels.
	EraseRadius float64
}

// Renderer draws scenes onto a fixed-size surface.
type Renderer struct {
	width  int
	height int
	face   font.Face
}

// NewRenderer creates a Renderer for a width x height surface.
func NewRenderer(width, height int) *Renderer {
	return &Renderer{width: width, height: height, face: basicfont.Face7x13}
}

// Size returns the surface size.
func (r *Renderer) Size() (int, int) {
	return r.width, r.height
}

// NewSurface allocates an image matching the surface size.
func (r *Renderer) NewSurface() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, r.width, r.height))
}

// toPixel maps normalized coordinates to surface pixels, y pointing down.
func (r *Renderer) toPixel(x, y float64) (float64, float64) {
	return (x + 1) / 2 * float64(r.width), (1 - y) / 2 * float64(r.height)
}

// Draw renders scene into dst, replacing its previous content.
func (r *Renderer) Draw(dst *image.RGBA, scene Scene) error {
	bounds := dst.Bounds()
	xdraw.Draw(dst, bounds, image.NewUniform(backgroundColor), image.Point{}, xdraw.Src)

	if scene.Bitmap != nil {
		xdraw.ApproxBiLinear.Scale(dst, bounds, scene.Bitmap, scene.Bitmap.Bounds(), xdraw.Over, nil)
	}

	gc, err := drawing.NewRasterGraphicContext(dst)
	if err != nil {
		return fmt.Errorf("failed to create graphic context: %w", err)
	}
	r.drawGrid(gc)
	r.drawLabels(dst)
	r.drawPoints(gc, scene.Points)

	if scene.Tool == shared.ToolErase && scene.Cursor != nil && scene.EraseRadius > 0 {
		r.drawEraseCursor(gc, *scene.Cursor, scene.EraseRadius)
	}
	return nil
}

func (r *Renderer) drawGrid(gc *drawing.RasterGraphicContext) {
	w, h := float64(r.width), float64(r.height)

	gc.SetStrokeColor(gridColor)
	gc.SetLineWidth(1)
	gc.BeginPath()
	gc.MoveTo(w/2, 0)
	gc.LineTo(w/2, h)
	gc.MoveTo(0, h/2)
	gc.LineTo(w, h/2)
	gc.Stroke()
}

func (r *Renderer) drawLabels(dst *image.RGBA) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(labelColor), Face: r.face}
	ascent := r.face.Metrics().Ascent.Ceil()
	w, h := r.width, r.height

	text := func(s string, x, y int) {
		d.Dot = fixed.P(x, y)
		d.DrawString(s)
	}
	width := func(s string) int {
		return d.MeasureString(s).Ceil()
	}

	// x axis along the horizontal center line
	text("-1", 4, h/2+ascent+2)
	text("0", w/2+4, h/2+ascent+2)
	text("1", w-width("1")-4, h/2+ascent+2)
	text("x", w-width("x")-4, h/2-4)

	// y axis along the vertical center line
	text("1", w/2+4, ascent+2)
	text("-1", w/2+4, h-4)
	text("y", w/2-width("y")-4, ascent+2)
}

func (r *Renderer) drawPoints(gc *drawing.RasterGraphicContext, points []shared.Point) {
	gc.SetStrokeColor(outlineColor)
	gc.SetLineWidth(1)

	for _, p := range points {
		cx, cy := r.toPixel(p.X, p.Y)
		c := bitmap.ClassColor(p.Label)

		gc.SetFillColor(color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
		gc.BeginPath()
		gc.MoveTo(cx+PointRadius, cy)
		gc.ArcTo(cx, cy, PointRadius, PointRadius, 0, 2*math.Pi)
		gc.Close()
		gc.FillStroke()
	}
}

func (r *Renderer) drawEraseCursor(gc *drawing.RasterGraphicContext, cursor shared.Vec, radius float64) {
	cx, cy := r.toPixel(cursor.X, cursor.Y)

	gc.SetStrokeColor(cursorColor)
	gc.SetLineWidth(1)
	gc.SetLineDash([]float64{4, 4}, 0)
	gc.BeginPath()
	gc.MoveTo(cx+radius, cy)
	gc.ArcTo(cx, cy, radius, radius, 0, 2*math.Pi)
	gc.Close()
	gc.Stroke()
	gc.SetLineDash(nil, 0)
}
