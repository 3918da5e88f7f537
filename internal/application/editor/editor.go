// Package editor turns pointer activations on the drawing surface into
// point-set edits.
package editor

import (
	"gonum.org/v1/gonum/floats"

	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// Surface is the drawing surface size in pixels.
type Surface struct {
	Width  float64
	Height float64
}

// Contains reports whether the pixel position lies on the surface.
func (s Surface) Contains(px, py float64) bool {
	return px >= 0 && py >= 0 && px <= s.Width && py <= s.Height
}

// Normalize maps a pixel position to [-1,1]x[-1,1] with y pointing up.
func (s Surface) Normalize(px, py float64) shared.Vec {
	return shared.Vec{
		X: px/s.Width*2 - 1,
		Y: -(py/s.Height*2 - 1),
	}
}

// pixel maps a normalized position back to pixel coordinates.
func (s Surface) pixel(v shared.Vec) (float64, float64) {
	return (v.X + 1) / 2 * s.Width, (1 - v.Y) / 2 * s.Height
}

// NormalizeRadius converts a pixel radius to normalized units using the
// surface width.
func (s Surface) NormalizeRadius(r float64) float64 {
	return r / s.Width * 2
}

// Editor applies the active tool at a pointer position.
type Editor struct {
	surface     Surface
	eraseRadius float64
}

// New creates an Editor. eraseRadius is in pixels.
func New(surface Surface, eraseRadius float64) *Editor {
	return &Editor{surface: surface, eraseRadius: eraseRadius}
}

// Surface returns the drawing surface.
func (e *Editor) Surface() Surface {
	return e.surface
}

// EraseRadius returns the erase radius in pixels.
func (e *Editor) EraseRadius() float64 {
	return e.eraseRadius
}

// Apply runs tool at pixel (px, py) and returns the edited point set and
// whether anything was attempted. Positions off the surface are ignored. The
// input slice is never modified.
func (e *Editor) Apply(points []shared.Point, tool shared.Tool, class int, px, py float64) ([]shared.Point, bool) {
	if !e.surface.Contains(px, py) {
		return points, false
	}

	pos := e.surface.Normalize(px, py)
	switch tool {
	case shared.ToolErase:
		return Erase(points, pos, e.surface.NormalizeRadius(e.eraseRadius)), true
	case shared.ToolDraw:
		return Draw(points, pos, class), true
	}
	return points, false
}

// Draw appends a point at pos with the given label.
func Draw(points []shared.Point, pos shared.Vec, label int) []shared.Point {
	out := make([]shared.Point, len(points), len(points)+1)
	copy(out, points)
	return append(out, shared.Point{X: pos.X, Y: pos.Y, Label: label})
}

// Erase returns the points farther than radius from center, in order.
func Erase(points []shared.Point, center shared.Vec, radius float64) []shared.Point {
	c := []float64{center.X, center.Y}
	p := make([]float64, 2)

	out := make([]shared.Point, 0, len(points))
	for _, pt := range points {
		p[0], p[1] = pt.X, pt.Y
		if floats.Distance(p, c, 2) > radius {
			out = append(out, pt)
		}
	}
	return out
}
