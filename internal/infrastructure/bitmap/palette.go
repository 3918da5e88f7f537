package bitmap

import (
	"image/color"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// paletteHex lists the class colors shared with the trainer, in class order.
var paletteHex = []string{
	"3498db", // blue
	"e67e22", // orange
	"e74c3c", // red
	"9b59b6", // purple
	"2ecc71", // green
	"f1c40f", // yellow
	"795548", // brown
	"34495e", // navy
}

var palette = func() []color.NRGBA {
	out := make([]color.NRGBA, len(paletteHex))
	for i, hex := range paletteHex {
		c := drawing.ColorFromHex(hex)
		out[i] = color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}
	}
	return out
}()

// PaletteSize is the number of distinct class colors.
func PaletteSize() int {
	return len(palette)
}

// ClassColor returns the opaque color of a class index. Indices outside the
// palette map to black.
func ClassColor(index int) color.NRGBA {
	if index < 0 || index >= len(palette) {
		return color.NRGBA{A: 255}
	}
	return palette[index]
}
