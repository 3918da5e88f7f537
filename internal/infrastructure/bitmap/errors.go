// Package bitmap decodes decision-boundary map frames and rasterizes them for display.
package bitmap

import "errors"

// Decode errors. Each one drops the frame; the caller keeps showing the last
// good bitmap.
var (
	// ErrShortHeader indicates a binary frame shorter than its fixed header.
	ErrShortHeader = errors.New("binary map frame shorter than header")

	// ErrUnknownTag indicates a binary frame whose tag is not a map update.
	ErrUnknownTag = errors.New("binary frame is not a map update")

	// ErrInvalidDimensions indicates a zero or oversized grid.
	ErrInvalidDimensions = errors.New("invalid map dimensions")

	// ErrInvalidData indicates a text frame whose data is not valid base64.
	ErrInvalidData = errors.New("invalid map data encoding")

	// ErrUnsupportedFormat indicates a text frame format other than rgb or legacy.
	ErrUnsupportedFormat = errors.New("unsupported map format")
)
