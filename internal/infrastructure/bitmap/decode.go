package bitmap

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"

	"github.com/nnvisu/nnvisu-go/internal/domain/protocol"
	"github.com/nnvisu/nnvisu-go/internal/shared"
)

const (
	// HeaderSize is the binary frame header: tag, u16 width, u16 height.
	HeaderSize = 5

	// MaxDimension bounds each side of a decoded grid.
	MaxDimension = 4096

	// AlphaOpaque is applied to binary-framed pixels.
	AlphaOpaque uint8 = 255

	// AlphaOverlay is applied to text-framed pixels so points stay visible.
	AlphaOverlay uint8 = 100

	// FormatRGB is the text-frame format carrying RGB triples.
	FormatRGB = "rgb"
)

func checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	return nil
}

// DecodeBinary decodes [u8 tag][u16LE width][u16LE height][RGB...] into an
// opaque RGBA bitmap. A short or long payload fills what it can: missing
// pixels stay transparent, surplus bytes are ignored.
func DecodeBinary(frame []byte) (shared.DecisionBitmap, error) {
	if len(frame) < HeaderSize {
		return shared.DecisionBitmap{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(frame))
	}
	if frame[0] != protocol.BinaryTagMapUpdate {
		return shared.DecisionBitmap{}, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, frame[0])
	}

	width := int(binary.LittleEndian.Uint16(frame[1:3]))
	height := int(binary.LittleEndian.Uint16(frame[3:5]))
	if err := checkDimensions(width, height); err != nil {
		return shared.DecisionBitmap{}, err
	}

	return decodeRGB(width, height, frame[HeaderSize:], AlphaOpaque), nil
}

// DecodeText decodes a text-framed map. With format "rgb" the data holds RGB
// triples; without a format it holds one class index per pixel, mapped
// through the palette. Both use AlphaOverlay.
func DecodeText(payload protocol.MapPayload) (shared.DecisionBitmap, error) {
	if err := checkDimensions(payload.Width, payload.Height); err != nil {
		return shared.DecisionBitmap{}, err
	}

	raw, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return shared.DecisionBitmap{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	switch payload.Format {
	case FormatRGB:
		return decodeRGB(payload.Width, payload.Height, raw, AlphaOverlay), nil
	case "":
		return decodeClassIndex(payload.Width, payload.Height, raw, AlphaOverlay), nil
	}

	return shared.DecisionBitmap{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, payload.Format)
}

func decodeRGB(width, height int, payload []byte, alpha uint8) shared.DecisionBitmap {
	pixels := width * height
	pix := make([]uint8, pixels*4)

	n := len(payload) / 3
	if n > pixels {
		n = pixels
	}
	for i := 0; i < n; i++ {
		src := payload[i*3 : i*3+3]
		dst := pix[i*4 : i*4+4]
		dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], alpha
	}

	return shared.DecisionBitmap{Width: width, Height: height, Pix: pix}
}

func decodeClassIndex(width, height int, payload []byte, alpha uint8) shared.DecisionBitmap {
	pixels := width * height
	pix := make([]uint8, pixels*4)

	n := len(payload)
	if n > pixels {
		n = pixels
	}
	for i := 0; i < n; i++ {
		c := ClassColor(int(payload[i]))
		dst := pix[i*4 : i*4+4]
		dst[0], dst[1], dst[2], dst[3] = c.R, c.G, c.B, alpha
	}

	return shared.DecisionBitmap{Width: width, Height: height, Pix: pix}
}

// ToImage wraps a decoded bitmap as a non-premultiplied image. The pixel
// buffer is copied.
func ToImage(b shared.DecisionBitmap) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	copy(img.Pix, b.Pix)
	return img
}
