package commands

import (
	"bytes"
	"fmt"
	"image/png"
	"os"

	"github.com/spf13/cobra"

	"github.com/nnvisu/nnvisu-go/internal/domain/protocol"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/bitmap"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/render"
	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// Decode command flags
var (
	decodeOutput string
	decodeSize   int
	decodeRaw    bool
)

// DecodeCmd decodes a captured decision-map frame into a PNG.
var DecodeCmd = &cobra.Command{
	Use:   "decode <frame-file>",
	Short: "Decode a captured decision-map frame to PNG",
	Long: `Decode a decision-map frame captured from the trainer channel.

JSON text frames ({"type":"map_update",...}) and binary frames
([0x01][u16 width][u16 height][RGB...]) are both accepted. By default the map
is drawn on the full canvas with grid and axis labels; --raw writes the grid
at its native size.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		bm, err := decodeFrame(data)
		if err != nil {
			return err
		}

		out, err := os.Create(decodeOutput)
		if err != nil {
			return err
		}
		defer out.Close()

		if decodeRaw {
			err = png.Encode(out, bitmap.ToImage(bm))
		} else {
			renderer := render.NewRenderer(decodeSize, decodeSize)
			surface := renderer.NewSurface()
			if err = renderer.Draw(surface, render.Scene{Bitmap: bitmap.ToImage(bm)}); err == nil {
				err = png.Encode(out, surface)
			}
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", decodeOutput, err)
		}

		fmt.Println(KeyValue("grid", fmt.Sprintf("%dx%d", bm.Width, bm.Height)))
		fmt.Println(KeyValue("written", decodeOutput))
		return nil
	},
}

// decodeFrame accepts a text or binary frame and returns the decoded bitmap.
func decodeFrame(data []byte) (shared.DecisionBitmap, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		msg, err := protocol.DecodeText(trimmed)
		if err != nil {
			return shared.DecisionBitmap{}, err
		}
		update, ok := msg.(protocol.MapUpdate)
		if !ok {
			return shared.DecisionBitmap{}, fmt.Errorf("expected a map_update frame, got %q", msg.InboundType())
		}
		return bitmap.DecodeText(update.Payload)
	}
	return bitmap.DecodeBinary(data)
}

func init() {
	DecodeCmd.Flags().StringVarP(&decodeOutput, "output", "o", "decision-map.png", "Output PNG file")
	DecodeCmd.Flags().IntVar(&decodeSize, "size", 800, "Canvas size in pixels")
	DecodeCmd.Flags().BoolVar(&decodeRaw, "raw", false, "Write the grid at native size without decorations")
}
