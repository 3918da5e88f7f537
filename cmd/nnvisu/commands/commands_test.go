package commands

import (
	"encoding/base64"
	"testing"

	"github.com/spf13/cobra"

	"github.com/nnvisu/nnvisu-go/internal/shared"
)

func TestDecodeFrameBinary(t *testing.T) {
	bm, err := decodeFrame([]byte{0x01, 2, 0, 1, 0, 255, 0, 0, 0, 255, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bm.Width != 2 || bm.Height != 1 {
		t.Fatalf("expected 2x1, got %dx%d", bm.Width, bm.Height)
	}
	if got := bm.PixelAt(1, 0); got != [4]uint8{0, 255, 0, 255} {
		t.Fatalf("expected green, got %v", got)
	}
}

func TestDecodeFrameText(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte{10, 20, 30})
	frame := []byte(`  {"type":"map_update","payload":{"width":1,"height":1,"format":"rgb","data":"` + data + `"}}`)

	bm, err := decodeFrame(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := bm.PixelAt(0, 0); got != [4]uint8{10, 20, 30, 100} {
		t.Fatalf("expected overlay pixel, got %v", got)
	}
}

func TestDecodeFrameRejectsOtherMessages(t *testing.T) {
	if _, err := decodeFrame([]byte(`{"type":"error","message":"x"}`)); err == nil {
		t.Fatal("expected error for a non-map frame")
	}
}

func TestClassCounts(t *testing.T) {
	lines := classCounts([]shared.Point{{Label: 1}, {Label: 0}, {Label: 1}})
	if len(lines) != 2 || lines[0] != "class 0: 1" || lines[1] != "class 1: 2" {
		t.Fatalf("expected sorted counts, got %v", lines)
	}
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	t.Setenv("NNVISU_STORE", "memory:")

	root := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	RegisterConfigFlags(root)
	if err := root.ParseFlags([]string{"--env-file", "", "--canvas", "300", "--listen", ""}); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}

	if err := LoadConfig(root); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	config := Config()
	if config.Store != "memory:" {
		t.Fatalf("expected store from environment, got %q", config.Store)
	}
	if config.CanvasWidth != 300 || config.CanvasHeight != 300 {
		t.Fatalf("expected 300x300 canvas, got %dx%d", config.CanvasWidth, config.CanvasHeight)
	}
	if config.Listen != "" {
		t.Fatalf("expected HTTP disabled, got %q", config.Listen)
	}
}
