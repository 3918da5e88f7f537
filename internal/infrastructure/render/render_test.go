package render

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/nnvisu/nnvisu-go/internal/infrastructure/bitmap"
	"github.com/nnvisu/nnvisu-go/internal/shared"
)

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -3 && d <= 3
}

func assertColor(t *testing.T, img *image.RGBA, x, y int, want color.RGBA) {
	t.Helper()
	got := img.RGBAAt(x, y)
	if !near(got.R, want.R) || !near(got.G, want.G) || !near(got.B, want.B) || !near(got.A, want.A) {
		t.Fatalf("expected %+v at (%d,%d), got %+v", want, x, y, got)
	}
}

func mustDraw(t *testing.T, r *Renderer, dst *image.RGBA, scene Scene) {
	t.Helper()
	if err := r.Draw(dst, scene); err != nil {
		t.Fatalf("unexpected draw error: %v", err)
	}
}

func TestDrawBackgroundAndPoint(t *testing.T) {
	r := NewRenderer(200, 200)
	dst := r.NewSurface()

	mustDraw(t, r, dst, Scene{Points: []shared.Point{{X: 0.5, Y: 0.5, Label: 0}}})

	assertColor(t, dst, 2, 2, color.RGBA{0xf9, 0xf9, 0xf9, 0xff})

	blue := bitmap.ClassColor(0)
	assertColor(t, dst, 150, 50, color.RGBA{blue.R, blue.G, blue.B, 0xff})
}

func TestDrawGridLines(t *testing.T) {
	r := NewRenderer(200, 200)
	dst := r.NewSurface()
	mustDraw(t, r, dst, Scene{})

	bg := dst.RGBAAt(50, 50)
	onLine := dst.RGBAAt(100, 30)
	if onLine == bg {
		t.Fatalf("expected the vertical center line to differ from background %+v", bg)
	}
}

func TestDrawStretchesBitmap(t *testing.T) {
	r := NewRenderer(100, 100)
	dst := r.NewSurface()

	bm, err := bitmap.DecodeBinary([]byte{0x01, 1, 0, 1, 0, 255, 0, 0})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	mustDraw(t, r, dst, Scene{Bitmap: bitmap.ToImage(bm)})

	assertColor(t, dst, 10, 90, color.RGBA{255, 0, 0, 255})
}

func TestDrawEraseCursorOnlyForEraseTool(t *testing.T) {
	r := NewRenderer(200, 200)
	cursor := &shared.Vec{X: -0.5, Y: -0.5}

	drawTool := r.NewSurface()
	mustDraw(t, r, drawTool, Scene{Tool: shared.ToolDraw, Cursor: cursor, EraseRadius: 20})
	eraseTool := r.NewSurface()
	mustDraw(t, r, eraseTool, Scene{Tool: shared.ToolErase, Cursor: cursor, EraseRadius: 20})
	plain := r.NewSurface()
	mustDraw(t, r, plain, Scene{})

	if !bytes.Equal(drawTool.Pix, plain.Pix) {
		t.Fatal("expected no cursor with the draw tool")
	}
	if bytes.Equal(eraseTool.Pix, plain.Pix) {
		t.Fatal("expected an erase cursor with the erase tool")
	}
}

func TestLoopSwapsFrames(t *testing.T) {
	r := NewRenderer(50, 50)
	l := NewLoop(r, func() Scene { return Scene{} }, WithRefreshRate(200))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for l.Frames() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected frames to be drawn, got %d", l.Frames())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	assertColor(t, l.Snapshot(), 1, 1, color.RGBA{0xf9, 0xf9, 0xf9, 0xff})
}

func TestLoopRecoversFromPanic(t *testing.T) {
	calls := 0
	l := NewLoop(NewRenderer(20, 20), func() Scene {
		calls++
		if calls == 1 {
			panic("bad scene")
		}
		return Scene{}
	})

	if l.RenderFrame() {
		t.Fatal("expected first frame to fail")
	}
	if !l.RenderFrame() {
		t.Fatal("expected second frame to succeed")
	}
	if l.Panics() != 1 || l.Frames() != 1 {
		t.Fatalf("expected 1 panic and 1 frame, got %d and %d", l.Panics(), l.Frames())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	l := NewLoop(NewRenderer(10, 10), func() Scene { return Scene{} })
	l.RenderFrame()

	snap := l.Snapshot()
	snap.Pix[0] = 0
	if l.Snapshot().Pix[0] == 0 {
		t.Fatal("expected snapshot to be independent of the front buffer")
	}

	var buf bytes.Buffer
	if err := l.WritePNG(&buf); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png decode failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 10 || b.Dy() != 10 {
		t.Fatalf("expected 10x10 png, got %v", b)
	}
}
