package bitmap

import (
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nnvisu/nnvisu-go/internal/shared"
)

func blank(width, height int) shared.DecisionBitmap {
	return shared.DecisionBitmap{Width: width, Height: height, Pix: make([]uint8, width*height*4)}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRasterizerScalesToTarget(t *testing.T) {
	r := NewRasterizer(WithTargetSize(4, 2))
	defer r.Close()

	bm, err := DecodeBinary([]byte{0x01, 2, 0, 1, 0, 255, 0, 0, 255, 0, 0})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	seq := r.Submit(bm)
	waitFor(t, func() bool { return r.appliedSeq() == seq })

	img := r.Current()
	if img == nil {
		t.Fatal("expected an image after submit")
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 2 {
		t.Fatalf("expected 4x2 image, got %v", b)
	}
	if c := img.RGBAAt(0, 0); c.R != 255 || c.A != 255 {
		t.Fatalf("expected opaque red, got %+v", c)
	}
}

func TestRasterizerDiscardsStaleResults(t *testing.T) {
	release := make(chan struct{})
	r := NewRasterizer(WithWorkers(2))
	r.rasterize = func(b shared.DecisionBitmap) *image.RGBA {
		if b.Width == 1 {
			<-release
		}
		return image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	}

	older := r.Submit(blank(1, 1))
	newer := r.Submit(blank(2, 2))
	if newer <= older {
		t.Fatalf("expected increasing sequence numbers, got %d then %d", older, newer)
	}

	waitFor(t, func() bool { return r.appliedSeq() == newer })
	close(release)
	r.Close()

	if got := r.appliedSeq(); got != newer {
		t.Fatalf("expected applied sequence %d, got %d", newer, got)
	}
	if img := r.Current(); img == nil || img.Bounds().Dx() != 2 {
		t.Fatalf("expected the newer 2x2 image to stay displayed, got %v", img)
	}
}

func TestRasterizerClearInvalidatesInFlight(t *testing.T) {
	release := make(chan struct{})
	var swaps atomic.Int32
	r := NewRasterizer(WithSwapHook(func(uint64) { swaps.Add(1) }))
	r.rasterize = func(b shared.DecisionBitmap) *image.RGBA {
		<-release
		return image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	}

	r.Submit(blank(3, 3))
	r.Clear()
	close(release)
	r.Close()

	if img := r.Current(); img != nil {
		t.Fatalf("expected no image after clear, got %v", img.Bounds())
	}
	if n := swaps.Load(); n != 0 {
		t.Fatalf("expected no swaps, got %d", n)
	}
}

func TestRasterizerIgnoresSubmitAfterClose(t *testing.T) {
	r := NewRasterizer()
	r.Close()

	if seq := r.Submit(blank(1, 1)); seq != 0 {
		t.Fatalf("expected 0 after close, got %d", seq)
	}
}
