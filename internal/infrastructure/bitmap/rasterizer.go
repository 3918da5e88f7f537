package bitmap

import (
	"image"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/sourcegraph/conc/pool"
	xdraw "golang.org/x/image/draw"

	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// Rasterizer turns decoded bitmaps into display images off the caller's
// goroutine and swaps the newest one in. Results are ordered by submission
// sequence: a frame that finishes after a newer frame was already shown is
// discarded.
type Rasterizer struct {
	gate    sync.RWMutex
	mu      sync.Mutex
	workers *pool.Pool
	logger  hclog.Logger
	width   int
	height  int
	issued  uint64
	applied uint64
	current *image.RGBA
	closed  bool
	onSwap  func(seq uint64)

	rasterize func(shared.DecisionBitmap) *image.RGBA
}

// RasterizerOption configures the Rasterizer.
type RasterizerOption func(*Rasterizer)

// WithTargetSize scales every bitmap to width x height. Zero keeps the grid size.
func WithTargetSize(width, height int) RasterizerOption {
	return func(r *Rasterizer) {
		r.width = width
		r.height = height
	}
}

// WithWorkers bounds the number of concurrent rasterizations.
func WithWorkers(n int) RasterizerOption {
	return func(r *Rasterizer) {
		if n > 0 {
			r.workers = r.workers.WithMaxGoroutines(n)
		}
	}
}

// WithRasterLogger sets the logger.
func WithRasterLogger(logger hclog.Logger) RasterizerOption {
	return func(r *Rasterizer) {
		r.logger = logger
	}
}

// WithSwapHook registers a callback invoked after a new image was swapped in.
func WithSwapHook(fn func(seq uint64)) RasterizerOption {
	return func(r *Rasterizer) {
		r.onSwap = fn
	}
}

// NewRasterizer creates a Rasterizer.
func NewRasterizer(opts ...RasterizerOption) *Rasterizer {
	r := &Rasterizer{
		workers: pool.New().WithMaxGoroutines(2),
		logger:  hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.rasterize = r.scale
	return r
}

// Submit queues a bitmap for rasterization and returns its sequence number.
// It returns 0 once the rasterizer is closed.
func (r *Rasterizer) Submit(b shared.DecisionBitmap) uint64 {
	r.gate.RLock()
	defer r.gate.RUnlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0
	}
	r.issued++
	seq := r.issued
	rasterize := r.rasterize
	r.mu.Unlock()

	r.workers.Go(func() {
		img := rasterize(b)
		r.swap(seq, img)
	})
	return seq
}

func (r *Rasterizer) swap(seq uint64, img *image.RGBA) {
	r.mu.Lock()
	if applied := r.applied; seq <= applied {
		r.mu.Unlock()
		r.logger.Trace("discarding superseded bitmap", "seq", seq, "applied", applied)
		return
	}
	r.applied = seq
	r.current = img
	hook := r.onSwap
	r.mu.Unlock()

	if hook != nil {
		hook(seq)
	}
}

// Clear drops the displayed image and invalidates every in-flight submission.
func (r *Rasterizer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.applied = r.issued
	r.current = nil
}

// Current returns the displayed image, or nil.
func (r *Rasterizer) Current() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// appliedSeq returns the sequence number of the displayed image.
func (r *Rasterizer) appliedSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

// Close waits for in-flight work. Later submissions are ignored.
func (r *Rasterizer) Close() {
	r.gate.Lock()
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.gate.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()
	r.gate.Unlock()

	r.workers.Wait()
}

func (r *Rasterizer) scale(b shared.DecisionBitmap) *image.RGBA {
	src := ToImage(b)

	width, height := r.width, r.height
	if width <= 0 || height <= 0 {
		width, height = b.Width, b.Height
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
