package render

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultRefreshRate is the frame rate when none is configured.
const DefaultRefreshRate = 60

// SceneSource returns the scene to draw next. It must not block.
type SceneSource func() Scene

// Loop redraws the surface on a fixed tick. Each frame is drawn into a back
// buffer and then swapped to the front; readers only ever see whole frames.
type Loop struct {
	renderer *Renderer
	source   SceneSource
	rate     int
	logger   hclog.Logger

	drawMu sync.Mutex
	mu     sync.RWMutex
	front  *image.RGBA
	back   *image.RGBA
	frames uint64
	panics uint64
}

// LoopOption configures the Loop.
type LoopOption func(*Loop)

// WithRefreshRate sets the frames per second.
func WithRefreshRate(fps int) LoopOption {
	return func(l *Loop) {
		if fps > 0 {
			l.rate = fps
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop creates a Loop drawing scenes from source.
func NewLoop(renderer *Renderer, source SceneSource, opts ...LoopOption) *Loop {
	l := &Loop{
		renderer: renderer,
		source:   source,
		rate:     DefaultRefreshRate,
		logger:   hclog.NewNullLogger(),
		front:    renderer.NewSurface(),
		back:     renderer.NewSurface(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run draws frames until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(l.rate))
	defer ticker.Stop()

	l.logger.Debug("render loop started", "fps", l.rate)
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("render loop stopped", "frames", l.Frames())
			return nil
		case <-ticker.C:
			l.RenderFrame()
		}
	}
}

// RenderFrame draws one frame and swaps it in. A panic while drawing is
// logged and the previous frame stays visible.
func (l *Loop) RenderFrame() (ok bool) {
	l.drawMu.Lock()
	defer l.drawMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			l.mu.Lock()
			l.panics++
			l.mu.Unlock()
			l.logger.Error("frame render panicked", "panic", fmt.Sprint(r))
			ok = false
		}
	}()

	scene := l.source()

	if err := l.renderer.Draw(l.back, scene); err != nil {
		l.logger.Error("frame render failed", "error", err)
		return false
	}

	l.mu.Lock()
	l.front, l.back = l.back, l.front
	l.frames++
	l.mu.Unlock()
	return true
}

// Frames returns the number of frames swapped in.
func (l *Loop) Frames() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frames
}

// Panics returns the number of frames that failed to draw.
func (l *Loop) Panics() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.panics
}

// Snapshot returns a copy of the front buffer.
func (l *Loop) Snapshot() *image.RGBA {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := image.NewRGBA(l.front.Bounds())
	copy(out.Pix, l.front.Pix)
	return out
}

// WritePNG encodes the current front buffer as PNG.
func (l *Loop) WritePNG(w io.Writer) error {
	return png.Encode(w, l.Snapshot())
}
