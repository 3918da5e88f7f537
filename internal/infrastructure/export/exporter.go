// Package export periodically writes the rendered canvas to disk.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
)

// ErrInvalidInterval is returned for a non-positive export interval.
var ErrInvalidInterval = errors.New("export interval must be positive")

// LatestName is the file that always holds the most recent export.
const LatestName = "latest.png"

// FrameSource encodes the latest rendered frame.
type FrameSource interface {
	WritePNG(w io.Writer) error
}

// Exporter writes a PNG of the canvas on a fixed schedule.
type Exporter struct {
	mu        sync.Mutex
	dir       string
	every     time.Duration
	source    FrameSource
	logger    hclog.Logger
	scheduler *cron.Cron
	keep      bool
	exported  int
	lastErr   error
}

// Option configures the Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// WithTimestamped keeps every export under a timestamped name in addition
// to LatestName.
func WithTimestamped(keep bool) Option {
	return func(e *Exporter) {
		e.keep = keep
	}
}

// New creates an Exporter writing into dir every interval.
func New(dir string, every time.Duration, source FrameSource, opts ...Option) (*Exporter, error) {
	if every <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, every)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	e := &Exporter{
		dir:    dir,
		every:  every,
		source: source,
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.scheduler = cron.New()
	if _, err := e.scheduler.AddFunc(fmt.Sprintf("@every %s", every), e.tick); err != nil {
		return nil, err
	}
	return e, nil
}

// Start begins the schedule.
func (e *Exporter) Start() {
	e.logger.Info("canvas export started", "dir", e.dir, "every", e.every)
	e.scheduler.Start()
}

// Stop ends the schedule and waits for a running export.
func (e *Exporter) Stop() {
	<-e.scheduler.Stop().Done()
}

func (e *Exporter) tick() {
	if _, err := e.Export(); err != nil {
		e.logger.Warn("canvas export failed", "error", err)
	}
}

// Export writes one frame now and returns the path of the latest file.
func (e *Exporter) Export() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	latest := filepath.Join(e.dir, LatestName)
	if err := e.writeFile(latest); err != nil {
		e.lastErr = err
		return "", err
	}

	if e.keep {
		name := fmt.Sprintf("canvas-%s.png", time.Now().UTC().Format("20060102T150405.000"))
		if err := e.writeFile(filepath.Join(e.dir, name)); err != nil {
			e.lastErr = err
			return "", err
		}
	}

	e.exported++
	e.lastErr = nil
	e.logger.Trace("canvas exported", "path", latest)
	return latest, nil
}

// writeFile writes a frame to a temp file and renames it into place.
func (e *Exporter) writeFile(path string) error {
	tmp, err := os.CreateTemp(e.dir, ".export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := e.source.WritePNG(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Stats returns the number of successful exports and the last error.
func (e *Exporter) Stats() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exported, e.lastErr
}
