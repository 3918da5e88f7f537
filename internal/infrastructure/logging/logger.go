package logging

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Options configures the root logger.
type Options struct {
	// Name is the root logger name.
	Name string

	// Level is an hclog level name. Empty means info.
	Level string

	// Output defaults to stderr.
	Output io.Writer

	// JSON switches to JSON lines.
	JSON bool

	// Ring, when set, captures every entry at its own level.
	Ring *Ring
}

// New creates the root logger. Components derive named sub-loggers from it
// with Named; all of them feed the ring.
func New(opts Options) hclog.InterceptLogger {
	if opts.Name == "" {
		opts.Name = "nnvisu"
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	level := hclog.LevelFromString(strings.TrimSpace(opts.Level))
	if level == hclog.NoLevel {
		level = hclog.Info
	}

	logger := hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:       opts.Name,
		Level:      level,
		Output:     opts.Output,
		JSONFormat: opts.JSON,
	})
	if opts.Ring != nil {
		logger.RegisterSink(opts.Ring)
	}
	return logger
}
