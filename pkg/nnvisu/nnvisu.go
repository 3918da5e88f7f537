// Package nnvisu provides the public API for nnvisu-go.
//
// A Client connects to a neural-net trainer, keeps the drawing session
// (points, configuration, model weights) in a persistent store, renders the
// decision boundary and exposes the session commands.
//
// Example:
//
//	client, err := nnvisu.New(nnvisu.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := client.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Shutdown()
//
//	go client.Run(ctx)
//	_ = client.Controller().StartTraining()
package nnvisu

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/sourcegraph/conc/pool"

	"github.com/nnvisu/nnvisu-go/internal/application/controller"
	"github.com/nnvisu/nnvisu-go/internal/application/editor"
	"github.com/nnvisu/nnvisu-go/internal/application/history"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/bitmap"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/events"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/export"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/httpui"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/logging"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/render"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/state"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/transport"
	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// Re-export types for public API
type (
	Config          = shared.ClientConfig
	ModelConfig     = shared.Config
	Point           = shared.Point
	Tool            = shared.Tool
	Status          = shared.Status
	StatusText      = shared.StatusText
	Event           = shared.Event
	EventType       = shared.EventType
	View            = controller.View
	ConfigPatch     = controller.ConfigPatch
	Controller      = controller.Controller
	LogEntry        = logging.Entry
	SnapshotSummary = history.Summary
	Dialer          = transport.Dialer
	Backend         = state.Backend
	ValidationError = shared.ValidationError
)

// Re-export constants.
const (
	ToolDraw  = shared.ToolDraw
	ToolErase = shared.ToolErase

	StatusConnected    = shared.StatusConnected
	StatusDisconnected = shared.StatusDisconnected
	StatusTraining     = shared.StatusTraining
	StatusIdle         = shared.StatusIdle
	StatusModelReset   = shared.StatusModelReset
	StatusError        = shared.StatusError

	EventStatusChanged   = shared.EventStatusChanged
	EventMetricsUpdated  = shared.EventMetricsUpdated
	EventPointsChanged   = shared.EventPointsChanged
	EventConfigChanged   = shared.EventConfigChanged
	EventSnapshotStored  = shared.EventSnapshotStored
	EventHistoryCompact  = shared.EventHistoryCompact
	EventConnectionOpen  = shared.EventConnectionOpen
	EventConnectionClose = shared.EventConnectionClose
)

// LogRingSize bounds the entries kept for /logs.
const LogRingSize = 1000

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return shared.DefaultClientConfig()
}

// LoadConfig loads the configuration from envFile and NNVISU_* variables.
func LoadConfig(envFile string) (Config, error) {
	return shared.LoadClientConfig(envFile)
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(dialer Dialer) Option {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// WithBackend replaces the backend opened from Config.Store.
func WithBackend(backend Backend) Option {
	return func(c *Client) {
		c.backend = backend
	}
}

// WithLogOutput sets where log lines are written.
func WithLogOutput(w io.Writer) Option {
	return func(c *Client) {
		c.logOutput = w
	}
}

// WithJSONLogs switches log output to JSON lines.
func WithJSONLogs(enabled bool) Option {
	return func(c *Client) {
		c.jsonLogs = enabled
	}
}

// Client wires the visualizer components together.
type Client struct {
	mu          sync.Mutex
	config      Config
	logOutput   io.Writer
	jsonLogs    bool
	dialer      Dialer
	backend     Backend
	initialized bool
	shutdown    bool

	logger     hclog.InterceptLogger
	ring       *logging.Ring
	bus        *events.EventBus
	store      *state.Store
	history    *history.Recorder
	raster     *bitmap.Rasterizer
	editor     *editor.Editor
	controller *controller.Controller
	session    *transport.Session
	loop       *render.Loop
	handler    *httpui.Handler
	server     *httpui.Server
	exporter   *export.Exporter
}

// New creates a Client. Nothing is opened until Initialize.
func New(config Config, opts ...Option) (*Client, error) {
	config = config.Normalize()
	if _, err := transport.EndpointFromPage(config.PageURL); err != nil {
		return nil, err
	}

	c := &Client{
		config: config,
		dialer: transport.WebSocketDialer{Timeout: config.ReconnectDelay * 5},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.ring = logging.NewRing(hclog.Debug, LogRingSize)
	c.logger = logging.New(logging.Options{
		Name:   "nnvisu",
		Level:  config.LogLevel,
		Output: c.logOutput,
		JSON:   c.jsonLogs,
		Ring:   c.ring,
	})
	c.bus = events.New()
	return c, nil
}

// Initialize opens the store and builds every component.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}

	endpoint, err := transport.EndpointFromPage(c.config.PageURL)
	if err != nil {
		return err
	}

	backend := c.backend
	if backend == nil {
		backend = state.OpenWithFallback(ctx, c.config.Store, c.logger.Named("store"))
	}
	c.store = state.NewStore(backend, state.WithLogger(c.logger.Named("store")))

	c.history = history.NewRecorder(
		history.WithLogger(c.logger.Named("history")),
		history.WithCompactHook(c.bus.EmitHistoryCompacted),
	)
	c.raster = bitmap.NewRasterizer(
		bitmap.WithTargetSize(c.config.CanvasWidth, c.config.CanvasHeight),
		bitmap.WithRasterLogger(c.logger.Named("raster")),
		bitmap.WithSwapHook(func(seq uint64) { c.controller.OnRasterized(seq) }),
	)
	c.editor = editor.New(editor.Surface{
		Width:  float64(c.config.CanvasWidth),
		Height: float64(c.config.CanvasHeight),
	}, c.config.EraseRadius)

	c.controller, err = controller.New(controller.Options{
		Store:      c.store,
		Editor:     c.editor,
		Rasterizer: c.raster,
		History:    c.history,
		Events:     c.bus,
		Logger:     c.logger.Named("controller"),
		Endpoint:   endpoint,
	})
	if err != nil {
		return err
	}

	c.session = transport.NewSession(c.dialer, endpoint, c.controller,
		transport.WithReconnectDelay(c.config.ReconnectDelay),
		transport.WithLogger(c.logger.Named("transport")),
	)
	c.controller.BindSender(c.session)
	c.controller.Init(ctx)

	c.loop = render.NewLoop(
		render.NewRenderer(c.config.CanvasWidth, c.config.CanvasHeight),
		c.controller.Scene,
		render.WithRefreshRate(c.config.RefreshRate),
		render.WithLogger(c.logger.Named("render")),
	)

	c.handler = httpui.NewHandler(c.logger.Named("http"), c.controller, c.history, c.loop, c.ring)
	if c.config.Listen != "" {
		c.server = httpui.NewServer(c.logger.Named("http"), c.config.Listen, c.handler.Router())
	}

	if c.config.ExportDir != "" {
		c.exporter, err = export.New(c.config.ExportDir, c.config.ExportEvery, c.loop,
			export.WithLogger(c.logger.Named("export")))
		if err != nil {
			return err
		}
	}

	c.initialized = true
	c.logger.Info("client initialized", "endpoint", endpoint, "store", c.config.Store)
	return nil
}

// Run drives the controller, the trainer session, the render loop and the
// HTTP adapter until ctx is cancelled or one of them fails.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return fmt.Errorf("client not initialized")
	}
	server := c.server
	exporter := c.exporter
	c.mu.Unlock()

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(c.controller.Run)
	p.Go(c.session.Run)
	p.Go(c.loop.Run)
	if server != nil {
		p.Go(server.Run)
	}
	if exporter != nil {
		exporter.Start()
		defer exporter.Stop()
	}
	return p.Wait()
}

// Shutdown releases the store, the rasterizer and the event bus.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized || c.shutdown {
		return nil
	}
	c.shutdown = true

	err := c.controller.Teardown()
	c.bus.Close()
	if err != nil {
		c.logger.Error("shutdown failed", "error", err)
		return err
	}
	c.logger.Info("client shut down")
	return nil
}

// Config returns the normalized configuration.
func (c *Client) Config() Config {
	return c.config
}

// Logger returns the root logger.
func (c *Client) Logger() hclog.Logger {
	return c.logger
}

// Controller returns the session controller. Nil before Initialize.
func (c *Client) Controller() *Controller {
	return c.controller
}

// View returns the latest session view.
func (c *Client) View() View {
	return c.controller.View()
}

// Handler returns the HTTP routes. Nil before Initialize.
func (c *Client) Handler() http.Handler {
	if c.handler == nil {
		return nil
	}
	return c.handler.Router()
}

// Subscribe returns a channel receiving events of one type.
func (c *Client) Subscribe(eventType EventType) <-chan Event {
	return c.bus.Subscribe(eventType)
}

// SubscribeAll returns a channel receiving every event.
func (c *Client) SubscribeAll() <-chan Event {
	return c.bus.SubscribeAll()
}

// Logs returns up to limit recent log entries.
func (c *Client) Logs(limit int) []LogEntry {
	return c.ring.Entries(limit)
}

// History returns the recorded snapshot summaries.
func (c *Client) History() []SnapshotSummary {
	if c.history == nil {
		return []SnapshotSummary{}
	}
	return c.history.List()
}

// WritePNG encodes the latest rendered frame.
func (c *Client) WritePNG(w io.Writer) error {
	if c.loop == nil {
		return fmt.Errorf("client not initialized")
	}
	return c.loop.WritePNG(w)
}

// ConnectionAttempts returns how many times the trainer was dialed.
func (c *Client) ConnectionAttempts() int {
	if c.session == nil {
		return 0
	}
	return c.session.Attempts()
}

// ConnectionState returns the trainer channel state.
func (c *Client) ConnectionState() string {
	if c.session == nil {
		return transport.StateClosed.String()
	}
	return c.session.State().String()
}
