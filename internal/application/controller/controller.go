// Package controller owns the visualizer session: it reacts to user commands
// and trainer messages, drives the self-throttled training loop and publishes
// a read-only view for rendering.
package controller

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/nnvisu/nnvisu-go/internal/application/editor"
	"github.com/nnvisu/nnvisu-go/internal/application/history"
	"github.com/nnvisu/nnvisu-go/internal/domain/protocol"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/bitmap"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/events"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/render"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/state"
	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// ErrStopped is returned by commands once the event loop has exited.
var ErrStopped = errors.New("controller stopped")

// Sender delivers outbound messages to the trainer.
type Sender interface {
	Send(msg protocol.Outbound) error
}

// Options configures a Controller. Store, Editor and Rasterizer are required.
type Options struct {
	Store      *state.Store
	Editor     *editor.Editor
	Rasterizer *bitmap.Rasterizer
	History    *history.Recorder
	Events     *events.EventBus
	Logger     hclog.Logger

	// Endpoint is the trainer endpoint, for reporting only.
	Endpoint string

	// QueueSize bounds pending work for the event loop.
	QueueSize int
}

// View is an immutable snapshot of the session for readers outside the
// event loop.
type View struct {
	Status             shared.Status          `json:"status"`
	Connected          bool                   `json:"connected"`
	Training           bool                   `json:"training"`
	StepInFlight       bool                   `json:"stepInFlight"`
	HasModel           bool                   `json:"hasModel"`
	Config             shared.Config          `json:"config"`
	Metrics            shared.TrainingMetrics `json:"metrics"`
	Points             []shared.Point         `json:"points"`
	Tool               shared.Tool            `json:"tool"`
	Class              int                    `json:"class"`
	Cursor             *shared.Vec            `json:"cursor,omitempty"`
	Server             *shared.ServerInfo     `json:"server,omitempty"`
	HistoryLen         int                    `json:"historyLen"`
	HistoryInterval    int                    `json:"historyInterval"`
	HistoryCompactions int                    `json:"historyCompactions"`
	MapSeq             uint64                 `json:"mapSeq"`
	SeekIndex          int                    `json:"seekIndex"`
	Version            uint64                 `json:"version"`
}

// Controller is the session controller. All session state is owned by the
// goroutine running Run; everything else talks to it by posting closures.
type Controller struct {
	store    *state.Store
	editor   *editor.Editor
	raster   *bitmap.Rasterizer
	history  *history.Recorder
	bus      *events.EventBus
	logger   hclog.Logger
	sender   Sender
	endpoint string

	queue    chan func()
	done     chan struct{}
	doneOnce sync.Once
	running  atomic.Bool
	view     atomic.Pointer[View]
	teardown sync.Once

	// Loop-owned state.
	cfg          shared.Config
	weights      shared.ModelWeights
	points       []shared.Point
	metrics      shared.TrainingMetrics
	status       shared.Status
	connected    bool
	training     bool
	stepInFlight bool
	mapSeq       uint64
	mapsOwed     int // one map per train_step, answered in send order
	staleSteps   int
	staleMaps    int
	tool         shared.Tool
	class        int
	cursor       *shared.Vec
	server       *shared.ServerInfo
	seekIndex    int
	version      uint64
}

// New creates a Controller with default session state. Call Init before Run.
func New(opts Options) (*Controller, error) {
	if opts.Store == nil || opts.Editor == nil || opts.Rasterizer == nil {
		return nil, fmt.Errorf("controller requires a store, an editor and a rasterizer")
	}
	if opts.History == nil {
		opts.History = history.NewRecorder()
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}

	c := &Controller{
		store:     opts.Store,
		editor:    opts.Editor,
		raster:    opts.Rasterizer,
		history:   opts.History,
		bus:       opts.Events,
		logger:    opts.Logger,
		endpoint:  opts.Endpoint,
		queue:     make(chan func(), opts.QueueSize),
		done:      make(chan struct{}),
		cfg:       shared.DefaultConfig(),
		points:    []shared.Point{},
		status:    shared.Status{Text: shared.StatusDisconnected},
		tool:      shared.ToolDraw,
		seekIndex: -1,
	}
	c.publish()
	return c, nil
}

// BindSender sets the outbound channel. It must be called before Run; the
// session that implements Sender is usually built with the controller as
// its handler, hence the late binding.
func (c *Controller) BindSender(sender Sender) {
	c.sender = sender
}

// Init loads the persisted session. It must be called before Run.
func (c *Controller) Init(ctx context.Context) {
	c.load(ctx)
	c.publish()
}

// Reload discards the live session and loads the persisted one again. A
// connected trainer receives the reloaded config and points.
func (c *Controller) Reload(ctx context.Context) error {
	return c.call(func() error {
		if c.training {
			c.send(protocol.StopTraining{})
		}
		c.discardInFlight()
		c.load(ctx)
		c.seekIndex = -1
		if c.connected {
			c.pushState()
			c.trainingStatus()
		}
		return nil
	})
}

func (c *Controller) load(ctx context.Context) {
	snap := c.store.Load(ctx)

	c.cfg = snap.Config
	c.weights = snap.Weights
	c.points = snap.Points
	c.metrics = shared.TrainingMetrics{}
	c.training = false
	c.stepInFlight = false
	c.history.Reset()
	c.history.SetTraining(false)
	c.raster.Clear()
	c.mapSeq = 0

	c.logger.Info("session loaded",
		"architecture", shared.FormatArchitecture(c.cfg.Architecture),
		"points", len(c.points),
		"model", !shared.IsNullWeights(c.weights))
}

// Run processes posted work until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("controller already running")
	}
	defer c.doneOnce.Do(func() { close(c.done) })

	c.logger.Debug("event loop started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("event loop stopped")
			return nil
		case fn := <-c.queue:
			c.apply(fn)
		}
	}
}

func (c *Controller) apply(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked", "panic", fmt.Sprint(r))
		}
		c.publish()
	}()
	fn()
}

// Teardown releases the rasterizer and the store. Safe to call more than once.
func (c *Controller) Teardown() error {
	var err error
	c.teardown.Do(func() {
		c.doneOnce.Do(func() { close(c.done) })
		c.raster.Close()
		err = c.store.Close()
	})
	return err
}

// post queues fn for the event loop.
func (c *Controller) post(fn func()) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	select {
	case <-c.done:
		return ErrStopped
	case c.queue <- fn:
		return nil
	}
}

// call runs fn on the event loop and waits for its result.
func (c *Controller) call(fn func() error) error {
	result := make(chan error, 1)
	if err := c.post(func() { result <- fn() }); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-c.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// View returns the latest published view.
func (c *Controller) View() View {
	return *c.view.Load()
}

// Scene returns what the render loop should draw next.
func (c *Controller) Scene() render.Scene {
	v := c.view.Load()
	scene := render.Scene{
		Points:      v.Points,
		Tool:        v.Tool,
		Cursor:      v.Cursor,
		EraseRadius: c.editor.EraseRadius(),
	}
	if img := c.raster.Current(); img != nil {
		scene.Bitmap = image.Image(img)
	}
	return scene
}

// publish stores a fresh view. Called on the loop goroutine, or before Run.
func (c *Controller) publish() {
	c.version++
	v := &View{
		Status:             c.status,
		Connected:          c.connected,
		Training:           c.training,
		StepInFlight:       c.stepInFlight,
		HasModel:           !shared.IsNullWeights(c.weights),
		Config:             c.cfg.Clone(),
		Metrics:            c.metrics,
		Points:             shared.ClonePoints(c.points),
		Tool:               c.tool,
		Class:              c.class,
		Server:             c.server,
		HistoryLen:         c.history.Len(),
		HistoryInterval:    c.history.Interval(),
		HistoryCompactions: c.history.Compactions(),
		MapSeq:             c.mapSeq,
		SeekIndex:          c.seekIndex,
		Version:            c.version,
	}
	if c.cursor != nil {
		cursor := *c.cursor
		v.Cursor = &cursor
	}
	c.view.Store(v)
}

// ============================================================================
// Loop helpers
// ============================================================================

func (c *Controller) setStatus(text shared.StatusText, detail string) {
	next := shared.Status{Text: text, Detail: detail}
	if next == c.status {
		return
	}
	c.status = next
	if c.bus != nil {
		c.bus.EmitStatusChanged(next)
	}
}

func (c *Controller) trainingStatus() {
	if c.training {
		c.setStatus(shared.StatusTraining, "")
	} else {
		c.setStatus(shared.StatusIdle, "")
	}
}

// send writes msg if a sender is bound and reports whether it went out.
func (c *Controller) send(msg protocol.Outbound) bool {
	if c.sender == nil {
		c.logger.Debug("no channel bound, dropping message", "type", msg.OutboundType())
		return false
	}
	if err := c.sender.Send(msg); err != nil {
		c.logger.Debug("message not sent", "type", msg.OutboundType(), "error", err)
		return false
	}
	return true
}

// requestStep sends the next step request if training, connected, idle and
// there is data to train on.
func (c *Controller) requestStep() {
	if !c.training || !c.connected || c.stepInFlight {
		return
	}
	if len(c.points) == 0 {
		c.logger.Debug("no points to train on, waiting")
		return
	}

	ok := c.send(protocol.TrainStep{
		Config: c.cfg.Clone(),
		Model:  c.weights,
		Data:   shared.ClonePoints(c.points),
	})
	if ok {
		c.stepInFlight = true
		c.mapsOwed++
	}
}

// discardInFlight marks every answer still owed by the trainer as stale. A
// step result and its map may arrive in either order, so both are counted
// here rather than one from the other.
func (c *Controller) discardInFlight() {
	if c.stepInFlight {
		c.staleSteps++
		c.stepInFlight = false
	}
	c.staleMaps = c.mapsOwed
}

// pushState sends the full configuration followed by the full point set.
func (c *Controller) pushState() {
	c.send(protocol.UpdateConfig{Config: c.cfg.Clone()})
	c.send(protocol.UpdateData{Points: shared.ClonePoints(c.points)})
}

func (c *Controller) setPoints(points []shared.Point) {
	c.points = points
	c.store.SaveData(context.Background(), c.points)
	c.send(protocol.UpdateData{Points: shared.ClonePoints(c.points)})
	if c.bus != nil {
		c.bus.EmitPointsChanged(len(c.points))
	}
	c.requestStep()
}

// resetModel discards the model and everything derived from it.
func (c *Controller) resetModel() {
	if c.training {
		c.training = false
		c.history.SetTraining(false)
		c.send(protocol.StopTraining{})
	}
	c.discardInFlight()

	c.weights = nil
	c.store.SaveWeights(context.Background(), nil)
	c.metrics = shared.TrainingMetrics{}
	c.raster.Clear()
	c.mapSeq = 0
	c.history.Reset()
	c.seekIndex = -1

	c.send(protocol.Reset{})
	c.setStatus(shared.StatusModelReset, "")
	if c.bus != nil {
		c.bus.EmitMetricsUpdated(c.metrics)
	}
	c.logger.Info("model reset", "architecture", shared.FormatArchitecture(c.cfg.Architecture))
}
