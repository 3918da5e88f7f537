package controller

import (
	"context"
	"errors"

	"github.com/nnvisu/nnvisu-go/internal/domain/protocol"
	"github.com/nnvisu/nnvisu-go/internal/infrastructure/bitmap"
	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// OnOpen implements transport.Handler.
func (c *Controller) OnOpen() {
	c.postEvent("open", func() {
		c.connected = true
		c.stepInFlight = false
		c.setStatus(shared.StatusConnected, "")
		if c.bus != nil {
			c.bus.EmitConnectionOpen(c.endpoint)
		}

		// The trainer keeps no state across connections.
		c.pushState()
		c.requestStep()
	})
}

// OnClose implements transport.Handler.
func (c *Controller) OnClose(err error) {
	c.postEvent("close", func() {
		c.connected = false
		c.stepInFlight = false
		c.mapsOwed = 0
		c.staleSteps = 0
		c.staleMaps = 0
		c.setStatus(shared.StatusDisconnected, "")
		if c.bus != nil {
			c.bus.EmitConnectionClosed(err)
		}
	})
}

// OnRasterized records that the decision map submitted as seq is now
// displayed. It is meant to be passed to bitmap.WithSwapHook.
func (c *Controller) OnRasterized(seq uint64) {
	c.postEvent("rasterized", func() {
		// Swaps from before a clear or out of order are not on screen.
		if c.raster.Current() == nil || seq <= c.mapSeq {
			return
		}
		c.mapSeq = seq
	})
}

// OnMessage implements transport.Handler.
func (c *Controller) OnMessage(msg protocol.Inbound) {
	c.postEvent(msg.InboundType(), func() {
		c.handleMessage(msg)
	})
}

func (c *Controller) postEvent(kind string, fn func()) {
	if err := c.post(fn); err != nil && !errors.Is(err, ErrStopped) {
		c.logger.Warn("failed to queue event", "event", kind, "error", err)
	}
}

func (c *Controller) handleMessage(msg protocol.Inbound) {
	switch m := msg.(type) {
	case protocol.StepResult:
		c.handleStepResult(m)
	case protocol.MapUpdate:
		c.handleMap(func() (shared.DecisionBitmap, error) { return bitmap.DecodeText(m.Payload) })
	case protocol.BinaryMap:
		c.handleMap(func() (shared.DecisionBitmap, error) { return bitmap.DecodeBinary(m.Frame) })
	case protocol.DataGenerated:
		c.logger.Info("received generated data", "points", len(m.Points))
		c.setPoints(shared.ClonePoints(m.Points))
	case protocol.ServerConfig:
		info := m.Info
		c.server = &info
		c.logger.Info("trainer identified", "version", info.Version, "author", info.Author)
	case protocol.ErrorMessage:
		c.logger.Error("trainer reported an error", "message", m.Message)
		if c.training {
			c.send(protocol.StopTraining{})
		}
		if c.stepInFlight && c.mapsOwed > 0 {
			// The failed step answers with neither result nor map.
			c.mapsOwed--
		}
		c.training = false
		c.stepInFlight = false
		c.history.SetTraining(false)
		c.setStatus(shared.StatusError, m.Message)
	case protocol.Unknown:
		c.logger.Debug("ignoring unknown message", "type", m.Type)
	}
}

func (c *Controller) handleStepResult(m protocol.StepResult) {
	if c.staleSteps > 0 {
		// Answer to a step sent before the last reset.
		c.staleSteps--
		c.logger.Debug("discarding step result from before reset")
		return
	}

	if m.Model != nil {
		c.weights = m.Model
		c.store.SaveWeights(context.Background(), c.weights)
	}

	if m.Metrics != nil && m.Metrics.Epoch != nil {
		c.metrics.Epoch = *m.Metrics.Epoch
	} else {
		c.metrics.Epoch++
	}
	if m.Metrics != nil {
		c.metrics.Loss = m.Metrics.Loss
		c.metrics.Accuracy = m.Metrics.Accuracy
	}
	if c.bus != nil {
		c.bus.EmitMetricsUpdated(c.metrics)
	}

	c.stepInFlight = false
	c.trainingStatus()
	c.requestStep()
}

func (c *Controller) handleMap(decode func() (shared.DecisionBitmap, error)) {
	if c.mapsOwed > 0 {
		c.mapsOwed--
	}
	if c.staleMaps > 0 {
		c.staleMaps--
		c.logger.Debug("discarding decision map from before reset")
		return
	}

	bm, err := decode()
	if err != nil {
		c.logger.Warn("dropping decision map", "error", err)
		return
	}

	if c.history.Record(bm, c.metrics.Epoch, c.metrics.Loss) && c.bus != nil {
		if snap, ok := c.history.Last(); ok {
			c.bus.EmitSnapshotStored(snap.ID, snap.Epoch, c.history.Len())
		}
	}
	c.seekIndex = -1
	c.raster.Submit(bm)
}
