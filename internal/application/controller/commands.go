package controller

import (
	"context"

	"github.com/nnvisu/nnvisu-go/internal/domain/protocol"
	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// SetConfig validates and applies a configuration edit. An invalid patch
// returns a *shared.ValidationError and changes nothing. Changing the
// architecture or activation resets the model.
func (c *Controller) SetConfig(patch ConfigPatch) error {
	return c.call(func() error {
		next, err := patch.Apply(c.cfg)
		if err != nil {
			c.logger.Debug("config rejected", "error", err)
			return err
		}
		if patch.Empty() {
			return nil
		}

		reset := requiresReset(c.cfg, next)
		c.cfg = next
		c.store.SaveConfig(context.Background(), c.cfg)
		c.send(protocol.UpdateConfig{Config: c.cfg.Clone()})
		if c.bus != nil {
			c.bus.EmitConfigChanged(c.cfg, reset)
		}

		if reset {
			c.resetModel()
		}
		return nil
	})
}

// ResetModel discards the trained weights and stops training.
func (c *Controller) ResetModel() error {
	return c.call(func() error {
		c.resetModel()
		return nil
	})
}

// StartTraining starts the step loop. Starting twice is a no-op.
func (c *Controller) StartTraining() error {
	return c.call(func() error {
		c.startTraining()
		return nil
	})
}

// StopTraining stops the step loop after the in-flight step returns.
func (c *Controller) StopTraining() error {
	return c.call(func() error {
		c.stopTraining()
		return nil
	})
}

// ToggleTraining starts or stops the step loop.
func (c *Controller) ToggleTraining() error {
	return c.call(func() error {
		if c.training {
			c.stopTraining()
		} else {
			c.startTraining()
		}
		return nil
	})
}

func (c *Controller) startTraining() {
	if c.training {
		return
	}
	c.training = true
	c.history.SetTraining(true)
	c.seekIndex = -1
	c.send(protocol.StartTraining{})
	c.trainingStatus()
	c.requestStep()
}

func (c *Controller) stopTraining() {
	if !c.training {
		return
	}
	c.training = false
	c.history.SetTraining(false)
	c.send(protocol.StopTraining{})
	c.trainingStatus()
}

// SetTool selects the pointer tool.
func (c *Controller) SetTool(tool shared.Tool) error {
	if !tool.Valid() {
		return shared.NewValidationError("unknown tool", map[string]interface{}{"tool": string(tool)})
	}
	return c.call(func() error {
		c.tool = tool
		return nil
	})
}

// SetClass selects the label for drawn points.
func (c *Controller) SetClass(class int) error {
	if class < 0 || class >= protocol.MaxClasses {
		return shared.NewValidationError("class out of range", map[string]interface{}{
			"class": class,
			"max":   protocol.MaxClasses - 1,
		})
	}
	return c.call(func() error {
		c.class = class
		return nil
	})
}

// PointerDown applies the active tool at pixel (px, py).
func (c *Controller) PointerDown(px, py float64) error {
	return c.call(func() error {
		c.trackCursor(px, py)

		next, applied := c.editor.Apply(c.points, c.tool, c.class, px, py)
		if !applied {
			return nil
		}
		if c.tool == shared.ToolErase && len(next) == len(c.points) {
			return nil
		}
		c.setPoints(next)
		return nil
	})
}

// PointerMove tracks the pointer for the erase cursor.
func (c *Controller) PointerMove(px, py float64) error {
	return c.call(func() error {
		c.trackCursor(px, py)
		return nil
	})
}

func (c *Controller) trackCursor(px, py float64) {
	surface := c.editor.Surface()
	if !surface.Contains(px, py) {
		c.cursor = nil
		return
	}
	pos := surface.Normalize(px, py)
	c.cursor = &pos
}

// ClearPoints removes every point and the displayed decision map.
func (c *Controller) ClearPoints() error {
	return c.call(func() error {
		c.raster.Clear()
		c.seekIndex = -1
		c.setPoints([]shared.Point{})
		return nil
	})
}

// GenerateData asks the trainer for a synthetic point set. The reply
// replaces the current points.
func (c *Controller) GenerateData(distribution protocol.Distribution, numClasses int) error {
	req := protocol.GenerateData{Distribution: distribution, NumClasses: numClasses}
	if err := req.Validate(); err != nil {
		return shared.NewValidationError(err.Error(), map[string]interface{}{
			"distribution": string(distribution),
			"numClasses":   numClasses,
		})
	}
	return c.call(func() error {
		if !c.connected {
			return shared.NewProtocolError("not connected to trainer", nil)
		}
		c.send(req)
		return nil
	})
}

// Seek displays the recorded snapshot at index. Only allowed while idle.
func (c *Controller) Seek(index int) error {
	return c.call(func() error {
		snap, err := c.history.Seek(index)
		if err != nil {
			return err
		}
		c.seekIndex = index
		c.raster.Submit(snap.Bitmap)
		c.logger.Debug("showing history snapshot", "index", index, "epoch", snap.Epoch)
		return nil
	})
}
