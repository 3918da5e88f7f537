package controller

import (
	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// ConfigPatch is a partial configuration edit. Nil fields are left as is.
// Architecture uses the hyphenated text form, e.g. "10-5".
type ConfigPatch struct {
	Architecture   *string            `json:"architecture,omitempty"`
	Activation     *shared.Activation `json:"activation,omitempty"`
	Optimizer      *shared.Optimizer  `json:"optimizer,omitempty"`
	LearningRate   *float64           `json:"learningRate,omitempty"`
	Regularization *float64           `json:"regularization,omitempty"`
	BatchSize      *int               `json:"batchSize,omitempty"`
	Dropout        *float64           `json:"dropout,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ConfigPatch) Empty() bool {
	return p.Architecture == nil && p.Activation == nil && p.Optimizer == nil &&
		p.LearningRate == nil && p.Regularization == nil && p.BatchSize == nil && p.Dropout == nil
}

// Apply returns cfg with the patch applied. The result is validated as a
// whole; on error cfg is returned unchanged.
func (p ConfigPatch) Apply(cfg shared.Config) (shared.Config, error) {
	next := cfg.Clone()

	if p.Architecture != nil {
		widths, err := shared.ParseArchitecture(*p.Architecture)
		if err != nil {
			return cfg, err
		}
		next.Architecture = widths
	}
	if p.Activation != nil {
		next.Activation = *p.Activation
	}
	if p.Optimizer != nil {
		next.Optimizer = *p.Optimizer
	}
	if p.LearningRate != nil {
		next.LearningRate = *p.LearningRate
	}
	if p.Regularization != nil {
		next.Regularization = *p.Regularization
	}
	if p.BatchSize != nil {
		next.BatchSize = *p.BatchSize
	}
	if p.Dropout != nil {
		next.Dropout = *p.Dropout
	}

	if err := next.Validate(); err != nil {
		return cfg, err
	}
	return next, nil
}

// requiresReset reports whether moving from prev to next invalidates the
// trained weights.
func requiresReset(prev, next shared.Config) bool {
	if prev.Activation != next.Activation {
		return true
	}
	if len(prev.Architecture) != len(next.Architecture) {
		return true
	}
	for i := range prev.Architecture {
		if prev.Architecture[i] != next.Architecture[i] {
			return true
		}
	}
	return false
}
