// Package shared provides shared types used across all modules in nnvisu-go.
package shared

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Point Types
// ============================================================================

// Point is a labeled sample in the normalized [-1,1]x[-1,1] input space.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label int     `json:"label"`
}

// ClonePoints returns an independent copy of a point set. A nil input yields an
// empty, non-nil slice so it always encodes as a JSON array.
func ClonePoints(points []Point) []Point {
	out := make([]Point, len(points))
	copy(out, points)
	return out
}

// Vec is a position in normalized coordinates.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ============================================================================
// Configuration Types
// ============================================================================

// Activation is the hidden layer activation function.
type Activation string

const (
	ActivationTanh      Activation = "tanh"
	ActivationReLU      Activation = "relu"
	ActivationLeakyReLU Activation = "leaky_relu"
	ActivationGELU      Activation = "gelu"
)

// Valid reports whether the activation is known to the trainer.
func (a Activation) Valid() bool {
	switch a {
	case ActivationTanh, ActivationReLU, ActivationLeakyReLU, ActivationGELU:
		return true
	}
	return false
}

// Optimizer is the optimizer the trainer uses for a step.
type Optimizer string

const (
	OptimizerSGD     Optimizer = "sgd"
	OptimizerAdam    Optimizer = "adam"
	OptimizerRMSProp Optimizer = "rmsprop"
)

// Valid reports whether the optimizer is known to the trainer.
func (o Optimizer) Valid() bool {
	switch o {
	case OptimizerSGD, OptimizerAdam, OptimizerRMSProp:
		return true
	}
	return false
}

// Config is the model and training configuration. The client holds the single
// authoritative copy.
type Config struct {
	Architecture   []int      `json:"architecture"`
	Activation     Activation `json:"activation"`
	Optimizer      Optimizer  `json:"optimizer"`
	LearningRate   float64    `json:"learningRate"`
	Regularization float64    `json:"regularization"`
	BatchSize      int        `json:"batchSize"`
	Dropout        float64    `json:"dropout"`
}

// DefaultConfig returns the configuration used when nothing was persisted.
func DefaultConfig() Config {
	return Config{
		Architecture:   []int{10, 5},
		Activation:     ActivationTanh,
		Optimizer:      OptimizerAdam,
		LearningRate:   0.01,
		Regularization: 0,
		BatchSize:      0,
		Dropout:        0,
	}
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	out := c
	out.Architecture = append([]int(nil), c.Architecture...)
	return out
}

// Validate checks every field invariant.
func (c Config) Validate() error {
	if len(c.Architecture) == 0 {
		return NewValidationError("architecture must have at least one layer", nil)
	}
	for i, width := range c.Architecture {
		if width <= 0 {
			return NewValidationError("layer width must be positive", map[string]interface{}{
				"layer": i,
				"width": width,
			})
		}
	}
	if !c.Activation.Valid() {
		return NewValidationError("unknown activation", map[string]interface{}{"activation": string(c.Activation)})
	}
	if !c.Optimizer.Valid() {
		return NewValidationError("unknown optimizer", map[string]interface{}{"optimizer": string(c.Optimizer)})
	}
	if !(c.LearningRate > 0) {
		return NewValidationError("learning rate must be positive", map[string]interface{}{"learningRate": c.LearningRate})
	}
	if !(c.Regularization >= 0) {
		return NewValidationError("regularization must not be negative", map[string]interface{}{"regularization": c.Regularization})
	}
	if c.BatchSize < 0 {
		return NewValidationError("batch size must not be negative", map[string]interface{}{"batchSize": c.BatchSize})
	}
	if !(c.Dropout >= 0 && c.Dropout <= 1) {
		return NewValidationError("dropout must be within [0,1]", map[string]interface{}{"dropout": c.Dropout})
	}
	return nil
}

var architecturePattern = regexp.MustCompile(`^\d+(-\d+)*$`)

// ParseArchitecture parses a hyphen separated list of hidden layer widths such
// as "10-5".
func ParseArchitecture(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if !architecturePattern.MatchString(s) {
		return nil, NewValidationError("invalid architecture format, use numbers separated by hyphens (e.g. 10-5)",
			map[string]interface{}{"architecture": s})
	}

	parts := strings.Split(s, "-")
	widths := make([]int, 0, len(parts))
	for _, part := range parts {
		width, err := strconv.Atoi(part)
		if err != nil {
			return nil, NewValidationError("layer width out of range", map[string]interface{}{"layer": part})
		}
		if width <= 0 {
			return nil, NewValidationError("layer width must be positive", map[string]interface{}{"layer": part})
		}
		widths = append(widths, width)
	}
	return widths, nil
}

// FormatArchitecture renders widths the way ParseArchitecture accepts them.
func FormatArchitecture(widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strconv.Itoa(w)
	}
	return strings.Join(parts, "-")
}

// ============================================================================
// Model Types
// ============================================================================

// ModelWeights is the trainer-owned model state. The client never looks inside,
// it only stores it and sends it back with the next step request.
type ModelWeights = json.RawMessage

// IsNullWeights reports whether w carries no model.
func IsNullWeights(w ModelWeights) bool {
	trimmed := strings.TrimSpace(string(w))
	return trimmed == "" || trimmed == "null"
}

// TrainingMetrics is the latest epoch/loss pair reported by the trainer.
type TrainingMetrics struct {
	Epoch    int     `json:"epoch"`
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

// DecisionBitmap is a decoded decision-boundary raster. Pix holds RGBA bytes in
// row-major order, one pixel per grid cell.
type DecisionBitmap struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Pix    []uint8 `json:"-"`
}

// PixelAt returns the RGBA bytes at (x, y).
func (b DecisionBitmap) PixelAt(x, y int) [4]uint8 {
	var px [4]uint8
	offset := (y*b.Width + x) * 4
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height || offset+4 > len(b.Pix) {
		return px
	}
	copy(px[:], b.Pix[offset:offset+4])
	return px
}

// ============================================================================
// Session Types
// ============================================================================

// Tool is the active pointer tool.
type Tool string

const (
	ToolDraw  Tool = "draw"
	ToolErase Tool = "erase"
)

// Valid reports whether the tool is known.
func (t Tool) Valid() bool {
	return t == ToolDraw || t == ToolErase
}

// StatusText is the user-facing session state.
type StatusText string

const (
	StatusConnected    StatusText = "Connected"
	StatusDisconnected StatusText = "Disconnected"
	StatusTraining     StatusText = "Training..."
	StatusIdle         StatusText = "Idle"
	StatusModelReset   StatusText = "Model Reset"
	StatusError        StatusText = "Error"
)

// Status is the status line: a state plus optional detail (trainer error text).
type Status struct {
	Text   StatusText `json:"text"`
	Detail string     `json:"detail,omitempty"`
}

// String renders the status as shown to the user.
func (s Status) String() string {
	if s.Detail == "" {
		return "Status: " + string(s.Text)
	}
	return fmt.Sprintf("Status: %s (%s)", s.Text, s.Detail)
}

// ServerInfo is the informational handshake sent by the trainer.
type ServerInfo struct {
	Version string `json:"version"`
	Author  string `json:"author"`
}

// ============================================================================
// Event Types
// ============================================================================

// EventType represents the type of an event.
type EventType string

const (
	EventStatusChanged   EventType = "session:status"
	EventMetricsUpdated  EventType = "session:metrics"
	EventPointsChanged   EventType = "session:points"
	EventConfigChanged   EventType = "session:config"
	EventSnapshotStored  EventType = "history:snapshot"
	EventHistoryCompact  EventType = "history:compacted"
	EventConnectionOpen  EventType = "transport:open"
	EventConnectionClose EventType = "transport:closed"
)

// Event represents a system event.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// ============================================================================
// Error Types
// ============================================================================

// NNVisuError is the base error type for all nnvisu errors.
type NNVisuError struct {
	Message string
	Code    string
	Details map[string]interface{}
}

func (e *NNVisuError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNNVisuError creates a new NNVisuError.
func NewNNVisuError(message, code string, details map[string]interface{}) *NNVisuError {
	return &NNVisuError{
		Message: message,
		Code:    code,
		Details: details,
	}
}

// ValidationError is returned when a user edit is rejected.
type ValidationError struct {
	NNVisuError
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string, details map[string]interface{}) *ValidationError {
	return &ValidationError{
		NNVisuError: NNVisuError{
			Message: message,
			Code:    "VALIDATION_ERROR",
			Details: details,
		},
	}
}

// ProtocolError represents a malformed or unexpected wire message.
type ProtocolError struct {
	NNVisuError
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(message string, details map[string]interface{}) *ProtocolError {
	return &ProtocolError{
		NNVisuError: NNVisuError{
			Message: message,
			Code:    "PROTOCOL_ERROR",
			Details: details,
		},
	}
}

// PersistenceError represents a storage backend failure.
type PersistenceError struct {
	NNVisuError
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(message string, details map[string]interface{}) *PersistenceError {
	return &PersistenceError{
		NNVisuError: NNVisuError{
			Message: message,
			Code:    "PERSISTENCE_ERROR",
			Details: details,
		},
	}
}

// ============================================================================
// Utility Functions
// ============================================================================

// Now returns the current time in milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// GenerateID returns a prefixed random identifier.
func GenerateID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
