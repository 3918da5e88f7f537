package protocol

import (
	"fmt"

	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// Message type tags.
const (
	TypeUpdateConfig  = "update_config"
	TypeUpdateData    = "update_data"
	TypeStartTraining = "start_training"
	TypeStopTraining  = "stop_training"
	TypeReset         = "reset"
	TypeGenerateData  = "generate_data"
	TypeTrainStep     = "train_step"

	TypeStepResult    = "step_result"
	TypeMapUpdate     = "map_update"
	TypeDataGenerated = "data_generated"
	TypeConfig        = "config"
	TypeError         = "error"
)

// BinaryTagMapUpdate is the first byte of a binary decision-map frame.
const BinaryTagMapUpdate byte = 0x01

// Class count bounds for generated datasets; the upper bound is the palette size.
const (
	MinClasses = 2
	MaxClasses = 8
)

// Distribution names a synthetic dataset shape the trainer can generate.
type Distribution string

const (
	DistributionCircles        Distribution = "circles"
	DistributionMoons          Distribution = "moons"
	DistributionBlobs          Distribution = "blobs"
	DistributionAnisotropic    Distribution = "anisotropic"
	DistributionVariedVariance Distribution = "varied_variance"
)

// Valid reports whether the trainer knows the distribution.
func (d Distribution) Valid() bool {
	switch d {
	case DistributionCircles, DistributionMoons, DistributionBlobs, DistributionAnisotropic, DistributionVariedVariance:
		return true
	}
	return false
}

// ============================================================================
// Outbound Messages
// ============================================================================

// Outbound is a message sent to the trainer. The set of implementations is closed.
type Outbound interface {
	OutboundType() string
	isOutbound()
}

// UpdateConfig pushes the full configuration.
type UpdateConfig struct {
	Config shared.Config
}

// UpdateData pushes the full point set.
type UpdateData struct {
	Points []shared.Point
}

// StartTraining tells the trainer a run started.
type StartTraining struct{}

// StopTraining tells the trainer the run stopped.
type StopTraining struct{}

// Reset tells the trainer the model was discarded.
type Reset struct{}

// GenerateData asks the trainer for a synthetic point set.
type GenerateData struct {
	Distribution Distribution
	NumClasses   int
}

// Validate checks the request against the known distributions and palette size.
func (g GenerateData) Validate() error {
	if !g.Distribution.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDistribution, g.Distribution)
	}
	if g.NumClasses < MinClasses || g.NumClasses > MaxClasses {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidClassCount, g.NumClasses, MinClasses, MaxClasses)
	}
	return nil
}

// TrainStep requests one training step on the given model and data.
type TrainStep struct {
	Config shared.Config
	Model  shared.ModelWeights
	Data   []shared.Point
}

func (UpdateConfig) OutboundType() string  { return TypeUpdateConfig }
func (UpdateData) OutboundType() string    { return TypeUpdateData }
func (StartTraining) OutboundType() string { return TypeStartTraining }
func (StopTraining) OutboundType() string  { return TypeStopTraining }
func (Reset) OutboundType() string         { return TypeReset }
func (GenerateData) OutboundType() string  { return TypeGenerateData }
func (TrainStep) OutboundType() string     { return TypeTrainStep }

func (UpdateConfig) isOutbound()  {}
func (UpdateData) isOutbound()    {}
func (StartTraining) isOutbound() {}
func (StopTraining) isOutbound()  {}
func (Reset) isOutbound()         {}
func (GenerateData) isOutbound()  {}
func (TrainStep) isOutbound()     {}

// ============================================================================
// Inbound Messages
// ============================================================================

// Inbound is a message received from the trainer. The set of implementations
// is closed; Unknown carries tags this client does not understand.
type Inbound interface {
	InboundType() string
	isInbound()
}

// Metrics is the metrics block of a step result. Epoch is nil when the trainer
// does not number steps itself.
type Metrics struct {
	Epoch    *int
	Loss     float64
	Accuracy float64
}

// StepResult is the answer to a TrainStep.
type StepResult struct {
	Model   shared.ModelWeights
	Metrics *Metrics
}

// MapPayload is the text-framed decision map. Format is "rgb" or empty for the
// legacy one-class-index-per-pixel encoding.
type MapPayload struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format,omitempty"`
	Data   string `json:"data"`
}

// MapUpdate carries a text-framed decision map.
type MapUpdate struct {
	Payload MapPayload
}

// BinaryMap carries a raw binary decision-map frame, tag byte included.
type BinaryMap struct {
	Frame []byte
}

// DataGenerated carries a point set produced by the trainer.
type DataGenerated struct {
	Points []shared.Point
}

// ServerConfig is the informational trainer handshake.
type ServerConfig struct {
	Info shared.ServerInfo
}

// ErrorMessage is an error reported by the trainer.
type ErrorMessage struct {
	Message string
}

// Unknown is any message whose tag is not part of the vocabulary.
type Unknown struct {
	Type string
}

func (StepResult) InboundType() string    { return TypeStepResult }
func (MapUpdate) InboundType() string     { return TypeMapUpdate }
func (BinaryMap) InboundType() string     { return TypeMapUpdate }
func (DataGenerated) InboundType() string { return TypeDataGenerated }
func (ServerConfig) InboundType() string  { return TypeConfig }
func (ErrorMessage) InboundType() string  { return TypeError }
func (u Unknown) InboundType() string     { return u.Type }

func (StepResult) isInbound()    {}
func (MapUpdate) isInbound()     {}
func (BinaryMap) isInbound()     {}
func (DataGenerated) isInbound() {}
func (ServerConfig) isInbound()  {}
func (ErrorMessage) isInbound()  {}
func (Unknown) isInbound()       {}
