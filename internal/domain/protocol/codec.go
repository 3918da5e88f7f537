package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/nnvisu/nnvisu-go/internal/shared"
)

// emptyModel is sent in place of a model before the first step, matching what
// the trainer expects for a freshly initialized network.
var emptyModel = json.RawMessage(`{"weights":[],"biases":[]}`)

type updateConfigWire struct {
	Type   string        `json:"type"`
	Config shared.Config `json:"config"`
}

type updateDataWire struct {
	Type string         `json:"type"`
	Data []shared.Point `json:"data"`
}

type bareWire struct {
	Type string `json:"type"`
}

type generateDataWire struct {
	Type         string `json:"type"`
	Distribution string `json:"distribution"`
	NumClasses   int    `json:"num_classes"`
}

type trainStepWire struct {
	Type   string          `json:"type"`
	Config shared.Config   `json:"config"`
	Model  json.RawMessage `json:"model"`
	Data   []shared.Point  `json:"data"`
}

// Encode serializes an outbound message as a JSON text frame.
func Encode(msg Outbound) ([]byte, error) {
	var wire interface{}

	switch m := msg.(type) {
	case UpdateConfig:
		wire = updateConfigWire{Type: TypeUpdateConfig, Config: m.Config}
	case UpdateData:
		wire = updateDataWire{Type: TypeUpdateData, Data: shared.ClonePoints(m.Points)}
	case StartTraining, StopTraining, Reset:
		wire = bareWire{Type: m.OutboundType()}
	case GenerateData:
		wire = generateDataWire{Type: TypeGenerateData, Distribution: string(m.Distribution), NumClasses: m.NumClasses}
	case TrainStep:
		model := json.RawMessage(m.Model)
		if shared.IsNullWeights(m.Model) {
			model = emptyModel
		}
		wire = trainStepWire{Type: TypeTrainStep, Config: m.Config, Model: model, Data: shared.ClonePoints(m.Data)}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownOutbound, msg)
	}

	return json.Marshal(wire)
}

type stepResultWire struct {
	Model   json.RawMessage `json:"model"`
	Metrics *struct {
		Epoch    *int    `json:"epoch"`
		Step     *int    `json:"step"`
		Loss     float64 `json:"loss"`
		Accuracy float64 `json:"accuracy"`
	} `json:"metrics"`
}

type mapUpdateWire struct {
	Payload *MapPayload `json:"payload"`
	MapPayload
}

type dataGeneratedWire struct {
	Data []shared.Point `json:"data"`
}

type errorWire struct {
	Message string `json:"message"`
}

// DecodeText parses a JSON text frame into an inbound message. Only frames
// that are not JSON objects or carry a malformed body for a known tag fail;
// unknown tags yield Unknown.
func DecodeText(data []byte) (Inbound, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch head.Type {
	case TypeStepResult:
		var wire stepResultWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("%w: step_result: %v", ErrMalformedFrame, err)
		}
		result := StepResult{}
		if !shared.IsNullWeights(shared.ModelWeights(wire.Model)) {
			result.Model = shared.ModelWeights(wire.Model)
		}
		if wire.Metrics != nil {
			epoch := wire.Metrics.Epoch
			if epoch == nil {
				epoch = wire.Metrics.Step
			}
			result.Metrics = &Metrics{Epoch: epoch, Loss: wire.Metrics.Loss, Accuracy: wire.Metrics.Accuracy}
		}
		return result, nil

	case TypeMapUpdate:
		var wire mapUpdateWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("%w: map_update: %v", ErrMalformedFrame, err)
		}
		if wire.Payload != nil {
			return MapUpdate{Payload: *wire.Payload}, nil
		}
		return MapUpdate{Payload: wire.MapPayload}, nil

	case TypeDataGenerated:
		var wire dataGeneratedWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("%w: data_generated: %v", ErrMalformedFrame, err)
		}
		return DataGenerated{Points: shared.ClonePoints(wire.Data)}, nil

	case TypeConfig:
		var info shared.ServerInfo
		if err := json.Unmarshal(data, &info); err != nil {
			return nil, fmt.Errorf("%w: config: %v", ErrMalformedFrame, err)
		}
		return ServerConfig{Info: info}, nil

	case TypeError:
		var wire errorWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("%w: error: %v", ErrMalformedFrame, err)
		}
		return ErrorMessage{Message: wire.Message}, nil
	}

	return Unknown{Type: head.Type}, nil
}

// DecodeBinary dispatches a binary frame on its leading tag byte. Pixel data
// is not inspected here.
func DecodeBinary(data []byte) (Inbound, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	switch data[0] {
	case BinaryTagMapUpdate:
		frame := make([]byte, len(data))
		copy(frame, data)
		return BinaryMap{Frame: frame}, nil
	}

	return Unknown{Type: fmt.Sprintf("binary:0x%02x", data[0])}, nil
}
