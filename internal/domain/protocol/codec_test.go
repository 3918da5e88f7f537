package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nnvisu/nnvisu-go/internal/shared"
)

func decodeJSON(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("expected JSON output, got %v (%s)", err, data)
	}
	return out
}

func TestEncodeTagsEveryOutboundKind(t *testing.T) {
	tests := []struct {
		msg  Outbound
		want string
	}{
		{UpdateConfig{Config: shared.DefaultConfig()}, TypeUpdateConfig},
		{UpdateData{Points: []shared.Point{{X: 0.5, Y: -0.5, Label: 1}}}, TypeUpdateData},
		{StartTraining{}, TypeStartTraining},
		{StopTraining{}, TypeStopTraining},
		{Reset{}, TypeReset},
		{GenerateData{Distribution: DistributionMoons, NumClasses: 3}, TypeGenerateData},
		{TrainStep{Config: shared.DefaultConfig()}, TypeTrainStep},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			data, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode(%T) failed: %v", tt.msg, err)
			}
			if got := decodeJSON(t, data)["type"]; got != tt.want {
				t.Fatalf("expected type %q, got %v", tt.want, got)
			}
		})
	}
}

func TestEncodeGenerateDataUsesSnakeCaseClassCount(t *testing.T) {
	data, err := Encode(GenerateData{Distribution: DistributionCircles, NumClasses: 4})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	body := decodeJSON(t, data)
	if body["distribution"] != "circles" {
		t.Fatalf("expected distribution circles, got %v", body["distribution"])
	}
	if body["num_classes"] != float64(4) {
		t.Fatalf("expected num_classes 4, got %v", body["num_classes"])
	}
}

func TestEncodeTrainStepSubstitutesEmptyModel(t *testing.T) {
	data, err := Encode(TrainStep{Config: shared.DefaultConfig(), Data: nil})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	body := decodeJSON(t, data)

	model, ok := body["model"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected model object, got %T", body["model"])
	}
	if _, ok := model["weights"]; !ok {
		t.Fatalf("expected empty weights list in placeholder model, got %v", model)
	}
	if points, ok := body["data"].([]interface{}); !ok || len(points) != 0 {
		t.Fatalf("expected empty data array, got %v", body["data"])
	}
}

func TestEncodeTrainStepForwardsWeightsVerbatim(t *testing.T) {
	weights := shared.ModelWeights(`{"weights":[[[0.25]]],"biases":[[0.5]],"opaque":"kept"}`)
	data, err := Encode(TrainStep{Config: shared.DefaultConfig(), Model: weights})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var wire struct {
		Model json.RawMessage `json:"model"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(wire.Model) != string(weights) {
		t.Fatalf("expected weights forwarded verbatim, got %s", wire.Model)
	}
}

func TestDecodeTextStepResult(t *testing.T) {
	msg, err := DecodeText([]byte(`{"type":"step_result","model":{"w":[1]},"metrics":{"loss":0.25,"accuracy":0.5}}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	result, ok := msg.(StepResult)
	if !ok {
		t.Fatalf("expected StepResult, got %T", msg)
	}
	if string(result.Model) != `{"w":[1]}` {
		t.Fatalf("expected raw model, got %s", result.Model)
	}
	if result.Metrics == nil || result.Metrics.Loss != 0.25 || result.Metrics.Accuracy != 0.5 {
		t.Fatalf("unexpected metrics %+v", result.Metrics)
	}
	if result.Metrics.Epoch != nil {
		t.Fatalf("expected no trainer epoch, got %d", *result.Metrics.Epoch)
	}
}

func TestDecodeTextStepResultEpochAndStepAlias(t *testing.T) {
	for _, body := range []string{
		`{"type":"step_result","metrics":{"epoch":42,"loss":1}}`,
		`{"type":"step_result","metrics":{"step":42,"loss":1}}`,
	} {
		msg, err := DecodeText([]byte(body))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		result := msg.(StepResult)
		if result.Metrics == nil || result.Metrics.Epoch == nil || *result.Metrics.Epoch != 42 {
			t.Fatalf("expected epoch 42 from %s, got %+v", body, result.Metrics)
		}
		if result.Model != nil {
			t.Fatalf("expected nil model when absent, got %s", result.Model)
		}
	}
}

func TestDecodeTextMapUpdateFlatAndNested(t *testing.T) {
	flat := `{"type":"map_update","width":2,"height":1,"format":"rgb","data":"AAAA"}`
	nested := `{"type":"map_update","payload":{"width":2,"height":1,"format":"rgb","data":"AAAA"}}`

	for _, body := range []string{flat, nested} {
		msg, err := DecodeText([]byte(body))
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		update, ok := msg.(MapUpdate)
		if !ok {
			t.Fatalf("expected MapUpdate, got %T", msg)
		}
		want := MapPayload{Width: 2, Height: 1, Format: "rgb", Data: "AAAA"}
		if update.Payload != want {
			t.Fatalf("expected %+v, got %+v", want, update.Payload)
		}
	}
}

func TestDecodeTextOtherKinds(t *testing.T) {
	msg, err := DecodeText([]byte(`{"type":"data_generated","data":[{"x":0.1,"y":0.2,"label":2}]}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	generated, ok := msg.(DataGenerated)
	if !ok || len(generated.Points) != 1 || generated.Points[0].Label != 2 {
		t.Fatalf("unexpected data_generated result %#v", msg)
	}

	msg, err = DecodeText([]byte(`{"type":"config","version":"1.2","author":"trainer"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if cfg, ok := msg.(ServerConfig); !ok || cfg.Info.Version != "1.2" || cfg.Info.Author != "trainer" {
		t.Fatalf("unexpected config result %#v", msg)
	}

	msg, err = DecodeText([]byte(`{"type":"error","message":"boom"}`))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if e, ok := msg.(ErrorMessage); !ok || e.Message != "boom" {
		t.Fatalf("unexpected error result %#v", msg)
	}
}

func TestDecodeTextUnknownTagIsNotAnError(t *testing.T) {
	msg, err := DecodeText([]byte(`{"type":"telemetry","cpu":3}`))
	if err != nil {
		t.Fatalf("expected unknown tag to decode, got %v", err)
	}
	unknown, ok := msg.(Unknown)
	if !ok || unknown.Type != "telemetry" {
		t.Fatalf("expected Unknown{telemetry}, got %#v", msg)
	}
}

func TestDecodeTextRejectsNonJSON(t *testing.T) {
	if _, err := DecodeText([]byte("not json")); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("expected ErrMalformedFrame, got %v", err)
	}
	if _, err := DecodeText(nil); !errors.Is(err, ErrEmptyFrame) {
		t.Fatalf("expected ErrEmptyFrame, got %v", err)
	}
}

func TestDecodeBinaryDispatchesOnTag(t *testing.T) {
	frame := []byte{0x01, 1, 0, 1, 0, 9, 9, 9}
	msg, err := DecodeBinary(frame)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	binary, ok := msg.(BinaryMap)
	if !ok {
		t.Fatalf("expected BinaryMap, got %T", msg)
	}
	frame[5] = 0
	if binary.Frame[5] != 9 {
		t.Fatal("expected decoded frame to own its bytes")
	}

	msg, err = DecodeBinary([]byte{0x7f, 0})
	if err != nil {
		t.Fatalf("expected unknown binary tag to decode, got %v", err)
	}
	if _, ok := msg.(Unknown); !ok {
		t.Fatalf("expected Unknown for tag 0x7f, got %T", msg)
	}
}

func TestGenerateDataValidate(t *testing.T) {
	if err := (GenerateData{Distribution: DistributionBlobs, NumClasses: 3}).Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	if err := (GenerateData{Distribution: "spiral", NumClasses: 3}).Validate(); !errors.Is(err, ErrInvalidDistribution) {
		t.Fatalf("expected ErrInvalidDistribution, got %v", err)
	}
	if err := (GenerateData{Distribution: DistributionMoons, NumClasses: 9}).Validate(); !errors.Is(err, ErrInvalidClassCount) {
		t.Fatalf("expected ErrInvalidClassCount, got %v", err)
	}
}
