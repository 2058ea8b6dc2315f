package engine

import (
	"context"
	"strings"
	"testing"

	"idgaf/internal/fault"
	"idgaf/pkg/types"
)

// visionAdapter serves onnx files as vision models with tensor ops.
type visionAdapter struct {
	fakeAdapter
}

func newVisionAdapter() *visionAdapter {
	a := &visionAdapter{}
	a.format = types.FormatONNX
	a.caps = types.AdapterCapabilities{}
	a.unloads = make(map[string]int)
	return a
}

func (a *visionAdapter) Format() types.ModelFormat { return types.FormatONNX }

func (a *visionAdapter) Modalities() []types.ModelType {
	return []types.ModelType{types.TypeVision}
}

func (a *visionAdapter) CanHandle(path string, _ *types.ModelInfo) bool {
	return strings.HasSuffix(path, ".onnx")
}

func (a *visionAdapter) Load(_ context.Context, _ string, _ types.LoadOptions) (*types.LoadedModel, error) {
	m := &types.LoadedModel{ID: types.NewModelID(types.FormatONNX), Adapter: a}
	m.Classify = func(_ context.Context, _ types.Tensor) ([]types.Classification, error) {
		return []types.Classification{{Label: "cat", Score: 0.9}}, nil
	}
	m.Run = func(_ context.Context, inputs map[string]types.Tensor) (map[string]types.Tensor, error) {
		return inputs, nil
	}
	m.MarkSupported(types.OpClassify, types.OpRun)
	return m, nil
}

func loadVisionModel(t *testing.T, e *Engine, dir string) *types.LoadedModel {
	t.Helper()
	e.RegisterAdapter(newVisionAdapter())
	path := writeModelFile(t, dir, "resnet.onnx", 64)
	m, err := e.LoadModel(context.Background(), path, types.LoadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestClassifyDispatch(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	loadVisionModel(t, e, dir)

	img := types.Tensor{Shape: []int64{1, 4}, Data: []float32{1, 2, 3, 4}}
	out, err := e.Classify(context.Background(), "", img)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if len(out) != 1 || out[0].Label != "cat" {
		t.Fatalf("classifications = %+v", out)
	}
}

func TestClassifyShapeMismatch(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	loadVisionModel(t, e, dir)

	bad := types.Tensor{Shape: []int64{1, 4}, Data: []float32{1, 2}}
	_, err := e.Classify(context.Background(), "", bad)
	if fault.KindOf(err) != fault.KindInvalidInput {
		t.Fatalf("kind = %v, want invalid input", fault.KindOf(err))
	}
}

func TestDetectUnsupported(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	m := loadVisionModel(t, e, dir)

	img := types.Tensor{Shape: []int64{1}, Data: []float32{0}}
	_, err := e.Detect(context.Background(), m.ID, img)
	if !fault.IsUnsupported(err) {
		t.Fatalf("kind = %v, want unsupported", fault.KindOf(err))
	}
	if !strings.Contains(err.Error(), "model does not support detect") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestRunFirstSupporting(t *testing.T) {
	e, dir := newTestEngine(t, 1<<20)
	loadVisionModel(t, e, dir)

	in := map[string]types.Tensor{"input": {Shape: []int64{2}, Data: []float32{1, 2}}}
	out, err := e.Run(context.Background(), "", in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := out["input"]; !ok {
		t.Fatalf("outputs = %v", out)
	}
}

func TestRunNoSupportingModels(t *testing.T) {
	e, _ := newTestEngine(t, 1<<20)
	in := map[string]types.Tensor{"input": {Shape: []int64{1}, Data: []float32{1}}}
	_, err := e.Run(context.Background(), "", in)
	if !fault.IsNotFound(err) {
		t.Fatalf("kind = %v, want not found", fault.KindOf(err))
	}
}

func TestTranscribeNoAudioModels(t *testing.T) {
	e, _ := newTestEngine(t, 1<<20)
	_, err := e.Transcribe(context.Background(), "", []float32{0.1}, 16000)
	if !fault.IsNotFound(err) || !strings.Contains(err.Error(), "no audio models loaded") {
		t.Fatalf("err = %v", err)
	}
}
