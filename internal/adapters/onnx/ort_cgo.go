//go:build onnx

package onnx

import (
	"context"
	"os"
	"sort"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"idgaf/internal/fault"
	"idgaf/pkg/types"
)

var (
	ortInit    sync.Once
	ortInitErr error
)

// initRuntime initializes the ONNX Runtime environment once per process.
// IDGAF_ORT_LIB overrides the shared library location.
func initRuntime() error {
	ortInit.Do(func() {
		if lib := os.Getenv("IDGAF_ORT_LIB"); lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

func (a *Adapter) load(ctx context.Context, path string, _ types.LoadOptions) (*types.LoadedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := initRuntime(); err != nil {
		return nil, fault.Wrap(fault.KindLoadFailure, err, "onnxruntime init")
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fault.Wrap(fault.KindLoadFailure, err, "inspect onnx graph %q", path)
	}
	inNames := make([]string, len(inputs))
	for i, in := range inputs {
		inNames[i] = in.Name
	}
	outNames := make([]string, len(outputs))
	for i, out := range outputs {
		outNames[i] = out.Name
	}

	sess, err := ort.NewDynamicAdvancedSession(path, inNames, outNames, nil)
	if err != nil {
		return nil, fault.Wrap(fault.KindLoadFailure, err, "open onnx session %q", path)
	}

	// Sessions are not safe for concurrent Run calls.
	var callMu sync.Mutex

	m := &types.LoadedModel{ID: types.NewModelID(types.FormatONNX), Adapter: a}

	run := func(ctx context.Context, in map[string]types.Tensor) (map[string]types.Tensor, error) {
		callMu.Lock()
		defer callMu.Unlock()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		inVals := make([]ort.Value, len(inNames))
		for i, name := range inNames {
			t, ok := in[name]
			if !ok {
				return nil, fault.New(fault.KindInvalidInput, "missing input tensor %q", name)
			}
			val, err := ort.NewTensor(ort.NewShape(t.Shape...), t.Data)
			if err != nil {
				return nil, fault.Wrap(fault.KindInvalidInput, err, "input tensor %q", name)
			}
			defer val.Destroy()
			inVals[i] = val
		}
		// nil output slots are allocated by the runtime.
		outVals := make([]ort.Value, len(outNames))
		if err := sess.Run(inVals, outVals); err != nil {
			return nil, fault.Wrap(fault.KindInferenceFailure, err, "onnx run")
		}
		result := make(map[string]types.Tensor, len(outNames))
		for i, name := range outNames {
			t, ok := outVals[i].(*ort.Tensor[float32])
			if !ok {
				outVals[i].Destroy()
				return nil, fault.New(fault.KindInferenceFailure, "output %q is not float32", name)
			}
			shape := t.GetShape()
			data := make([]float32, len(t.GetData()))
			copy(data, t.GetData())
			result[name] = types.Tensor{Shape: append([]int64(nil), shape...), Data: data}
			t.Destroy()
		}
		return result, nil
	}

	m.Run = run
	m.Classify = func(ctx context.Context, input types.Tensor) ([]types.Classification, error) {
		out, err := run(ctx, map[string]types.Tensor{inNames[0]: input})
		if err != nil {
			return nil, err
		}
		scores := out[outNames[0]]
		return topScores(scores.Data, 5), nil
	}
	m.MarkSupported(types.OpRun, types.OpClassify)

	a.track(m.ID, func() {
		callMu.Lock()
		defer callMu.Unlock()
		_ = sess.Destroy()
	})
	return m, nil
}

// topScores ranks raw scores and returns the best k as index labels; the
// caller maps indices to class names when a label file is known.
func topScores(scores []float32, k int) []types.Classification {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if k > len(idx) {
		k = len(idx)
	}
	out := make([]types.Classification, 0, k)
	for _, i := range idx[:k] {
		out = append(out, types.Classification{Label: strconv.Itoa(i), Score: scores[i]})
	}
	return out
}
