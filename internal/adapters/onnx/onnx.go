// Package onnx drives .onnx/.ort model files through ONNX Runtime. The
// real backend compiles behind the 'onnx' build tag and needs the ONNX
// Runtime shared library at runtime; default builds get a stub that fails
// Load fast.
package onnx

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"idgaf/pkg/types"
)

// Adapter serves vision and embedding models stored as ONNX graphs, plus
// raw named-tensor inference for anything else.
type Adapter struct {
	mu   sync.Mutex
	free map[string]func()
}

func New() *Adapter {
	return &Adapter{free: make(map[string]func())}
}

func (a *Adapter) Format() types.ModelFormat { return types.FormatONNX }

func (a *Adapter) Modalities() []types.ModelType {
	return []types.ModelType{types.TypeVision, types.TypeEmbedding, types.TypeAudio}
}

func (a *Adapter) CanHandle(path string, info *types.ModelInfo) bool {
	if info != nil {
		return info.Format == types.FormatONNX
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".onnx", ".ort":
		return true
	}
	return false
}

func (a *Adapter) Capabilities() types.AdapterCapabilities {
	return types.AdapterCapabilities{
		Streaming:  false,
		GPU:        false,
		Extensions: []string{".onnx", ".ort"},
	}
}

func (a *Adapter) Load(ctx context.Context, path string, opts types.LoadOptions) (*types.LoadedModel, error) {
	return a.load(ctx, path, opts)
}

// Unload destroys the session. Unknown ids are a no-op.
func (a *Adapter) Unload(_ context.Context, modelID string) error {
	a.mu.Lock()
	fn, ok := a.free[modelID]
	delete(a.free, modelID)
	a.mu.Unlock()
	if ok && fn != nil {
		fn()
	}
	return nil
}

func (a *Adapter) track(id string, fn func()) {
	a.mu.Lock()
	a.free[id] = fn
	a.mu.Unlock()
}
