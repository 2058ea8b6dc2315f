// Package gguf drives GGUF model files through llama.cpp. The CGO-backed
// implementation compiles behind the 'llama' build tag; default builds get a
// stub that fails Load fast, keeping CI CGO-free.
package gguf

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"idgaf/pkg/types"
)

// Adapter serves LLM and embedding models stored as GGUF.
type Adapter struct {
	mu   sync.Mutex
	free map[string]func()
}

// New returns a GGUF adapter. Defaults are applied per load from
// types.LoadOptions.
func New() *Adapter {
	return &Adapter{free: make(map[string]func())}
}

func (a *Adapter) Format() types.ModelFormat { return types.FormatGGUF }

func (a *Adapter) Modalities() []types.ModelType {
	return []types.ModelType{types.TypeLLM, types.TypeEmbedding}
}

// CanHandle accepts .gguf files, or any path whose resolved format is GGUF.
func (a *Adapter) CanHandle(path string, info *types.ModelInfo) bool {
	if info != nil {
		return info.Format == types.FormatGGUF
	}
	return strings.EqualFold(filepath.Ext(path), ".gguf")
}

func (a *Adapter) Capabilities() types.AdapterCapabilities {
	return types.AdapterCapabilities{
		Streaming:     true,
		GPU:           llamaBuilt,
		Quantizations: []string{"Q4_K_M", "Q5_K_M", "Q8_0", "F16"},
		MaxContext:    32768,
		Extensions:    []string{".gguf"},
	}
}

// Load constructs a llama.cpp instance for the file. Implemented by the
// build-tagged backend.
func (a *Adapter) Load(ctx context.Context, path string, opts types.LoadOptions) (*types.LoadedModel, error) {
	return a.load(ctx, path, opts)
}

// Unload frees the native instance. Unknown ids are a no-op.
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
