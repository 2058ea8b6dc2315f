//go:build !llama

package gguf

// No-CGO stub compiled when the 'llama' build tag is absent. Load fails
// fast instead of mocking inference; default builds and CI stay CGO-free.

import (
	"context"

	"idgaf/internal/fault"
	"idgaf/pkg/types"
)

// llamaBuilt reports whether this binary carries the real llama.cpp backend.
const llamaBuilt = false

func (a *Adapter) load(_ context.Context, path string, _ types.LoadOptions) (*types.LoadedModel, error) {
	return nil, fault.New(fault.KindUnsupported,
		"gguf support not built (missing 'llama' build tag), cannot load %q", path)
}
