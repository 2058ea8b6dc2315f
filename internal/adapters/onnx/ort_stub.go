//go:build !onnx

package onnx

// Stub compiled when the 'onnx' build tag is absent; keeps default builds
// free of the ONNX Runtime shared-library dependency.

import (
	"context"

	"idgaf/internal/fault"
	"idgaf/pkg/types"
)

func (a *Adapter) load(_ context.Context, path string, _ types.LoadOptions) (*types.LoadedModel, error) {
	return nil, fault.New(fault.KindUnsupported,
		"onnx support not built (missing 'onnx' build tag), cannot load %q", path)
}
