package types

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"
)

// ModelAdapter is the capability contract every format driver satisfies.
// The core consumes this interface polymorphically and never implements it.
type ModelAdapter interface {
	// Format returns the single format tag this adapter is registered under.
	Format() ModelFormat
	// Modalities lists the model types this adapter can serve.
	Modalities() []ModelType
	// CanHandle reports whether this adapter can load the given file. It must
	// be pure and side-effect free: selection calls it speculatively across
	// the whole adapter set. info may be nil when the format is unresolved.
	CanHandle(path string, info *ModelInfo) bool
	// Capabilities returns static metadata used for selection scoring.
	Capabilities() AdapterCapabilities
	// Load constructs a model instance. May fail (runtime unavailable, file
	// unreadable, out of memory). The returned instance id is unique for the
	// process lifetime.
	Load(ctx context.Context, path string, opts LoadOptions) (*LoadedModel, error)
	// Unload releases every native resource held by the instance before
	// returning. Calling it with an unknown id is a no-op, not an error.
	Unload(ctx context.Context, modelID string) error
}

// Op tags one invocable capability of a loaded model.
type Op string

const (
	OpGenerate   Op = "generate"
	OpChat       Op = "chat"
	OpClassify   Op = "classify"
	OpDetect     Op = "detect"
	OpSegment    Op = "segment"
	OpTranscribe Op = "transcribe"
	OpSynthesize Op = "synthesize"
	OpEmbed      Op = "embed"
	OpRun        Op = "run"
)

// TokenFunc receives streamed tokens. Returning an error stops generation.
type TokenFunc func(token string) error

// LoadedModel is one in-memory model instance created by an adapter. It
// carries an explicit set of supported operation tags plus one closure per
// tag; callers probe Supports before invoking. Closures are only valid while
// the instance remains registered; after unload they must fail.
type LoadedModel struct {
	ID      string
	Info    ModelInfo
	Adapter ModelAdapter

	ops map[Op]struct{}

	Generate   func(ctx context.Context, prompt string, opts GenerateOptions, onToken TokenFunc) (string, error)
	Chat       func(ctx context.Context, msgs []ChatMessage, opts GenerateOptions, onToken TokenFunc) (string, error)
	Classify   func(ctx context.Context, input Tensor) ([]Classification, error)
	Detect     func(ctx context.Context, image Tensor) ([]Detection, error)
	Segment    func(ctx context.Context, image Tensor) (Tensor, error)
	Transcribe func(ctx context.Context, audio []float32, sampleRate int) (string, error)
	Synthesize func(ctx context.Context, text string) ([]float32, error)
	Embed      func(ctx context.Context, input string) ([]float32, error)
	Run        func(ctx context.Context, inputs map[string]Tensor) (map[string]Tensor, error)
}

// MarkSupported records op tags on the instance. Adapters call this for each
// closure they install.
func (m *LoadedModel) MarkSupported(ops ...Op) {
	if m.ops == nil {
		m.ops = make(map[Op]struct{}, len(ops))
	}
	for _, op := range ops {
		m.ops[op] = struct{}{}
	}
}

// Supports reports whether the instance declared the given operation.
func (m *LoadedModel) Supports(op Op) bool {
	_, ok := m.ops[op]
	return ok
}

// SupportedOps returns the declared operation tags (unordered).
func (m *LoadedModel) SupportedOps() []Op {
	out := make([]Op, 0, len(m.ops))
	for op := range m.ops {
		out = append(out, op)
	}
	return out
}

var idSeq atomic.Uint64

// NewModelID returns a process-unique instance id: a format prefix, a
// monotonic sequence number, and a random suffix so ids stay unique across
// clock adjustments.
func NewModelID(format ModelFormat) string {
	return fmt.Sprintf("%s-%d-%d-%04x", format, time.Now().UnixMilli(), idSeq.Add(1), rand.Intn(0x10000))
}

// PerformanceMetrics is the per-model mutable record the engine maintains.
type PerformanceMetrics struct {
	// Wall-clock duration of the most recent operation.
	InferenceTime time.Duration `json:"inference_time_ms" swaggertype:"integer"`
	// Declared memory footprint of the model instance in bytes.
	MemoryBytes int64 `json:"memory_bytes"`
	// Tokens per second of the most recent token-producing operation.
	TokensPerSec float64 `json:"tokens_per_sec,omitempty"`
	// Duration of the initial load, when known.
	LoadTime time.Duration `json:"load_time_ms,omitempty" swaggertype:"integer"`
}
