package types

// ModelFormat identifies the on-disk format of a model file.
type ModelFormat string

const (
	FormatGGUF   ModelFormat = "gguf"
	FormatONNX   ModelFormat = "onnx"
	FormatTFLite ModelFormat = "tflite"
	FormatCoreML ModelFormat = "coreml"
)

// ModelType is the task modality a model serves.
type ModelType string

const (
	TypeLLM       ModelType = "llm"
	TypeVision    ModelType = "vision"
	TypeAudio     ModelType = "audio"
	TypeEmbedding ModelType = "embedding"
)

// ModelInfo is an immutable descriptor of a model file, produced by
// resolving a path or URL. Never mutated after creation.
type ModelInfo struct {
	// Stable human-facing name, usually derived from the filename.
	// example: tinyllama-q4
	Name string `json:"name" example:"tinyllama-q4"`
	// On-disk format of the model file.
	// example: gguf
	Format ModelFormat `json:"format" example:"gguf"`
	// Task modality the model serves.
	// example: llm
	Type ModelType `json:"type" example:"llm"`
	// File size in bytes.
	// example: 668788096
	Size int64 `json:"size" example:"668788096"`
	// Version string parsed from the filename or manifest, if any.
	// example: 1.1
	Version string `json:"version,omitempty" example:"1.1"`
	// Hex SHA-256 of the file contents, if computed.
	Checksum string `json:"checksum,omitempty"`
	// Free-form metadata (quantization, family, source URL, ...).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AdapterCapabilities is static, adapter-scoped metadata consumed only by
// adapter selection scoring.
type AdapterCapabilities struct {
	Streaming     bool     `json:"streaming"`
	GPU           bool     `json:"gpu"`
	Quantizations []string `json:"quantizations,omitempty"`
	MaxContext    int      `json:"max_context,omitempty"`
	Extensions    []string `json:"extensions,omitempty"`
}

// HardwareInfo is a snapshot of the host, used as scoring input during
// adapter selection. How the booleans are computed is the detector's concern.
type HardwareInfo struct {
	Platform string `json:"platform"`
	HasGPU   bool   `json:"has_gpu"`
	HasNPU   bool   `json:"has_npu"`
	MemoryMB int    `json:"memory_mb"`
	Cores    int    `json:"cores"`
	Arch     string `json:"arch"`
}

// LoadOptions tunes how an adapter loads a model instance.
type LoadOptions struct {
	ContextSize int
	Threads     int
	GPULayers   int
	// CacheKey, when set, is the key under which the engine caches the
	// loaded instance. Defaults to the resolved model path.
	CacheKey string
}

// GenerateOptions captures sampling parameters for text generation.
type GenerateOptions struct {
	MaxTokens     int
	Temperature   float32
	TopP          float32
	TopK          int
	Stop          []string
	Seed          int
	RepeatPenalty float32
}

// ChatMessage is one turn of a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tensor is a dense float tensor in row-major order.
type Tensor struct {
	Shape []int64   `json:"shape"`
	Data  []float32 `json:"data"`
}

// Elements returns the number of elements implied by the shape.
func (t Tensor) Elements() int64 {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Classification is one scored label from a classify call.
type Classification struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// Detection is one located object from a detect call.
type Detection struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
	// Box is [x, y, w, h] in normalized [0,1] image coordinates.
	Box [4]float32 `json:"box"`
}
