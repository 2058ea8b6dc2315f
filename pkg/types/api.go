package types

// GenerateRequest is the payload for POST /generate.
type GenerateRequest struct {
	// Optional loaded-model id. If empty, the first loaded LLM is used.
	// example: gguf-1700000000000-1-00ff
	Model string `json:"model,omitempty" example:"gguf-1700000000000-1-00ff"`
	// Required prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// If true, stream results as NDJSON token lines.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Optional stop sequences. Generation stops when any sequence matches.
	Stop []string `json:"stop,omitempty"`
	// Random seed for reproducibility; 0 or omitted lets the runtime choose.
	// example: 42
	Seed int `json:"seed,omitempty" example:"42"`
}

// LoadRequest is the payload for POST /load.
type LoadRequest struct {
	// Path or URL of the model file to load.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Optional cache key; defaults to the resolved path.
	CacheKey string `json:"cache_key,omitempty"`
	// Context window size for LLM formats.
	// example: 4096
	ContextSize int `json:"context_size,omitempty" example:"4096"`
	// Worker threads for the native runtime.
	// example: 4
	Threads int `json:"threads,omitempty" example:"4"`
}

// EmbedRequest is the payload for POST /embed.
type EmbedRequest struct {
	// Optional loaded-model id. If empty, the first embedding model is used.
	Model string `json:"model,omitempty"`
	// Text to embed.
	// example: the quick brown fox
	Input string `json:"input" example:"the quick brown fox"`
}

// EmbedResponse wraps an embedding vector.
type EmbedResponse struct {
	Model     string    `json:"model"`
	Embedding []float32 `json:"embedding"`
}

// ModelsResponse wraps the lists returned by GET /models: files discovered
// on disk and instances currently loaded.
type ModelsResponse struct {
	// Models discovered in the models directory.
	Available []ModelInfo `json:"available"`
	// Currently loaded instances.
	Loaded []LoadedModelStatus `json:"loaded"`
}

// LoadedModelStatus summarizes one loaded instance.
type LoadedModelStatus struct {
	// Process-unique instance id.
	ID string `json:"id"`
	// Descriptor the instance was loaded from.
	Info ModelInfo `json:"info"`
	// Declared operation tags.
	Ops []Op `json:"ops"`
	// Latest performance record, if any operation ran.
	Metrics *PerformanceMetrics `json:"metrics,omitempty"`
}

// CacheStats reports LRU cache occupancy for GET /status.
type CacheStats struct {
	// Sum of declared entry sizes in bytes.
	// example: 1337262080
	SizeBytes int64 `json:"size_bytes" example:"1337262080"`
	// Number of resident entries.
	// example: 2
	Entries int `json:"entries" example:"2"`
	// hits / (hits + misses); 0 when no accesses were recorded.
	// example: 0.85
	HitRate float64 `json:"hit_rate" example:"0.85"`
	// Total evictions performed to free capacity.
	// example: 5
	Evictions uint64 `json:"evictions" example:"5"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loaded instances tracked by the registry.
	Loaded []LoadedModelStatus `json:"loaded"`
	// Sum of declared sizes over loaded instances, in bytes.
	// example: 1337262080
	MemoryBytes int64 `json:"memory_bytes" example:"1337262080"`
	// LRU cache statistics.
	Cache CacheStats `json:"cache"`
	// Hardware snapshot used for adapter selection.
	Hardware HardwareInfo `json:"hardware"`
	// Uptime of the process in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: no llm models loaded
	Error string `json:"error" example:"no llm models loaded"`
	// Error kind from the runtime taxonomy.
	// example: not_found
	Kind string `json:"kind,omitempty" example:"not_found"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}
