package manager

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"idgaf/internal/fault"
	"idgaf/pkg/types"
)

const manifestName = "manifest.json"

// manifestSchema validates manifest.json before it is trusted for checksum
// and metadata overrides.
const manifestSchema = `{
  "type": "object",
  "properties": {
    "models": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "name":     {"type": "string"},
          "format":   {"type": "string", "enum": ["gguf", "onnx", "tflite", "coreml"]},
          "type":     {"type": "string", "enum": ["llm", "vision", "audio", "embedding"]},
          "version":  {"type": "string"},
          "checksum": {"type": "string", "pattern": "^[0-9a-fA-F]{64}$"},
          "metadata": {"type": "object", "additionalProperties": {"type": "string"}}
        },
        "additionalProperties": false
      }
    }
  },
  "required": ["models"],
  "additionalProperties": false
}`

// ManifestEntry carries per-file metadata overrides keyed by filename.
type ManifestEntry struct {
	Name     string            `json:"name,omitempty"`
	Format   string            `json:"format,omitempty"`
	Type     string            `json:"type,omitempty"`
	Version  string            `json:"version,omitempty"`
	Checksum string            `json:"checksum,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type manifestFile struct {
	Models map[string]ManifestEntry `json:"models"`
}

var compiledManifestSchema = jsonschema.MustCompileString("manifest.schema.json", manifestSchema)

// loadManifest reads and validates a manifest file. A missing file yields
// an empty map and no error; a malformed one is rejected.
func loadManifest(path string) (map[string]ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ManifestEntry{}, nil
		}
		return nil, fault.Wrap(fault.KindInvalidInput, err, "read manifest")
	}
	var raw any
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&raw); err != nil {
		return nil, fault.Wrap(fault.KindInvalidInput, err, "parse manifest")
	}
	if err := compiledManifestSchema.Validate(raw); err != nil {
		return nil, fault.Wrap(fault.KindInvalidInput, err, "validate manifest")
	}
	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fault.Wrap(fault.KindInvalidInput, err, "decode manifest")
	}
	return mf.Models, nil
}

// applyManifest overlays manifest metadata onto a resolved info.
func (m *Manager) applyManifest(filename string, info *types.ModelInfo) {
	e, ok := m.manifest[filename]
	if !ok {
		return
	}
	if e.Name != "" {
		info.Name = e.Name
	}
	if e.Type != "" {
		info.Type = types.ModelType(e.Type)
	}
	if e.Version != "" {
		info.Version = e.Version
	}
	if e.Checksum != "" {
		info.Checksum = strings.ToLower(e.Checksum)
	}
	for k, v := range e.Metadata {
		if info.Metadata == nil {
			info.Metadata = make(map[string]string)
		}
		info.Metadata[k] = v
	}
}
