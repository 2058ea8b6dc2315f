// Package manager resolves model paths and URLs to on-disk bytes and
// metadata: format detection from extension, checksum validation, download
// with retry, and models-directory discovery. It feeds ModelInfo into the
// registry and never touches adapter lifecycle.
package manager

import (
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"idgaf/internal/fault"
	"idgaf/pkg/types"
)

// Manager resolves and fetches model files under a models directory.
type Manager struct {
	dir      string
	client   *http.Client
	manifest map[string]ManifestEntry
}

// New returns a Manager rooted at dir. The directory's manifest.json, when
// present and valid, supplies per-file metadata overrides.
func New(dir string) (*Manager, error) {
	abs, err := expandHome(dir)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		dir:    abs,
		client: &http.Client{Timeout: 10 * time.Minute},
	}
	m.manifest, _ = loadManifest(filepath.Join(abs, manifestName))
	return m, nil
}

// Dir returns the models directory.
func (m *Manager) Dir() string { return m.dir }

var extFormats = map[string]types.ModelFormat{
	".gguf":     types.FormatGGUF,
	".onnx":     types.FormatONNX,
	".ort":      types.FormatONNX,
	".tflite":   types.FormatTFLite,
	".lite":     types.FormatTFLite,
	".mlmodel":  types.FormatCoreML,
	".mlmodelc": types.FormatCoreML,
}

// FormatForPath maps a file extension to its model format. ok is false when
// the extension is unrecognized.
func FormatForPath(path string) (types.ModelFormat, bool) {
	f, ok := extFormats[strings.ToLower(filepath.Ext(path))]
	return f, ok
}

var (
	versionRe = regexp.MustCompile(`[vV]?(\d+(?:\.\d+)+)`)
	quantRe   = regexp.MustCompile(`(?i)\b(Q\d_[A-Z0-9_]+|Q\d|F16|F32|INT8|INT4)\b`)
)

// Resolve builds an immutable ModelInfo for a local model file. Returns
// (nil, nil) when the extension maps to no known format; callers treat a
// nil info as "unrecognized", not as a failure. Checksums are not computed
// here: hashing multi-gigabyte files is explicit via Checksum/Verify.
func (m *Manager) Resolve(path string) (*types.ModelInfo, error) {
	format, ok := FormatForPath(path)
	if !ok {
		return nil, nil
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fault.Wrap(fault.KindNotFound, err, "stat model file")
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	info := &types.ModelInfo{
		Name:   name,
		Format: format,
		Type:   guessType(format, name),
		Size:   fi.Size(),
	}
	if v := versionRe.FindStringSubmatch(name); v != nil {
		info.Version = v[1]
	}
	if q := quantRe.FindString(name); q != "" {
		info.Metadata = map[string]string{"quant": strings.ToUpper(q)}
	}
	m.applyManifest(filepath.Base(path), info)
	return info, nil
}

// guessType picks a modality from format and filename hints. The manifest
// overrides this when the heuristic is wrong.
func guessType(format types.ModelFormat, name string) types.ModelType {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "whisper"), strings.Contains(lower, "tts"),
		strings.Contains(lower, "speech"), strings.Contains(lower, "audio"):
		return types.TypeAudio
	case strings.Contains(lower, "embed"), strings.Contains(lower, "minilm"),
		strings.Contains(lower, "e5-"), strings.Contains(lower, "bge-"):
		return types.TypeEmbedding
	}
	if format == types.FormatGGUF {
		return types.TypeLLM
	}
	return types.TypeVision
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fault.Wrap(fault.KindNotFound, err, "home dir")
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
