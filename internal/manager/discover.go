package manager

import (
	"os"
	"path/filepath"
	"sort"

	"idgaf/internal/fault"
	"idgaf/pkg/types"
)

// Discover scans the models directory for files with known extensions and
// resolves each into a ModelInfo, sorted by name. Unrecognized files are
// skipped silently.
func (m *Manager) Discover() ([]types.ModelInfo, error) {
	abs, err := filepath.Abs(m.dir)
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidInput, err, "abs path")
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fault.Wrap(fault.KindNotFound, err, "read models dir")
	}
	var models []types.ModelInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := m.Resolve(filepath.Join(abs, e.Name()))
		if err != nil || info == nil {
			continue
		}
		models = append(models, *info)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}

// PathFor returns the absolute path of a discovered model by name, or ""
// when no file resolves to that name.
func (m *Manager) PathFor(name string) string {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(m.dir, e.Name())
		if info, err := m.Resolve(p); err == nil && info != nil && info.Name == name {
			return p
		}
	}
	return ""
}
