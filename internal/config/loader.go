package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// CacheMB bounds the summed declared size of resident models, in MiB.
	CacheMB int `json:"cache_mb" yaml:"cache_mb" toml:"cache_mb"`
	// MaxPending bounds concurrent inference calls; further callers queue.
	MaxPending int `json:"max_pending" yaml:"max_pending" toml:"max_pending"`
	// TokenTimeoutSec is the per-token budget for streamed generation.
	TokenTimeoutSec int `json:"token_timeout_sec" yaml:"token_timeout_sec" toml:"token_timeout_sec"`
	// CacheMetaPath persists LRU recency metadata across restarts.
	CacheMetaPath string `json:"cache_meta_path" yaml:"cache_meta_path" toml:"cache_meta_path"`
	// Preload lists model paths loaded at startup.
	Preload []string `json:"preload" yaml:"preload" toml:"preload"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	// LogFile, when set, also writes logs to a size-rotated file.
	LogFile      string `json:"log_file" yaml:"log_file" toml:"log_file"`
	LogMaxSizeMB int    `json:"log_max_size_mb" yaml:"log_max_size_mb" toml:"log_max_size_mb"`
	LogMaxFiles  int    `json:"log_max_files" yaml:"log_max_files" toml:"log_max_files"`

	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
