// Package config loads cmd/modeld serve's settings from a file instead of
// (or underneath) CLI flags and environment variables, so an embedder can
// check one settings file into source control rather than a long flag
// invocation.
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

// Config mirrors cmd/modeld serve's flag set. Zero values mean "unspecified"
// — serve only applies a field when the corresponding flag wasn't given
// explicitly on the command line, so a config file acts as a base layer
// under (never over) explicit flags.
type Config struct {
	Addr         string `json:"addr,omitempty" yaml:"addr,omitempty" toml:"addr,omitempty"`
	ModelPath    string `json:"model_path,omitempty" yaml:"model_path,omitempty" toml:"model_path,omitempty"`
	ModelsDir    string `json:"models_dir,omitempty" yaml:"models_dir,omitempty" toml:"models_dir,omitempty"`
	Backend      string `json:"backend,omitempty" yaml:"backend,omitempty" toml:"backend,omitempty"`
	CacheDir     string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty" toml:"cache_dir,omitempty"`
	MaxLoraSlots int    `json:"max_lora_slots,omitempty" yaml:"max_lora_slots,omitempty" toml:"max_lora_slots,omitempty"`
	LogLevel     string `json:"log_level,omitempty" yaml:"log_level,omitempty" toml:"log_level,omitempty"`
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
