// Package appconfig handles configuration loading shared by cmd/hast and
// cmd/haevlo: an optional YAML file, searched the same way the teacher's
// internal/config package resolves Thane's config.yaml, merged with
// command-line overrides.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order: an explicit
// path (from --config) is checked by the caller first; absent that,
// ./hass.yaml, ~/.config/hass/hass.yaml, then /etc/hass/hass.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"hass.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "hass", "hass.yaml"))
	}

	paths = append(paths, "/etc/hass/hass.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise it searches DefaultSearchPaths and returns the first
// path that exists, or "" if none do (the config file is entirely
// optional: both binaries work from CLI flags and built-in defaults
// alone).
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}

// FileConfig is the shape of the optional YAML config file. Both hast
// and haevlo settings live under one file so a single deployment can
// carry both, but each binary only reads its own section.
type FileConfig struct {
	Hast     HastFileConfig   `yaml:"hast"`
	Haevlo   HaevloFileConfig `yaml:"haevlo"`
	LogLevel string           `yaml:"log_level"`
}

// HastFileConfig is the file-config counterpart of cmd/hast's flags.
type HastFileConfig struct {
	Port      int    `yaml:"port"`
	Token     string `yaml:"token"`
	YAMLDir   string `yaml:"yaml_dir"`
	HAVersion string `yaml:"ha_version"`
}

// HaevloFileConfig is the file-config counterpart of cmd/haevlo's flags.
type HaevloFileConfig struct {
	Host         string   `yaml:"host"`
	Port         int      `yaml:"port"`
	Token        string   `yaml:"token"`
	OutputFolder string   `yaml:"output_folder"`
	Entities     []string `yaml:"entities"`
}

// Load reads and parses path. An empty path returns a zero-value
// FileConfig (no file to load).
func Load(path string) (*FileConfig, error) {
	cfg := &FileConfig{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Merge overlays override onto base, in place, with non-zero fields of
// override taking precedence. base is typically the file-loaded
// configuration; override is typically the CLI flags the user actually
// supplied. Call ApplyHastDefaults or ApplyHaevloDefaults afterward to
// fill in any field still zero-valued.
func Merge[T any](base *T, override T) error {
	if err := mergo.Merge(base, override, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}
	return nil
}

// ApplyHastDefaults fills in any field of c still at its zero value with
// the hardcoded fallback cmd/hast falls back to absent both a config
// file and a CLI flag, mirroring original_source/hass/src/bin/hast.rs's
// clap defaults.
func ApplyHastDefaults(c *HastFileConfig) {
	if c.Port == 0 {
		c.Port = 8123
	}
	if c.Token == "" {
		c.Token = "letmein"
	}
	if c.YAMLDir == "" {
		c.YAMLDir = "."
	}
}

// ApplyHaevloDefaults fills in any field of c still at its zero value
// with the hardcoded fallback cmd/haevlo falls back to, mirroring
// original_source/hass/src/bin/haevlo.rs's clap defaults. Entities is
// left empty (rather than defaulted to ["*"]) so entityfilter.New's own
// "no patterns means match everything" rule applies uniformly.
func ApplyHaevloDefaults(c *HaevloFileConfig) {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8123
	}
	if c.Token == "" {
		c.Token = "letmein"
	}
	if c.OutputFolder == "" {
		c.OutputFolder = "."
	}
}
