package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPrefix marks process environment variables that override file
// configuration, e.g. KSID_LISTEN overrides the "listen" key.
const envPrefix = "KSID_"

// Load reads a config file and applies KSID_* environment overrides.
// An empty path loads from the environment alone.
func Load(path string) (Config, error) {
	cfg := New(nil)
	if path != "" {
		loaded, err := FromFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	return applyEnv(cfg, os.Environ()), nil
}

// FromFile loads configuration from a YAML or JSON file, detected by
// extension.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// applyEnv overlays KSID_* variables onto a config. KSID_MAX_HOPS
// becomes the key "max_hops"; values stay strings and rely on the
// accessors' coercion.
func applyEnv(cfg Config, environ []string) Config {
	merged := make(map[string]any, len(cfg.Raw()))
	for k, v := range cfg.Raw() {
		merged[k] = v
	}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, envPrefix) {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, envPrefix))
		if key == "" {
			continue
		}
		merged[key] = value
	}
	return New(merged)
}
