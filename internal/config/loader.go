package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

// ConfigPath returns the catalog file of the runtime workspace rtws:
// <rtws>/.minds/llm.yaml. An empty rtws means the current directory.
func ConfigPath(rtws string) string {
	if rtws == "" {
		rtws = "."
	}
	return filepath.Join(rtws, ".minds", "llm.yaml")
}

// Load reads and parses the catalog at path and merges it over
// DefaultConfig. A missing file yields the defaults. On parse failure it
// logs a warning and returns DefaultConfig().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		slog.Warn("failed to parse config, using default configuration", "path", path, "err", err)
		cfg := DefaultConfig()
		return &cfg, nil
	}

	cfg := DefaultConfig()
	cfg.merge(file)
	if err := cfg.Validate(); err != nil {
		slog.Warn("invalid provider in config", "path", path, "err", err)
	}
	return &cfg, nil
}

// LoadWorkspace loads the catalog of rtws and resolves relative mock
// database directories against rtws.
func LoadWorkspace(rtws string) (*Config, error) {
	cfg, err := Load(ConfigPath(rtws))
	if err != nil {
		return nil, err
	}
	if rtws == "" {
		return cfg, nil
	}
	for name, p := range cfg.Providers {
		if p.APIType == schema.APIMock && p.BaseURL != "" && !filepath.IsAbs(p.BaseURL) {
			p.BaseURL = filepath.Join(rtws, p.BaseURL)
			cfg.Providers[name] = p
		}
	}
	return cfg, nil
}

// merge overlays the entries declared in file, key by key.
func (c *Config) merge(file Config) {
	if file.Defaults.Provider != "" {
		c.Defaults.Provider = file.Defaults.Provider
	}
	if file.Defaults.Model != "" {
		c.Defaults.Model = file.Defaults.Model
	}
	if file.Defaults.Agent != "" {
		c.Defaults.Agent = file.Defaults.Agent
	}
	for name, p := range file.Providers {
		if p.Name == "" {
			p.Name = name
		}
		c.Providers[name] = p
	}
	for id, a := range file.Agents {
		if a.ID == "" {
			a.ID = id
		}
		c.Agents[id] = a
	}
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
