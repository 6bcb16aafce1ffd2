// Package config defines the LLM provider catalog of a runtime workspace.
//
// The catalog lives in <rtws>/.minds/llm.yaml and is merged over the
// built-in defaults key by key: a provider or agent declared in the file
// replaces the default entry of the same key.
package config

import (
	"fmt"
	"sort"

	"github.com/crystaldolphin/genlayer/internal/providers"
	"github.com/crystaldolphin/genlayer/internal/schema"
)

// Defaults picks the provider, model and agent used when a command does not
// name them.
type Defaults struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Agent    string `yaml:"agent,omitempty"`
}

// Config is the root of llm.yaml.
type Config struct {
	Defaults  Defaults                         `yaml:"defaults"`
	Providers map[string]schema.ProviderConfig `yaml:"providers"`
	Agents    map[string]schema.AgentSpec      `yaml:"agents,omitempty"`
}

// DefaultConfig returns the built-in catalog: one provider per well-known
// vendor, with its default base URL and credential variable.
func DefaultConfig() Config {
	cfg := Config{
		Defaults: Defaults{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-5",
		},
		Providers: map[string]schema.ProviderConfig{},
		Agents:    map[string]schema.AgentSpec{},
	}
	for _, spec := range providers.VENDORS {
		models := defaultModels[spec.Name]
		if len(models) == 0 {
			continue
		}
		p := schema.ProviderConfig{
			Name:         spec.Name,
			APIType:      spec.APIType,
			BaseURL:      spec.DefaultBaseURL,
			APIKeyEnvVar: spec.EnvKey,
			Models:       copyModels(models),
		}
		if spec.APIType == schema.APIMock {
			p.BaseURL = DefaultMockDir
		}
		cfg.Providers[spec.Name] = p
	}
	return cfg
}

func copyModels(m map[string]schema.ModelInfo) map[string]schema.ModelInfo {
	out := make(map[string]schema.ModelInfo, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ProviderByName returns the provider declared under key name. The returned
// config always carries its key as Name.
func (c *Config) ProviderByName(name string) (*schema.ProviderConfig, error) {
	p, ok := c.Providers[name]
	if !ok {
		return nil, &schema.ConfigError{Provider: name, Reason: "provider is not declared in the catalog"}
	}
	p.Name = name
	return &p, nil
}

// Agent returns the agent spec for id, or a bare spec when id is unknown.
func (c *Config) Agent(id string) schema.AgentSpec {
	if a, ok := c.Agents[id]; ok {
		if a.ID == "" {
			a.ID = id
		}
		return a
	}
	return schema.AgentSpec{ID: id}
}

// ProviderNames lists the declared provider keys in sorted order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var validAPITypes = map[schema.APIType]bool{
	schema.APIAnthropic:        true,
	schema.APIOpenAI:           true,
	schema.APIOpenAICompatible: true,
	schema.APICodex:            true,
	schema.APIGemini:           true,
	schema.APIMock:             true,
}

// Validate reports the first provider with an unknown apiType or an empty
// model catalog.
func (c *Config) Validate() error {
	for _, name := range c.ProviderNames() {
		p := c.Providers[name]
		if !validAPITypes[p.APIType] {
			return &schema.ConfigError{Provider: name, Reason: fmt.Sprintf("unknown apiType %q", p.APIType)}
		}
		if len(p.Models) == 0 {
			return &schema.ConfigError{Provider: name, Reason: "no models declared"}
		}
	}
	return nil
}
