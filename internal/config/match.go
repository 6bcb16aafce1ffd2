package config

import (
	"fmt"
	"os"

	"github.com/crystaldolphin/genlayer/internal/providers"
	"github.com/crystaldolphin/genlayer/internal/schema"
)

// MatchProvider resolves which provider serves model when a command names
// only the model.
//
// Priority order:
//  1. Defaults.Provider, if its catalog lists the model
//  2. Well-known vendors listing the model (VENDORS order), credentials first
//  3. Any other provider listing the model (sorted by key)
func (c *Config) MatchProvider(model string) (*schema.ProviderConfig, error) {
	if model == "" {
		model = c.Defaults.Model
	}

	if p, err := c.ProviderByName(c.Defaults.Provider); err == nil {
		if _, ok := p.Model(model); ok {
			return p, nil
		}
	}

	var fallback *schema.ProviderConfig
	for _, spec := range providers.VENDORS {
		p, err := c.ProviderByName(spec.Name)
		if err != nil {
			continue
		}
		if _, ok := p.Model(model); !ok {
			continue
		}
		if HasCredential(p) {
			return p, nil
		}
		if fallback == nil {
			fallback = p
		}
	}
	if fallback != nil {
		return fallback, nil
	}

	for _, name := range c.ProviderNames() {
		p, _ := c.ProviderByName(name)
		if _, ok := p.Model(model); ok {
			return p, nil
		}
	}
	return nil, &schema.ConfigError{Reason: fmt.Sprintf("no provider lists model %q", model)}
}

// HasCredential reports whether the provider's credential is present in the
// environment. Codex and mock providers need no API key variable.
func HasCredential(p *schema.ProviderConfig) bool {
	switch p.APIType {
	case schema.APIMock, schema.APICodex:
		return true
	}
	return p.APIKeyEnvVar != "" && os.Getenv(p.APIKeyEnvVar) != ""
}
