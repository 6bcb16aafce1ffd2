package providers

import (
	"errors"
	"testing"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry(nil, nil)

	if got := r.APITypes(); len(got) != 6 {
		t.Fatalf("APITypes = %v", got)
	}
	for _, api := range r.APITypes() {
		g, err := r.Lookup(api)
		if err != nil || g.APIType() != api {
			t.Errorf("Lookup(%s) = %v, %v", api, g, err)
		}
	}

	var cerr *schema.ConfigError
	if _, err := r.Lookup("smoke-signals"); !errors.As(err, &cerr) {
		t.Errorf("unknown api: expected ConfigError, got %v", err)
	}
	if _, err := r.For(&schema.ProviderConfig{Name: "x", APIType: "smoke-signals"}); !errors.As(err, &cerr) || cerr.Provider != "x" {
		t.Errorf("For: expected ConfigError naming provider, got %v", err)
	}
	if _, err := r.For(nil); !errors.As(err, &cerr) {
		t.Errorf("For(nil): expected ConfigError, got %v", err)
	}
}

func TestVendorFor(t *testing.T) {
	cases := []struct {
		p    schema.ProviderConfig
		want string
	}{
		{schema.ProviderConfig{Name: "deepseek", APIType: schema.APIOpenAICompatible}, "deepseek"},
		{schema.ProviderConfig{Name: "my-router", APIType: schema.APIOpenAICompatible, BaseURL: "https://OpenRouter.ai/api/v1"}, "openrouter"},
		{schema.ProviderConfig{Name: "box", APIType: schema.APIOpenAICompatible, BaseURL: "http://localhost:8000/v1"}, "vllm"},
		// Name match requires the same protocol.
		{schema.ProviderConfig{Name: "anthropic", APIType: schema.APIOpenAICompatible}, ""},
		{schema.ProviderConfig{Name: "custom", APIType: schema.APIGemini, BaseURL: "https://example.com"}, ""},
	}
	for _, c := range cases {
		got := ""
		if s := VendorFor(&c.p); s != nil {
			got = s.Name
		}
		if got != c.want {
			t.Errorf("VendorFor(%s @ %q) = %q, want %q", c.p.Name, c.p.BaseURL, got, c.want)
		}
	}
}

func TestApplyModelOverrides(t *testing.T) {
	p := &schema.ProviderConfig{Name: "moonshot", APIType: schema.APIOpenAICompatible}

	body := map[string]any{"temperature": 0.3}
	applyModelOverrides(p, "Kimi-K2.5", body)
	if body["temperature"] != 1.0 {
		t.Errorf("override not applied: %v", body)
	}

	body = map[string]any{"temperature": 0.3}
	applyModelOverrides(p, "moonshot-v1-8k", body)
	if body["temperature"] != 0.3 {
		t.Errorf("non-matching model changed: %v", body)
	}
}

func TestVendorSpecLabel(t *testing.T) {
	if got := (VendorSpec{Name: "acme"}).Label(); got != "Acme" {
		t.Errorf("Label = %q", got)
	}
	if got := FindVendor("vllm").Label(); got != "vLLM/Local" {
		t.Errorf("Label = %q", got)
	}
}
