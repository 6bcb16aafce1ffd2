package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

func writeConfig(t *testing.T, dir string, v any) string {
	t.Helper()
	data, err := yaml.Marshal(v)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := ConfigPath(dir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/llm.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Defaults.Model != def.Defaults.Model {
		t.Errorf("expected default model %q, got %q", def.Defaults.Model, cfg.Defaults.Model)
	}
	if _, err := cfg.ProviderByName("anthropic"); err != nil {
		t.Errorf("expected built-in anthropic provider: %v", err)
	}
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"defaults": map[string]any{"provider": "local", "model": "qwen3"},
		"providers": map[string]any{
			"local": map[string]any{
				"apiType":      "openai-compatible",
				"baseURL":      "http://127.0.0.1:8000/v1",
				"apiKeyEnvVar": "LOCAL_KEY",
				"models": map[string]any{
					"qwen3": map[string]any{"outputLength": 4096},
				},
			},
		},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Defaults.Provider != "local" || cfg.Defaults.Model != "qwen3" {
		t.Errorf("defaults not merged: %+v", cfg.Defaults)
	}
	p, err := cfg.ProviderByName("local")
	if err != nil {
		t.Fatalf("ProviderByName: %v", err)
	}
	if p.Name != "local" || p.APIType != schema.APIOpenAICompatible {
		t.Errorf("unexpected provider: %+v", p)
	}
	if info, ok := p.Model("qwen3"); !ok || info.OutputLength != 4096 {
		t.Errorf("expected qwen3 with outputLength 4096, got %+v (ok=%v)", info, ok)
	}
	// Built-in entries survive.
	if _, err := cfg.ProviderByName("gemini"); err != nil {
		t.Errorf("expected default gemini provider to remain: %v", err)
	}
}

func TestLoad_ProviderReplacesDefaultEntry(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"providers": map[string]any{
			"anthropic": map[string]any{
				"apiType":      "anthropic",
				"apiKeyEnvVar": "MY_ANTHROPIC_KEY",
				"models":       map[string]any{"claude-test": map[string]any{}},
			},
		},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p, _ := cfg.ProviderByName("anthropic")
	if p.APIKeyEnvVar != "MY_ANTHROPIC_KEY" {
		t.Errorf("apiKeyEnvVar = %q", p.APIKeyEnvVar)
	}
	if _, ok := p.Model("claude-sonnet-4-5"); ok {
		t.Error("default model catalog should be replaced, not merged")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "llm.yaml")
	if err := os.WriteFile(path, []byte("providers: [not: valid"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error for invalid YAML (falls back to default), got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Defaults.Model != def.Defaults.Model {
		t.Errorf("expected default model %q, got %q", def.Defaults.Model, cfg.Defaults.Model)
	}
}

func TestLoadWorkspace_ResolvesMockDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadWorkspace(dir)
	if err != nil {
		t.Fatalf("LoadWorkspace: %v", err)
	}
	p, err := cfg.ProviderByName("mock")
	if err != nil {
		t.Fatalf("ProviderByName: %v", err)
	}
	want := filepath.Join(dir, DefaultMockDir)
	if p.BaseURL != want {
		t.Errorf("mock baseURL = %q, want %q", p.BaseURL, want)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "llm.yaml")

	original := DefaultConfig()
	original.Defaults.Model = "gpt-5"
	original.Agents["coder"] = schema.AgentSpec{
		Model:       "gpt-5",
		ModelParams: schema.ModelParams{MaxTokens: 1234},
	}

	if err := Save(&original, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Defaults.Model != original.Defaults.Model {
		t.Errorf("model mismatch: got %q, want %q", loaded.Defaults.Model, original.Defaults.Model)
	}
	agent := loaded.Agent("coder")
	if agent.ID != "coder" || agent.ModelParams.MaxTokens != 1234 {
		t.Errorf("agent mismatch: %+v", agent)
	}
}

func TestSave_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "llm.yaml")

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected permissions 0600, got %04o", perm)
	}
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := ConfigPath(filepath.Join(dir, "nested"))

	cfg := DefaultConfig()
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file not created: %v", err)
	}
}

func TestValidate_UnknownAPIType(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers["weird"] = schema.ProviderConfig{
		APIType: "carrier-pigeon",
		Models:  map[string]schema.ModelInfo{"m": {}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown apiType")
	}
	def := DefaultConfig()
	if err := def.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestMatchProvider(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	cfg := DefaultConfig()

	p, err := cfg.MatchProvider("deepseek-chat")
	if err != nil {
		t.Fatalf("MatchProvider: %v", err)
	}
	if p.Name != "deepseek" {
		t.Errorf("expected deepseek, got %q", p.Name)
	}

	// Empty model uses the default model and provider.
	p, err = cfg.MatchProvider("")
	if err != nil {
		t.Fatalf("MatchProvider default: %v", err)
	}
	if p.Name != cfg.Defaults.Provider {
		t.Errorf("expected default provider %q, got %q", cfg.Defaults.Provider, p.Name)
	}

	if _, err := cfg.MatchProvider("no-such-model"); err == nil {
		t.Error("expected error for unknown model")
	}
}
