package providers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

// ModelOverride applies extra parameters for a specific model pattern.
type ModelOverride struct {
	Pattern   string         // case-insensitive substring to match in model name
	Overrides map[string]any // parameters to merge into the request body
}

// VendorSpec is the metadata record for one well-known LLM vendor. It seeds
// the default catalog and supplies per-vendor request quirks.
type VendorSpec struct {
	Name        string // provider key in llm.yaml, e.g. "deepseek"
	DisplayName string // shown in `genlayer providers`
	APIType     schema.APIType
	EnvKey      string // default apiKeyEnvVar
	// Substrings of the base URL that identify the vendor when the provider
	// key is custom.
	BaseKeywords   []string
	DefaultBaseURL string

	// Per-model parameter overrides
	ModelOverrides []ModelOverride

	// Vendor supports cache_control on content blocks (Anthropic prompt caching)
	SupportsPromptCaching bool
}

// Label returns the display name, defaulting to Title-cased Name.
func (s VendorSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

// ---------------------------------------------------------------------------
// VENDORS is the vendor table; order is match priority.
// ---------------------------------------------------------------------------

var VENDORS = []VendorSpec{
	{
		Name:                  "anthropic",
		DisplayName:           "Anthropic",
		APIType:               schema.APIAnthropic,
		EnvKey:                "ANTHROPIC_API_KEY",
		BaseKeywords:          []string{"anthropic.com"},
		DefaultBaseURL:        anthropicBaseURL,
		SupportsPromptCaching: true,
	},
	{
		Name:           "openai",
		DisplayName:    "OpenAI",
		APIType:        schema.APIOpenAI,
		EnvKey:         "OPENAI_API_KEY",
		BaseKeywords:   []string{"api.openai.com"},
		DefaultBaseURL: openAIBaseURL,
	},
	{
		Name:           "codex",
		DisplayName:    "OpenAI Codex",
		APIType:        schema.APICodex,
		EnvKey:         "CODEX_HOME",
		BaseKeywords:   []string{"chatgpt.com"},
		DefaultBaseURL: codexBaseURL,
	},
	{
		Name:           "gemini",
		DisplayName:    "Gemini",
		APIType:        schema.APIGemini,
		EnvKey:         "GEMINI_API_KEY",
		BaseKeywords:   []string{"generativelanguage.googleapis.com"},
		DefaultBaseURL: geminiBaseURL,
	},
	{
		Name:                  "openrouter",
		DisplayName:           "OpenRouter",
		APIType:               schema.APIOpenAICompatible,
		EnvKey:                "OPENROUTER_API_KEY",
		BaseKeywords:          []string{"openrouter"},
		DefaultBaseURL:        "https://openrouter.ai/api/v1",
		SupportsPromptCaching: true,
	},
	{
		Name:           "deepseek",
		DisplayName:    "DeepSeek",
		APIType:        schema.APIOpenAICompatible,
		EnvKey:         "DEEPSEEK_API_KEY",
		BaseKeywords:   []string{"deepseek"},
		DefaultBaseURL: "https://api.deepseek.com/v1",
	},
	{
		Name:           "moonshot",
		DisplayName:    "Moonshot",
		APIType:        schema.APIOpenAICompatible,
		EnvKey:         "MOONSHOT_API_KEY",
		BaseKeywords:   []string{"moonshot"},
		DefaultBaseURL: "https://api.moonshot.ai/v1",
		ModelOverrides: []ModelOverride{
			{Pattern: "kimi-k2.5", Overrides: map[string]any{"temperature": 1.0}},
		},
	},
	{
		Name:           "dashscope",
		DisplayName:    "DashScope",
		APIType:        schema.APIOpenAICompatible,
		EnvKey:         "DASHSCOPE_API_KEY",
		BaseKeywords:   []string{"dashscope"},
		DefaultBaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
	},
	{
		Name:           "groq",
		DisplayName:    "Groq",
		APIType:        schema.APIOpenAICompatible,
		EnvKey:         "GROQ_API_KEY",
		BaseKeywords:   []string{"groq"},
		DefaultBaseURL: "https://api.groq.com/openai/v1",
	},
	{
		Name:         "vllm",
		DisplayName:  "vLLM/Local",
		APIType:      schema.APIOpenAICompatible,
		EnvKey:       "HOSTED_VLLM_API_KEY",
		BaseKeywords: []string{"localhost", "127.0.0.1"},
	},
	{
		Name:        "mock",
		DisplayName: "Mock",
		APIType:     schema.APIMock,
	},
}

// FindVendor returns the VendorSpec whose Name equals name.
func FindVendor(name string) *VendorSpec {
	for i := range VENDORS {
		if VENDORS[i].Name == name {
			return &VENDORS[i]
		}
	}
	return nil
}

// VendorFor identifies the vendor behind a configured provider. Priority:
// (1) provider key, (2) base URL keyword of a vendor with the same API type.
func VendorFor(p *schema.ProviderConfig) *VendorSpec {
	if p == nil {
		return nil
	}
	if s := FindVendor(p.Name); s != nil && s.APIType == p.APIType {
		return s
	}
	base := strings.ToLower(p.BaseURL)
	if base == "" {
		return nil
	}
	for i := range VENDORS {
		spec := &VENDORS[i]
		if spec.APIType != p.APIType {
			continue
		}
		for _, kw := range spec.BaseKeywords {
			if strings.Contains(base, kw) {
				return spec
			}
		}
	}
	return nil
}

func supportsPromptCaching(p *schema.ProviderConfig) bool {
	spec := VendorFor(p)
	return spec != nil && spec.SupportsPromptCaching
}

// applyModelOverrides merges the first matching per-model override into body.
func applyModelOverrides(p *schema.ProviderConfig, model string, body map[string]any) {
	spec := VendorFor(p)
	if spec == nil {
		return
	}
	modelLower := strings.ToLower(model)
	for _, ov := range spec.ModelOverrides {
		if strings.Contains(modelLower, strings.ToLower(ov.Pattern)) {
			for k, v := range ov.Overrides {
				body[k] = v
			}
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Generator registry
// ---------------------------------------------------------------------------

// Registry maps an API type to the generator serving it. It is populated
// once at process start and read-only afterwards.
type Registry struct {
	generators map[schema.APIType]schema.Generator
}

// NewRegistry registers every built-in generator. client carries no timeout;
// cancellation is the caller's context.
func NewRegistry(client *http.Client, artifacts schema.ArtifactResolver) *Registry {
	if client == nil {
		client = &http.Client{}
	}
	r := &Registry{generators: map[schema.APIType]schema.Generator{}}
	r.Register(NewAnthropicGenerator(client, artifacts))
	r.Register(NewResponsesGenerator(client, artifacts))
	r.Register(NewChatCompletionsGenerator(client, artifacts))
	r.Register(NewCodexGenerator(client, artifacts))
	r.Register(NewGeminiGenerator(client, artifacts))
	r.Register(NewMockGenerator())
	return r
}

// Register adds or replaces the generator for g.APIType().
func (r *Registry) Register(g schema.Generator) {
	r.generators[g.APIType()] = g
}

// Lookup returns the generator for api.
func (r *Registry) Lookup(api schema.APIType) (schema.Generator, error) {
	g, ok := r.generators[api]
	if !ok {
		return nil, &schema.ConfigError{Reason: fmt.Sprintf("no generator registered for apiType %q", api)}
	}
	return g, nil
}

// For returns the generator serving provider p.
func (r *Registry) For(p *schema.ProviderConfig) (schema.Generator, error) {
	if p == nil {
		return nil, &schema.ConfigError{Reason: "no provider configured"}
	}
	g, err := r.Lookup(p.APIType)
	if err != nil {
		return nil, &schema.ConfigError{Provider: p.Name, Reason: err.(*schema.ConfigError).Reason}
	}
	return g, nil
}

// APITypes lists the registered API types in a stable order.
func (r *Registry) APITypes() []schema.APIType {
	out := make([]schema.APIType, 0, len(r.generators))
	for api := range r.generators {
		out = append(out, api)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
