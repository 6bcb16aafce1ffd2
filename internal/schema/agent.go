package schema

// VendorParams are the model parameters one vendor family understands.
// Pointer fields distinguish "unset" from a zero value.
type VendorParams struct {
	MaxTokens         int      `yaml:"maxTokens,omitempty"`
	Temperature       *float64 `yaml:"temperature,omitempty"`
	TopP              *float64 `yaml:"topP,omitempty"`
	TopK              *int     `yaml:"topK,omitempty"`
	StopSequences     []string `yaml:"stopSequences,omitempty"`
	ReasoningEffort   string   `yaml:"reasoningEffort,omitempty"`
	ReasoningSummary  string   `yaml:"reasoningSummary,omitempty"`
	Verbosity         string   `yaml:"verbosity,omitempty"`
	ThinkingBudget    int      `yaml:"thinkingBudget,omitempty"`
	PresencePenalty   *float64 `yaml:"presencePenalty,omitempty"`
	FrequencyPenalty  *float64 `yaml:"frequencyPenalty,omitempty"`
	ParallelToolCalls *bool    `yaml:"parallelToolCalls,omitempty"`
	Seed              *int     `yaml:"seed,omitempty"`
}

// ModelParams holds the generic section (MaxTokens) and one vendor section
// per API family.
type ModelParams struct {
	MaxTokens  int          `yaml:"maxTokens,omitempty"`
	Anthropic  VendorParams `yaml:"anthropic,omitempty"`
	OpenAI     VendorParams `yaml:"openai,omitempty"`
	Compatible VendorParams `yaml:"compatible,omitempty"`
	Codex      VendorParams `yaml:"codex,omitempty"`
	Gemini     VendorParams `yaml:"gemini,omitempty"`
}

// ForAPI returns the vendor section matching api.
func (p ModelParams) ForAPI(api APIType) VendorParams {
	switch api {
	case APIAnthropic:
		return p.Anthropic
	case APIOpenAI:
		return p.OpenAI
	case APIOpenAICompatible:
		return p.Compatible
	case APICodex:
		return p.Codex
	case APIGemini:
		return p.Gemini
	}
	return VendorParams{}
}

// AgentSpec is the slice of agent configuration a generation call needs.
type AgentSpec struct {
	ID          string      `yaml:"id"`
	Model       string      `yaml:"model"`
	ModelParams ModelParams `yaml:"modelParams,omitempty"`
}

// DefaultMaxOutputTokens is used when neither the agent nor the catalog
// declares an output limit.
const DefaultMaxOutputTokens = 1024

// EffectiveMaxTokens resolves the output token limit for a call: the generic
// override, then the vendor override, then the catalog's output length.
func EffectiveMaxTokens(agent *AgentSpec, provider *ProviderConfig) int {
	if agent != nil {
		if agent.ModelParams.MaxTokens > 0 {
			return agent.ModelParams.MaxTokens
		}
		if provider != nil {
			if n := agent.ModelParams.ForAPI(provider.APIType).MaxTokens; n > 0 {
				return n
			}
			if info, ok := provider.Model(agent.Model); ok && info.OutputLength > 0 {
				return info.OutputLength
			}
		}
	}
	return DefaultMaxOutputTokens
}
