package schema

// APIType names the wire protocol a provider speaks.
type APIType string

const (
	APIAnthropic        APIType = "anthropic"
	APIOpenAI           APIType = "openai"            // Responses API
	APIOpenAICompatible APIType = "openai-compatible" // Chat Completions API
	APICodex            APIType = "codex"
	APIGemini           APIType = "gemini"
	APIMock             APIType = "mock"
)

// ModelInfo is the documented metadata of one model in a provider catalog.
type ModelInfo struct {
	Name           string `yaml:"name,omitempty"`
	ContextLength  int    `yaml:"contextLength,omitempty"`
	InputLength    int    `yaml:"inputLength,omitempty"`
	OutputLength   int    `yaml:"outputLength,omitempty"`
	SupportsVision bool   `yaml:"supportsVision,omitempty"`
	Description    string `yaml:"description,omitempty"`
}

// ProviderConfig describes one configured LLM vendor.
//
// The retry fields are policy data for the dialog driver; nothing in this
// module reads them.
type ProviderConfig struct {
	Name                string               `yaml:"name"`
	APIType             APIType              `yaml:"apiType"`
	BaseURL             string               `yaml:"baseURL"`
	APIKeyEnvVar        string               `yaml:"apiKeyEnvVar"`
	ExtraHeaders        map[string]string    `yaml:"extraHeaders,omitempty"`
	Models              map[string]ModelInfo `yaml:"models"`
	ParamsSchema        map[string]any       `yaml:"paramsSchema,omitempty"`
	MaxRetries          int                  `yaml:"maxRetries,omitempty"`
	RetryInitialDelayMs int                  `yaml:"retryInitialDelayMs,omitempty"`
	RetryMaxDelayMs     int                  `yaml:"retryMaxDelayMs,omitempty"`
}

// Model returns the catalog entry for id.
func (p *ProviderConfig) Model(id string) (ModelInfo, bool) {
	if p == nil {
		return ModelInfo{}, false
	}
	info, ok := p.Models[id]
	return info, ok
}
