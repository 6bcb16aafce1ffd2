package config

import "github.com/crystaldolphin/genlayer/internal/schema"

// DefaultMockDir is the mock database directory, relative to the runtime
// workspace.
const DefaultMockDir = ".minds/mock-db"

// defaultModels seeds the catalog of each well-known vendor. Operators extend
// or replace it in llm.yaml.
var defaultModels = map[string]map[string]schema.ModelInfo{
	"anthropic": {
		"claude-sonnet-4-5": {Name: "Claude Sonnet 4.5", ContextLength: 200000, OutputLength: 64000, SupportsVision: true},
		"claude-opus-4-1":   {Name: "Claude Opus 4.1", ContextLength: 200000, OutputLength: 32000, SupportsVision: true},
		"claude-haiku-4-5":  {Name: "Claude Haiku 4.5", ContextLength: 200000, OutputLength: 64000, SupportsVision: true},
	},
	"openai": {
		"gpt-5":      {Name: "GPT-5", ContextLength: 400000, OutputLength: 128000, SupportsVision: true},
		"gpt-5-mini": {Name: "GPT-5 mini", ContextLength: 400000, OutputLength: 128000, SupportsVision: true},
		"gpt-4.1":    {Name: "GPT-4.1", ContextLength: 1047576, OutputLength: 32768, SupportsVision: true},
	},
	"codex": {
		"gpt-5-codex": {Name: "GPT-5 Codex", ContextLength: 400000, OutputLength: 128000, SupportsVision: true},
		"gpt-5":       {Name: "GPT-5", ContextLength: 400000, OutputLength: 128000, SupportsVision: true},
	},
	"gemini": {
		"gemini-2.5-pro":   {Name: "Gemini 2.5 Pro", ContextLength: 1048576, OutputLength: 65536, SupportsVision: true},
		"gemini-2.5-flash": {Name: "Gemini 2.5 Flash", ContextLength: 1048576, OutputLength: 65536, SupportsVision: true},
	},
	"openrouter": {
		"anthropic/claude-sonnet-4.5": {Name: "Claude Sonnet 4.5 via OpenRouter", ContextLength: 200000, OutputLength: 64000},
	},
	"deepseek": {
		"deepseek-chat":     {Name: "DeepSeek V3", ContextLength: 128000, OutputLength: 8192},
		"deepseek-reasoner": {Name: "DeepSeek R1", ContextLength: 128000, OutputLength: 64000},
	},
	"moonshot": {
		"kimi-k2.5": {Name: "Kimi K2.5", ContextLength: 256000, OutputLength: 32768},
	},
	"dashscope": {
		"qwen-plus": {Name: "Qwen Plus", ContextLength: 131072, OutputLength: 8192},
	},
	"groq": {
		"llama-3.3-70b-versatile": {Name: "Llama 3.3 70B", ContextLength: 131072, OutputLength: 32768},
	},
	"mock": {
		"default": {Name: "Scripted replies", Description: "replays <baseURL>/default.yaml"},
	},
}
