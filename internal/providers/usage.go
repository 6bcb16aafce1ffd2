package providers

import (
	"encoding/json"
	"math"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

// usageKeys is one vendor's naming of the token counters.
type usageKeys struct {
	prompt     string
	completion string
	total      string
	// promptExtra are folded into the prompt count (cache accounting).
	promptExtra []string
	// completionExtra are folded into the completion count (reasoning tokens
	// some vendors report outside the candidate count).
	completionExtra []string
}

var usageFamilies = []usageKeys{
	{prompt: "promptTokens", completion: "completionTokens", total: "totalTokens"},
	{prompt: "prompt_tokens", completion: "completion_tokens", total: "total_tokens"},
	{
		prompt: "input_tokens", completion: "output_tokens", total: "total_tokens",
		promptExtra: []string{"cache_creation_input_tokens", "cache_read_input_tokens"},
	},
	{
		prompt: "promptTokenCount", completion: "candidatesTokenCount", total: "totalTokenCount",
		completionExtra: []string{"thoughtsTokenCount"},
	},
}

// NormalizeUsage converts a vendor usage payload into UsageStats. The result
// is unavailable unless both a prompt and a completion count are numbers.
func NormalizeUsage(raw map[string]any) schema.UsageStats {
	if len(raw) == 0 {
		return schema.NoUsage()
	}
	for _, keys := range usageFamilies {
		prompt, okP := usageNumber(raw[keys.prompt])
		completion, okC := usageNumber(raw[keys.completion])
		if !okP || !okC {
			continue
		}
		for _, k := range keys.promptExtra {
			if n, ok := usageNumber(raw[k]); ok {
				prompt += n
			}
		}
		for _, k := range keys.completionExtra {
			if n, ok := usageNumber(raw[k]); ok {
				completion += n
			}
		}
		total, ok := usageNumber(raw[keys.total])
		if !ok {
			total = prompt + completion
		}
		return schema.UsageStats{
			Kind:             schema.UsageAvailable,
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      total,
		}
	}
	return schema.NoUsage()
}

// normalizeUsageJSON decodes raw and normalizes it.
func normalizeUsageJSON(raw json.RawMessage) schema.UsageStats {
	if len(raw) == 0 {
		return schema.NoUsage()
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return schema.NoUsage()
	}
	return NormalizeUsage(m)
}

func usageNumber(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}
