package schema

// UsageKind tells whether a vendor reported token accounting.
type UsageKind string

const (
	UsageUnavailable UsageKind = "unavailable"
	UsageAvailable   UsageKind = "available"
)

// UsageStats is the canonical token accounting of one generation call.
type UsageStats struct {
	Kind             UsageKind `json:"kind"`
	PromptTokens     int       `json:"promptTokens,omitempty"`
	CompletionTokens int       `json:"completionTokens,omitempty"`
	TotalTokens      int       `json:"totalTokens,omitempty"`
}

// NoUsage is the "unavailable" usage value.
func NoUsage() UsageStats { return UsageStats{Kind: UsageUnavailable} }

func (u UsageStats) Available() bool { return u.Kind == UsageAvailable }
