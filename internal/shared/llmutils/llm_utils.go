package llmutils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

var reThink = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Truncate shortens a string to at most n characters, adding "..." if it was truncated.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// StripThink removes <think>…</think> blocks that some models embed in
// their output text.
func StripThink(s string) string {
	return reThink.ReplaceAllString(s, "")
}

// StringOrDefault returns s if it's not empty, or def if s is empty.
func StringOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// CallHint renders one tool call as a short hint, e.g. search("weather in London").
// The first string argument found in the JSON arguments is shown.
func CallHint(name, arguments string) string {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return name
	}
	var firstVal string
	for _, v := range args {
		if s, ok := v.(string); ok {
			firstVal = s
			break
		}
	}
	if firstVal == "" {
		return name
	}
	if len(firstVal) > 40 {
		firstVal = firstVal[:40] + "…"
	}
	return fmt.Sprintf("%s(%q)", name, firstVal)
}

// ToolHint joins the hints of every func_call message in msgs.
func ToolHint(msgs []schema.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.IsToolCall() {
			parts = append(parts, CallHint(m.Name, m.Arguments))
		}
	}
	return strings.Join(parts, ", ")
}
