package providers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

// normalizeToolArgs validates tool-call arguments before they are handed to
// the receiver. Empty or null arguments become "{}". Truncated objects are
// repaired when possible; anything else, including valid JSON that is not an
// object, is a malformed payload.
func normalizeToolArgs(tool, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return "{}", nil
	}
	if json.Valid([]byte(raw)) {
		if raw[0] != '{' {
			return "", fmt.Errorf("%w: arguments of tool %q are not a JSON object", schema.ErrMalformedPayload, tool)
		}
		return raw, nil
	}
	repaired, err := repairJSON(raw)
	if err != nil {
		return "", fmt.Errorf("%w: arguments of tool %q: %v", schema.ErrMalformedPayload, tool, err)
	}
	slog.Warn("repaired malformed tool arguments", "tool", tool)
	return repaired, nil
}

// repairJSON retries parsing after stripping trailing garbage. Some models
// emit truncated tool arguments.
func repairJSON(raw string) (string, error) {
	var out map[string]any

	// Attempt 1: trim trailing non-JSON characters and close the object.
	stripped := strings.TrimRight(raw, " \t\n\r}]")
	if !strings.HasSuffix(stripped, "}") {
		stripped += "}"
	}
	if err := json.Unmarshal([]byte(stripped), &out); err == nil {
		return stripped, nil
	}

	// Attempt 2: find the last complete JSON object.
	if i := strings.LastIndex(raw, "}"); i >= 0 {
		if err := json.Unmarshal([]byte(raw[:i+1]), &out); err == nil {
			return raw[:i+1], nil
		}
	}

	if len(raw) > 200 {
		raw = raw[:200] + "…"
	}
	return "", fmt.Errorf("cannot repair JSON: %s", raw)
}

// argsObject decodes stored tool-call arguments into an object for vendors
// that take arguments as JSON rather than text.
func argsObject(tool, raw string) json.RawMessage {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage("{}")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		slog.Warn("failed to parse stored tool arguments", "tool", tool, "err", err)
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}
