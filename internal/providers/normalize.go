package providers

import (
	"fmt"
	"strings"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

// orphanedToolOutputMarker prefixes tool results that cannot be sent in the
// vendor's native tool-result shape.
const orphanedToolOutputMarker = "[orphaned tool output]"

// NormalizeToolCallPairs regroups each run of tool calls followed by a run of
// tool results so that every result directly follows the call with its id.
//
// Results are matched per id in FIFO order. Results with no matching call are
// emitted after the run in their original order. Other messages pass through
// untouched, and the output always holds exactly the input messages.
func NormalizeToolCallPairs(msgs []schema.Message) []schema.Message {
	out := make([]schema.Message, 0, len(msgs))
	for i := 0; i < len(msgs); {
		if !msgs[i].IsToolCall() {
			out = append(out, msgs[i])
			i++
			continue
		}

		callsEnd := i
		for callsEnd < len(msgs) && msgs[callsEnd].IsToolCall() {
			callsEnd++
		}
		resultsEnd := callsEnd
		for resultsEnd < len(msgs) && msgs[resultsEnd].IsToolResult() {
			resultsEnd++
		}

		calls := msgs[i:callsEnd]
		results := msgs[callsEnd:resultsEnd]

		queues := make(map[string][]int, len(results))
		for idx, r := range results {
			queues[r.ID] = append(queues[r.ID], idx)
		}
		used := make([]bool, len(results))

		for _, call := range calls {
			out = append(out, call)
			if q := queues[call.ID]; len(q) > 0 {
				out = append(out, results[q[0]])
				used[q[0]] = true
				queues[call.ID] = q[1:]
			}
		}
		for idx, r := range results {
			if !used[idx] {
				out = append(out, r)
			}
		}
		i = resultsEnd
	}
	return out
}

// callTracker remembers the id of the tool call emitted immediately before
// the current position of a request being built.
type callTracker struct {
	lastCallID string
}

func (t *callTracker) sawCall(id string) { t.lastCallID = id }

// sawOther records that something other than a tool call was emitted.
func (t *callTracker) sawOther() { t.lastCallID = "" }

// claim reports whether a result with id may be sent natively, consuming the
// pending call if so.
func (t *callTracker) claim(id string) bool {
	if id == "" || id != t.lastCallID {
		t.lastCallID = ""
		return false
	}
	t.lastCallID = ""
	return true
}

// resultCallID returns the id a result-like message correlates through, and
// whether the message is result-like at all.
func resultCallID(m schema.Message) (string, bool) {
	switch m.Type {
	case schema.MsgFuncResult:
		return m.ID, true
	case schema.MsgTellaskResult:
		return m.CallID, m.CallID != ""
	}
	return "", false
}

// orphanedToolOutput renders a tool result as plain user text.
func orphanedToolOutput(m schema.Message) string {
	id, _ := resultCallID(m)
	name := m.Name
	if m.Type == schema.MsgTellaskResult && name == "" {
		name = "tellask"
	}
	return fmt.Sprintf("%s name=%s id=%s\n%s", orphanedToolOutputMarker, name, id, resultText(m))
}

// emptyResultText stands in for a result with no output; some vendors reject
// empty text blocks.
const emptyResultText = "(no output)"

// resultText is the plain-text body of a result message, including any text
// items of a multipart result. It is never empty.
func resultText(m schema.Message) string {
	if m.Type == schema.MsgTellaskResult {
		if m.Status != "" {
			return fmt.Sprintf("[%s] %s", m.Status, m.Content)
		}
		return nonEmptyResult(m.Content)
	}
	if len(m.Items) == 0 {
		return nonEmptyResult(m.Content)
	}
	var parts []string
	if m.Content != "" {
		parts = append(parts, m.Content)
	}
	for _, it := range m.Items {
		switch it.Type {
		case schema.ItemText:
			if it.Text != "" {
				parts = append(parts, it.Text)
			}
		case schema.ItemImage:
			parts = append(parts, fmt.Sprintf("[image: %s]", artifactLabel(it)))
		}
	}
	return nonEmptyResult(strings.Join(parts, "\n"))
}

func nonEmptyResult(text string) string {
	if text == "" {
		return emptyResultText
	}
	return text
}

// tellaskText renders an uncorrelated delegated-task result as user text.
func tellaskText(m schema.Message) string {
	return fmt.Sprintf("[tellask result: %s]\n%s", m.Status, m.Content)
}
