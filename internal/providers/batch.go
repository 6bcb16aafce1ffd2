package providers

import (
	"fmt"
	"strings"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

// batchCall is a tool call extracted from a non-streaming response.
type batchCall struct {
	ID        string
	Name      string
	Arguments string
	Data      *schema.ProviderData
}

// batchCollector accumulates the pieces of a non-streaming response into the
// same message shapes the streaming path produces: at most one thinking
// message, at most one saying message, then the tool calls.
type batchCollector struct {
	genseq       int
	thinking     strings.Builder
	thinkingData *schema.ProviderData
	saying       strings.Builder
	calls        []batchCall
}

func (c *batchCollector) addThinking(text string) { c.thinking.WriteString(text) }
func (c *batchCollector) addSaying(text string)   { c.saying.WriteString(text) }

func (c *batchCollector) addCall(id, name, args string) {
	c.calls = append(c.calls, batchCall{ID: id, Name: name, Arguments: args})
}

// setLastCallData attaches vendor continuation data to the latest call.
func (c *batchCollector) setLastCallData(data *schema.ProviderData) {
	if n := len(c.calls); n > 0 {
		c.calls[n-1].Data = data
	}
}

func (c *batchCollector) messages() ([]schema.Message, error) {
	var out []schema.Message
	if c.thinking.Len() > 0 || c.thinkingData != nil {
		out = append(out, schema.NewThinkingMessage(c.genseq, c.thinking.String(), c.thinkingData))
	}
	if c.saying.Len() > 0 {
		out = append(out, schema.NewSayingMessage(c.genseq, c.saying.String()))
	}
	for i, call := range c.calls {
		if call.Name == "" {
			return nil, fmt.Errorf("%w: tool call %d has no name", schema.ErrMalformedPayload, i)
		}
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d_%d", c.genseq, i)
		}
		args, err := normalizeToolArgs(call.Name, call.Arguments)
		if err != nil {
			return nil, err
		}
		msg := schema.NewFuncCallMessage(c.genseq, id, call.Name, args)
		msg.ProviderData = call.Data
		out = append(out, msg)
	}
	return out, nil
}
