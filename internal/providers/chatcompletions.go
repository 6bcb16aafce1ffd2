package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

// ChatCompletionsGenerator makes direct HTTP calls to any OpenAI-compatible
// Chat Completions endpoint.
type ChatCompletionsGenerator struct {
	httpClient *http.Client
	artifacts  schema.ArtifactResolver
}

func NewChatCompletionsGenerator(client *http.Client, artifacts schema.ArtifactResolver) *ChatCompletionsGenerator {
	return &ChatCompletionsGenerator{httpClient: client, artifacts: artifacts}
}

func (g *ChatCompletionsGenerator) APIType() schema.APIType { return schema.APIOpenAICompatible }

func (g *ChatCompletionsGenerator) GenerateStreaming(
	ctx context.Context,
	req schema.GenRequest,
	recv schema.Receiver,
) (schema.GenResult, error) {
	resp, err := g.send(ctx, req, true)
	if err != nil {
		return schema.GenResult{Usage: schema.NoUsage()}, err
	}
	defer resp.Body.Close()
	return runStream(ctx, recv, req.Provider.Name, req.Genseq, resp.Body, handleChatChunk)
}

func (g *ChatCompletionsGenerator) GenerateBatch(
	ctx context.Context,
	req schema.GenRequest,
) ([]schema.Message, schema.GenResult, error) {
	resp, err := g.send(ctx, req, false)
	if err != nil {
		return nil, schema.GenResult{Usage: schema.NoUsage()}, err
	}
	raw, err := readBody(ctx, req.Provider.Name, resp)
	if err != nil {
		return nil, schema.GenResult{Usage: schema.NoUsage()}, err
	}
	return parseChatResponse(req.Genseq, req.Provider.Name, raw)
}

func (g *ChatCompletionsGenerator) send(ctx context.Context, req schema.GenRequest, stream bool) (*http.Response, error) {
	model, err := checkRequest(req)
	if err != nil {
		return nil, err
	}
	key, err := apiKey(req.Provider)
	if err != nil {
		return nil, err
	}

	base := req.Provider.BaseURL
	if base == "" {
		if spec := VendorFor(req.Provider); spec != nil {
			base = spec.DefaultBaseURL
		}
	}
	if base == "" {
		base = openAIBaseURL
	}
	url := strings.TrimRight(base, "/") + "/chat/completions"

	body := g.buildRequest(ctx, req, model, stream)
	headers := map[string]string{"Authorization": "Bearer " + key}
	if stream {
		headers["Accept"] = "text/event-stream"
	}
	return postJSON(ctx, g.httpClient, req.Provider, url, headers, body)
}

// ---------------------------------------------------------------------------
// Request building
// ---------------------------------------------------------------------------

func (g *ChatCompletionsGenerator) buildRequest(ctx context.Context, req schema.GenRequest, model string, stream bool) map[string]any {
	params := req.Agent.ModelParams.ForAPI(schema.APIOpenAICompatible)
	caching := supportsPromptCaching(req.Provider)

	messages := g.convertMessages(ctx, req.Context)
	if req.SystemPrompt != "" {
		system := map[string]any{"role": "system", "content": req.SystemPrompt}
		if caching {
			system["content"] = []any{map[string]any{
				"type":          "text",
				"text":          req.SystemPrompt,
				"cache_control": map[string]any{"type": "ephemeral"},
			}}
		}
		messages = append([]map[string]any{system}, messages...)
	}

	body := map[string]any{
		"model":      model,
		"messages":   messages,
		"max_tokens": schema.EffectiveMaxTokens(req.Agent, req.Provider),
	}
	if stream {
		body["stream"] = true
		body["stream_options"] = map[string]any{"include_usage": true}
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.ParametersOrEmpty(),
				},
			})
		}
		if caching {
			tools[len(tools)-1]["cache_control"] = map[string]any{"type": "ephemeral"}
		}
		body["tools"] = tools
		body["tool_choice"] = "auto"
		if params.ParallelToolCalls != nil {
			body["parallel_tool_calls"] = *params.ParallelToolCalls
		}
	}

	if params.Temperature != nil {
		body["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		body["top_p"] = *params.TopP
	}
	if len(params.StopSequences) > 0 {
		body["stop"] = params.StopSequences
	}
	if params.PresencePenalty != nil {
		body["presence_penalty"] = *params.PresencePenalty
	}
	if params.FrequencyPenalty != nil {
		body["frequency_penalty"] = *params.FrequencyPenalty
	}
	if params.Seed != nil {
		body["seed"] = *params.Seed
	}
	if params.ReasoningEffort != "" {
		body["reasoning_effort"] = params.ReasoningEffort
	}
	applyModelOverrides(req.Provider, model, body)
	return body
}

// chatTurns accumulates wire messages, merging adjacent plain-text entries of
// the same role. Tool entries are never merged.
type chatTurns struct {
	out []map[string]any
	// mergeable marks entries whose content is a plain string.
	mergeable []bool
}

func (t *chatTurns) text(role, text string) {
	if text == "" {
		return
	}
	if n := len(t.out); n > 0 && t.mergeable[n-1] && t.out[n-1]["role"] == role {
		t.out[n-1]["content"] = t.out[n-1]["content"].(string) + "\n" + text
		return
	}
	t.out = append(t.out, map[string]any{"role": role, "content": text})
	t.mergeable = append(t.mergeable, true)
}

func (t *chatTurns) add(msg map[string]any) {
	t.out = append(t.out, msg)
	t.mergeable = append(t.mergeable, false)
}

// convertMessages converts the dialog context to the Chat Completions wire
// format. Thinking is never replayed.
func (g *ChatCompletionsGenerator) convertMessages(ctx context.Context, msgs []schema.Message) []map[string]any {
	var turns chatTurns
	var tracker callTracker

	for _, m := range NormalizeToolCallPairs(msgs) {
		switch m.Type {
		case schema.MsgEnvironment, schema.MsgPrompting:
			tracker.sawOther()
			turns.text("user", m.Content)

		case schema.MsgTransientGuide, schema.MsgSaying:
			tracker.sawOther()
			turns.text("assistant", m.Content)

		case schema.MsgThinking:
			tracker.sawOther()

		case schema.MsgFuncCall:
			args := strings.TrimSpace(m.Arguments)
			if args == "" {
				args = "{}"
			}
			turns.add(map[string]any{
				"role": "assistant",
				// Strict providers require "content" even for tool-call-only messages.
				"content": nil,
				"tool_calls": []any{map[string]any{
					"id":   m.ID,
					"type": "function",
					"function": map[string]any{
						"name":      m.Name,
						"arguments": args,
					},
				}},
			})
			tracker.sawCall(m.ID)

		case schema.MsgFuncResult:
			if !tracker.claim(m.ID) {
				turns.text("user", orphanedToolOutput(m))
				continue
			}
			g.toolResult(ctx, &turns, m)

		case schema.MsgTellaskResult:
			id, correlated := resultCallID(m)
			switch {
			case correlated && tracker.claim(id):
				turns.add(map[string]any{"role": "tool", "tool_call_id": id, "content": resultText(m)})
			case correlated:
				turns.text("user", orphanedToolOutput(m))
			default:
				tracker.sawOther()
				turns.text("user", tellaskText(m))
			}

		default:
			slog.Debug("skipping unknown message type", "provider", "openai-compatible", "type", m.Type)
		}
	}
	return turns.out
}

// toolResult appends a tool message. Images follow it as a user message,
// since tool content must be text for most compatible servers.
func (g *ChatCompletionsGenerator) toolResult(ctx context.Context, turns *chatTurns, m schema.Message) {
	if !hasImageItems(m) {
		turns.add(map[string]any{"role": "tool", "tool_call_id": m.ID, "name": m.Name, "content": resultText(m)})
		return
	}

	var texts []string
	images := []any{map[string]any{
		"type": "text",
		"text": fmt.Sprintf("[images from tool %s id=%s]", m.Name, m.ID),
	}}
	for _, p := range resolveResultParts(ctx, g.artifacts, m) {
		if p.isImage() {
			images = append(images, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": p.dataURL()},
			})
			continue
		}
		texts = append(texts, p.Text)
	}
	turns.add(map[string]any{"role": "tool", "tool_call_id": m.ID, "name": m.Name, "content": strings.Join(texts, "\n")})
	if len(images) > 1 {
		turns.add(map[string]any{"role": "user", "content": images})
	}
}

// ---------------------------------------------------------------------------
// Stream consumer
// ---------------------------------------------------------------------------

type chatToolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content          *string             `json:"content"`
			ReasoningContent *string             `json:"reasoning_content"`
			Reasoning        *string             `json:"reasoning"`
			ToolCalls        []chatToolCallDelta `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage json.RawMessage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func handleChatChunk(st *streamState, f sseFrame) error {
	if strings.TrimSpace(f.Data) == "[DONE]" {
		return errStreamDone
	}
	var chunk chatChunk
	if err := json.Unmarshal([]byte(f.Data), &chunk); err != nil {
		return fmt.Errorf("%w: chat completion chunk: %v", schema.ErrMalformedPayload, err)
	}
	if chunk.Error != nil {
		return &schema.VendorError{Provider: st.provider, Type: chunk.Error.Type, Message: chunk.Error.Message}
	}
	st.captureModel(chunk.Model)
	st.captureUsage(normalizeUsageJSON(chunk.Usage))

	for _, choice := range chunk.Choices {
		if choice.Index != 0 {
			continue
		}
		d := choice.Delta
		for _, r := range []*string{d.ReasoningContent, d.Reasoning} {
			if r != nil && *r != "" {
				if err := st.thinkingChunk(*r); err != nil {
					return err
				}
			}
		}
		if d.Content != nil && *d.Content != "" {
			// Reasoning has no end marker; the first content delta ends it.
			if err := st.closeThinking(nil); err != nil {
				return err
			}
			if err := st.sayingChunk(*d.Content); err != nil {
				return err
			}
		}
		for _, tc := range d.ToolCalls {
			key := strconv.Itoa(tc.Index)
			if err := st.beginTool(key, tc.ID, tc.Function.Name); err != nil {
				return err
			}
			st.appendToolArgs(key, tc.Function.Arguments)
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			if err := st.closeNarration(); err != nil {
				return err
			}
			if err := st.flushTools(); err != nil {
				return err
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Batch response
// ---------------------------------------------------------------------------

// chatRespBody is the subset of the chat completion response we care about.
type chatRespBody struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content          any    `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			Reasoning        string `json:"reasoning"`
			ToolCalls        []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage json.RawMessage `json:"usage"`
}

func parseChatResponse(genseq int, provider string, raw []byte) ([]schema.Message, schema.GenResult, error) {
	noUsage := schema.GenResult{Usage: schema.NoUsage()}
	var body chatRespBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, noUsage, fmt.Errorf("%w: chat completion response: %v", schema.ErrMalformedPayload, err)
	}
	if len(body.Choices) == 0 {
		return nil, noUsage, fmt.Errorf("%w: %s returned no choices", schema.ErrMalformedPayload, provider)
	}

	msg := body.Choices[0].Message
	c := batchCollector{genseq: genseq}
	c.addThinking(msg.ReasoningContent)
	c.addThinking(msg.Reasoning)
	c.addSaying(contentText(msg.Content))
	for _, tc := range msg.ToolCalls {
		c.addCall(tc.ID, tc.Function.Name, tc.Function.Arguments)
	}

	msgs, err := c.messages()
	return msgs, schema.GenResult{Usage: normalizeUsageJSON(body.Usage), Model: body.Model}, err
}

// contentText flattens a message content that is either a string or an
// array of typed parts.
func contentText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var sb strings.Builder
		for _, part := range c {
			if m, ok := part.(map[string]any); ok {
				if s, ok := m["text"].(string); ok {
					sb.WriteString(s)
				}
			}
		}
		return sb.String()
	}
	return ""
}
