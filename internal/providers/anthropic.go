package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// AnthropicGenerator speaks the Anthropic Messages API.
type AnthropicGenerator struct {
	httpClient *http.Client
	artifacts  schema.ArtifactResolver
}

func NewAnthropicGenerator(client *http.Client, artifacts schema.ArtifactResolver) *AnthropicGenerator {
	return &AnthropicGenerator{httpClient: client, artifacts: artifacts}
}

func (g *AnthropicGenerator) APIType() schema.APIType { return schema.APIAnthropic }

func (g *AnthropicGenerator) GenerateStreaming(
	ctx context.Context,
	req schema.GenRequest,
	recv schema.Receiver,
) (schema.GenResult, error) {
	resp, err := g.send(ctx, req, true)
	if err != nil {
		return schema.GenResult{Usage: schema.NoUsage()}, err
	}
	defer resp.Body.Close()

	c := &anthropicStream{blocks: map[int]*anthropicBlockState{}, usage: map[string]any{}}
	return runStream(ctx, recv, req.Provider.Name, req.Genseq, resp.Body, c.handle)
}

func (g *AnthropicGenerator) GenerateBatch(
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
	return parseAnthropicResponse(req.Genseq, raw)
}

func (g *AnthropicGenerator) send(ctx context.Context, req schema.GenRequest, stream bool) (*http.Response, error) {
	model, err := checkRequest(req)
	if err != nil {
		return nil, err
	}
	key, err := apiKey(req.Provider)
	if err != nil {
		return nil, err
	}
	body := g.buildRequest(ctx, req, model, stream)
	url := baseURL(req.Provider, anthropicBaseURL) + "/messages"
	headers := map[string]string{
		"x-api-key":         key,
		"anthropic-version": anthropicVersion,
	}
	if stream {
		headers["Accept"] = "text/event-stream"
	}
	return postJSON(ctx, g.httpClient, req.Provider, url, headers, body)
}

// ---------------------------------------------------------------------------
// Request building
// ---------------------------------------------------------------------------

func (g *AnthropicGenerator) buildRequest(ctx context.Context, req schema.GenRequest, model string, stream bool) map[string]any {
	params := req.Agent.ModelParams.ForAPI(schema.APIAnthropic)
	caching := supportsPromptCaching(req.Provider)

	body := map[string]any{
		"model":      model,
		"max_tokens": schema.EffectiveMaxTokens(req.Agent, req.Provider),
		"messages":   g.convertMessages(ctx, req.Context),
	}
	if stream {
		body["stream"] = true
	}
	if req.SystemPrompt != "" {
		if caching {
			body["system"] = []any{map[string]any{
				"type":          "text",
				"text":          req.SystemPrompt,
				"cache_control": map[string]any{"type": "ephemeral"},
			}}
		} else {
			body["system"] = req.SystemPrompt
		}
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"name":         t.Name,
				"description":  t.Description,
				"input_schema": t.ParametersOrEmpty(),
			})
		}
		if caching {
			tools[len(tools)-1]["cache_control"] = map[string]any{"type": "ephemeral"}
		}
		body["tools"] = tools
	}

	if params.Temperature != nil {
		body["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		body["top_p"] = *params.TopP
	}
	if params.TopK != nil {
		body["top_k"] = *params.TopK
	}
	if len(params.StopSequences) > 0 {
		body["stop_sequences"] = params.StopSequences
	}
	if params.ThinkingBudget > 0 {
		body["thinking"] = map[string]any{"type": "enabled", "budget_tokens": params.ThinkingBudget}
	}
	applyModelOverrides(req.Provider, model, body)
	return body
}

// anthropicThinkingData is the continuation data kept for a thinking block.
type anthropicThinkingData struct {
	Signature string `json:"signature,omitempty"`
	Redacted  string `json:"redacted,omitempty"`
}

func newAnthropicProviderData(d anthropicThinkingData) *schema.ProviderData {
	if d.Signature == "" && d.Redacted == "" {
		return nil
	}
	raw, _ := json.Marshal(d)
	return &schema.ProviderData{Provider: string(schema.APIAnthropic), Raw: raw}
}

// anthropicTurns builds the messages array, concatenating content blocks of
// consecutive same-role entries since the API requires strict alternation.
type anthropicTurns struct {
	out []map[string]any
}

func (t *anthropicTurns) add(role string, block map[string]any) {
	if n := len(t.out); n > 0 && t.out[n-1]["role"] == role {
		t.out[n-1]["content"] = append(t.out[n-1]["content"].([]any), block)
		return
	}
	t.out = append(t.out, map[string]any{"role": role, "content": []any{block}})
}

func (t *anthropicTurns) text(role, text string) {
	if text == "" {
		return
	}
	t.add(role, map[string]any{"type": "text", "text": text})
}

// convertMessages converts the dialog context to Anthropic's wire format.
func (g *AnthropicGenerator) convertMessages(ctx context.Context, msgs []schema.Message) []map[string]any {
	var turns anthropicTurns
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
			var d anthropicThinkingData
			raw := m.ProviderData.For(string(schema.APIAnthropic))
			if raw == nil || json.Unmarshal(raw, &d) != nil {
				// Unsigned thinking is rejected by the API.
				continue
			}
			switch {
			case d.Redacted != "":
				turns.add("assistant", map[string]any{"type": "redacted_thinking", "data": d.Redacted})
			case d.Signature != "":
				turns.add("assistant", map[string]any{
					"type":      "thinking",
					"thinking":  m.Content,
					"signature": d.Signature,
				})
			}

		case schema.MsgFuncCall:
			turns.add("assistant", map[string]any{
				"type":  "tool_use",
				"id":    m.ID,
				"name":  m.Name,
				"input": argsObject(m.Name, m.Arguments),
			})
			tracker.sawCall(m.ID)

		case schema.MsgFuncResult:
			if !tracker.claim(m.ID) {
				turns.text("user", orphanedToolOutput(m))
				continue
			}
			turns.add("user", map[string]any{
				"type":        "tool_result",
				"tool_use_id": m.ID,
				"content":     g.resultBlocks(ctx, m),
			})

		case schema.MsgTellaskResult:
			id, correlated := resultCallID(m)
			switch {
			case correlated && tracker.claim(id):
				turns.add("user", map[string]any{
					"type":        "tool_result",
					"tool_use_id": id,
					"content":     resultText(m),
					"is_error":    m.Status == schema.TellaskFailed,
				})
			case correlated:
				turns.text("user", orphanedToolOutput(m))
			default:
				tracker.sawOther()
				turns.text("user", tellaskText(m))
			}

		default:
			slog.Debug("skipping unknown message type", "provider", "anthropic", "type", m.Type)
		}
	}
	return turns.out
}

func (g *AnthropicGenerator) resultBlocks(ctx context.Context, m schema.Message) []any {
	if !hasImageItems(m) {
		return []any{map[string]any{"type": "text", "text": resultText(m)}}
	}
	var blocks []any
	for _, p := range resolveResultParts(ctx, g.artifacts, m) {
		if p.isImage() {
			blocks = append(blocks, map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": p.MimeType,
					"data":       p.Data,
				},
			})
			continue
		}
		blocks = append(blocks, map[string]any{"type": "text", "text": p.Text})
	}
	return blocks
}

// ---------------------------------------------------------------------------
// Stream consumer
// ---------------------------------------------------------------------------

type anthropicContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	Signature string          `json:"signature"`
	Data      string          `json:"data"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

type anthropicStreamEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message *struct {
		ID    string         `json:"id"`
		Model string         `json:"model"`
		Usage map[string]any `json:"usage"`
	} `json:"message"`
	ContentBlock *anthropicContentBlock `json:"content_block"`
	Delta        *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		Signature   string `json:"signature"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Usage map[string]any `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type anthropicBlockState struct {
	kind string
	data anthropicThinkingData
}

// anthropicStream holds the per-call state of an Anthropic event stream.
type anthropicStream struct {
	blocks map[int]*anthropicBlockState
	usage  map[string]any
}

func (c *anthropicStream) handle(st *streamState, f sseFrame) error {
	var ev anthropicStreamEvent
	if err := json.Unmarshal([]byte(f.Data), &ev); err != nil {
		return fmt.Errorf("%w: anthropic event: %v", schema.ErrMalformedPayload, err)
	}

	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			st.captureModel(ev.Message.Model)
			c.mergeUsage(st, ev.Message.Usage)
		}

	case "content_block_start":
		if ev.ContentBlock == nil {
			return nil
		}
		return c.startBlock(st, ev.Index, ev.ContentBlock)

	case "content_block_delta":
		if ev.Delta == nil {
			return nil
		}
		return c.delta(st, ev)

	case "content_block_stop":
		return c.stopBlock(st, ev.Index)

	case "message_delta":
		c.mergeUsage(st, ev.Usage)

	case "message_stop", "ping":

	case "error":
		verr := &schema.VendorError{Provider: st.provider}
		if ev.Error != nil {
			verr.Type, verr.Message = ev.Error.Type, ev.Error.Message
		}
		return verr

	default:
		slog.Debug("skipping stream event", "provider", st.provider, "type", ev.Type)
	}
	return nil
}

func (c *anthropicStream) startBlock(st *streamState, index int, b *anthropicContentBlock) error {
	c.blocks[index] = &anthropicBlockState{kind: b.Type}
	key := strconv.Itoa(index)

	switch b.Type {
	case "text":
		return st.sayingChunk(b.Text)
	case "thinking":
		c.blocks[index].data.Signature = b.Signature
		return st.thinkingChunk(b.Thinking)
	case "redacted_thinking":
		c.blocks[index].data.Redacted = b.Data
		return st.openThinking()
	case "tool_use":
		if err := st.beginTool(key, b.ID, b.Name); err != nil {
			return err
		}
		if input := string(b.Input); input != "" && input != "{}" && input != "null" {
			st.setToolArgs(key, input)
		}
	default:
		slog.Debug("skipping content block", "provider", st.provider, "type", b.Type)
	}
	return nil
}

func (c *anthropicStream) delta(st *streamState, ev anthropicStreamEvent) error {
	key := strconv.Itoa(ev.Index)
	switch ev.Delta.Type {
	case "text_delta":
		return st.sayingChunk(ev.Delta.Text)
	case "thinking_delta":
		return st.thinkingChunk(ev.Delta.Thinking)
	case "signature_delta":
		if b, ok := c.blocks[ev.Index]; ok {
			b.data.Signature += ev.Delta.Signature
		}
	case "input_json_delta":
		st.appendToolArgs(key, ev.Delta.PartialJSON)
	default:
		slog.Debug("skipping content delta", "provider", st.provider, "type", ev.Delta.Type)
	}
	return nil
}

func (c *anthropicStream) stopBlock(st *streamState, index int) error {
	b, ok := c.blocks[index]
	if !ok {
		return nil
	}
	switch b.kind {
	case "text":
		return st.closeSaying()
	case "thinking", "redacted_thinking":
		return st.closeThinking(newAnthropicProviderData(b.data))
	case "tool_use":
		return st.completeTool(strconv.Itoa(index))
	}
	return nil
}

// mergeUsage folds a partial usage report into the running one; the
// message_start and message_delta events each carry part of it.
func (c *anthropicStream) mergeUsage(st *streamState, u map[string]any) {
	if len(u) == 0 {
		return
	}
	for k, v := range u {
		if v != nil {
			c.usage[k] = v
		}
	}
	st.captureUsage(NormalizeUsage(c.usage))
}

// ---------------------------------------------------------------------------
// Batch response
// ---------------------------------------------------------------------------

type anthropicRespBody struct {
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      map[string]any          `json:"usage"`
}

func parseAnthropicResponse(genseq int, raw []byte) ([]schema.Message, schema.GenResult, error) {
	var body anthropicRespBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, schema.GenResult{Usage: schema.NoUsage()},
			fmt.Errorf("%w: anthropic response: %v", schema.ErrMalformedPayload, err)
	}

	c := batchCollector{genseq: genseq}
	var data anthropicThinkingData
	for _, b := range body.Content {
		switch b.Type {
		case "thinking":
			c.addThinking(b.Thinking)
			data.Signature = b.Signature
		case "redacted_thinking":
			data.Redacted = b.Data
		case "text":
			c.addSaying(b.Text)
		case "tool_use":
			args := string(b.Input)
			if args == "null" {
				args = ""
			}
			c.addCall(b.ID, b.Name, args)
		}
	}
	c.thinkingData = newAnthropicProviderData(data)

	msgs, err := c.messages()
	res := schema.GenResult{Usage: NormalizeUsage(body.Usage), Model: body.Model}
	return msgs, res, err
}
