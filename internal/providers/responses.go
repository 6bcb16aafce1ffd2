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

const openAIBaseURL = "https://api.openai.com/v1"

// ResponsesGenerator speaks the OpenAI Responses API.
type ResponsesGenerator struct {
	httpClient *http.Client
	artifacts  schema.ArtifactResolver
}

func NewResponsesGenerator(client *http.Client, artifacts schema.ArtifactResolver) *ResponsesGenerator {
	return &ResponsesGenerator{httpClient: client, artifacts: artifacts}
}

func (g *ResponsesGenerator) APIType() schema.APIType { return schema.APIOpenAI }

func (g *ResponsesGenerator) GenerateStreaming(
	ctx context.Context,
	req schema.GenRequest,
	recv schema.Receiver,
) (schema.GenResult, error) {
	resp, err := g.send(ctx, req, true)
	if err != nil {
		return schema.GenResult{Usage: schema.NoUsage()}, err
	}
	defer resp.Body.Close()

	c := newResponsesStream(schema.APIOpenAI)
	return runStream(ctx, recv, req.Provider.Name, req.Genseq, resp.Body, c.handle)
}

func (g *ResponsesGenerator) GenerateBatch(
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
	return parseResponsesOutput(req.Genseq, schema.APIOpenAI, raw)
}

func (g *ResponsesGenerator) send(ctx context.Context, req schema.GenRequest, stream bool) (*http.Response, error) {
	model, err := checkRequest(req)
	if err != nil {
		return nil, err
	}
	key, err := apiKey(req.Provider)
	if err != nil {
		return nil, err
	}

	params := req.Agent.ModelParams.ForAPI(schema.APIOpenAI)
	body := responsesPayload(ctx, g.artifacts, req, model, schema.APIOpenAI, params)
	body["max_output_tokens"] = schema.EffectiveMaxTokens(req.Agent, req.Provider)
	if stream {
		body["stream"] = true
	}
	if params.Temperature != nil {
		body["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		body["top_p"] = *params.TopP
	}
	applyModelOverrides(req.Provider, model, body)

	url := baseURL(req.Provider, openAIBaseURL) + "/responses"
	headers := map[string]string{"Authorization": "Bearer " + key}
	if stream {
		headers["Accept"] = "text/event-stream"
	}
	return postJSON(ctx, g.httpClient, req.Provider, url, headers, body)
}

// ---------------------------------------------------------------------------
// Request building (shared with codex)
// ---------------------------------------------------------------------------

// responsesPayload builds the request fields common to the Responses API and
// the codex backend. tag selects whose reasoning items are replayed.
func responsesPayload(
	ctx context.Context,
	artifacts schema.ArtifactResolver,
	req schema.GenRequest,
	model string,
	tag schema.APIType,
	params schema.VendorParams,
) map[string]any {
	body := map[string]any{
		"model":   model,
		"input":   convertMessagesForResponses(ctx, artifacts, req.Context, tag),
		"store":   false,
		"include": []string{"reasoning.encrypted_content"},
	}
	if req.SystemPrompt != "" {
		body["instructions"] = req.SystemPrompt
	}
	if len(req.Tools) > 0 {
		body["tools"] = convertToolsForResponses(req.Tools)
		body["tool_choice"] = "auto"
		if params.ParallelToolCalls != nil {
			body["parallel_tool_calls"] = *params.ParallelToolCalls
		}
	}
	if params.ReasoningEffort != "" || params.ReasoningSummary != "" {
		reasoning := map[string]any{}
		if params.ReasoningEffort != "" {
			reasoning["effort"] = params.ReasoningEffort
		}
		if params.ReasoningSummary != "" {
			reasoning["summary"] = params.ReasoningSummary
		}
		body["reasoning"] = reasoning
	}
	if params.Verbosity != "" {
		body["text"] = map[string]any{"verbosity": params.Verbosity}
	}
	return body
}

func convertToolsForResponses(tools []schema.FuncTool) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type":        "function",
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.ParametersOrEmpty(),
		})
	}
	return out
}

// responsesReasoningData is the continuation data kept for a reasoning item.
type responsesReasoningData struct {
	ID               string `json:"id"`
	EncryptedContent string `json:"encrypted_content,omitempty"`
}

func newResponsesProviderData(tag schema.APIType, d responsesReasoningData) *schema.ProviderData {
	if d.ID == "" {
		return nil
	}
	raw, _ := json.Marshal(d)
	return &schema.ProviderData{Provider: string(tag), Raw: raw}
}

func responsesUserText(text string) map[string]any {
	return map[string]any{
		"role":    "user",
		"content": []any{map[string]any{"type": "input_text", "text": text}},
	}
}

func responsesAssistantText(text string) map[string]any {
	return map[string]any{
		"type":    "message",
		"role":    "assistant",
		"content": []any{map[string]any{"type": "output_text", "text": text}},
	}
}

// convertMessagesForResponses converts the dialog context to input items.
func convertMessagesForResponses(
	ctx context.Context,
	artifacts schema.ArtifactResolver,
	msgs []schema.Message,
	tag schema.APIType,
) []any {
	items := []any{}
	var tracker callTracker

	for _, m := range NormalizeToolCallPairs(msgs) {
		switch m.Type {
		case schema.MsgEnvironment, schema.MsgPrompting:
			tracker.sawOther()
			items = append(items, responsesUserText(m.Content))

		case schema.MsgTransientGuide, schema.MsgSaying:
			tracker.sawOther()
			if m.Content != "" {
				items = append(items, responsesAssistantText(m.Content))
			}

		case schema.MsgThinking:
			tracker.sawOther()
			var d responsesReasoningData
			raw := m.ProviderData.For(string(tag))
			if raw == nil || json.Unmarshal(raw, &d) != nil || d.ID == "" {
				continue
			}
			item := map[string]any{"type": "reasoning", "id": d.ID, "summary": []any{}}
			if m.Content != "" {
				item["summary"] = []any{map[string]any{"type": "summary_text", "text": m.Content}}
			}
			if d.EncryptedContent != "" {
				item["encrypted_content"] = d.EncryptedContent
			}
			items = append(items, item)

		case schema.MsgFuncCall:
			args := strings.TrimSpace(m.Arguments)
			if args == "" {
				args = "{}"
			}
			items = append(items, map[string]any{
				"type":      "function_call",
				"call_id":   m.ID,
				"name":      m.Name,
				"arguments": args,
			})
			tracker.sawCall(m.ID)

		case schema.MsgFuncResult:
			if !tracker.claim(m.ID) {
				items = append(items, responsesUserText(orphanedToolOutput(m)))
				continue
			}
			items = append(items, responsesToolOutput(ctx, artifacts, m)...)

		case schema.MsgTellaskResult:
			id, correlated := resultCallID(m)
			switch {
			case correlated && tracker.claim(id):
				items = append(items, map[string]any{
					"type":    "function_call_output",
					"call_id": id,
					"output":  resultText(m),
				})
			case correlated:
				items = append(items, responsesUserText(orphanedToolOutput(m)))
			default:
				tracker.sawOther()
				items = append(items, responsesUserText(tellaskText(m)))
			}

		default:
			slog.Debug("skipping unknown message type", "provider", string(tag), "type", m.Type)
		}
	}
	return items
}

// responsesToolOutput renders a tool result. Images cannot ride inside a
// function_call_output, so they follow it as a user message.
func responsesToolOutput(ctx context.Context, artifacts schema.ArtifactResolver, m schema.Message) []any {
	output := map[string]any{"type": "function_call_output", "call_id": m.ID}
	if !hasImageItems(m) {
		output["output"] = resultText(m)
		return []any{output}
	}

	var texts []string
	images := []any{map[string]any{
		"type": "input_text",
		"text": fmt.Sprintf("[images from tool %s id=%s]", m.Name, m.ID),
	}}
	for _, p := range resolveResultParts(ctx, artifacts, m) {
		if p.isImage() {
			images = append(images, map[string]any{"type": "input_image", "image_url": p.dataURL()})
			continue
		}
		texts = append(texts, p.Text)
	}
	output["output"] = strings.Join(texts, "\n")
	if len(images) == 1 {
		return []any{output}
	}
	return []any{output, map[string]any{"role": "user", "content": images}}
}

// ---------------------------------------------------------------------------
// Stream consumer (shared with codex)
// ---------------------------------------------------------------------------

type responsesContent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Refusal string `json:"refusal"`
}

type responsesItem struct {
	Type             string             `json:"type"`
	ID               string             `json:"id"`
	CallID           string             `json:"call_id"`
	Name             string             `json:"name"`
	Arguments        string             `json:"arguments"`
	EncryptedContent string             `json:"encrypted_content"`
	Summary          []responsesContent `json:"summary"`
	Content          []responsesContent `json:"content"`
}

type responsesError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type responsesBody struct {
	Model  string          `json:"model"`
	Status string          `json:"status"`
	Output []responsesItem `json:"output"`
	Usage  map[string]any  `json:"usage"`
	Error  *responsesError `json:"error"`
}

type responsesStreamEvent struct {
	Type        string         `json:"type"`
	OutputIndex int            `json:"output_index"`
	ItemID      string         `json:"item_id"`
	Delta       string         `json:"delta"`
	Arguments   string         `json:"arguments"`
	Item        *responsesItem `json:"item"`
	Response    *responsesBody `json:"response"`
	Code        string         `json:"code"`
	Message     string         `json:"message"`
}

// responsesStream holds the per-call state of a Responses event stream.
type responsesStream struct {
	tag       schema.APIType
	reasoning map[int]*responsesReasoningData
}

func newResponsesStream(tag schema.APIType) *responsesStream {
	return &responsesStream{tag: tag, reasoning: map[int]*responsesReasoningData{}}
}

func (c *responsesStream) handle(st *streamState, f sseFrame) error {
	if strings.TrimSpace(f.Data) == "[DONE]" {
		return errStreamDone
	}
	var ev responsesStreamEvent
	if err := json.Unmarshal([]byte(f.Data), &ev); err != nil {
		return fmt.Errorf("%w: %s event: %v", schema.ErrMalformedPayload, c.tag, err)
	}
	key := strconv.Itoa(ev.OutputIndex)

	switch ev.Type {
	case "response.created", "response.in_progress":
		if ev.Response != nil {
			st.captureModel(ev.Response.Model)
		}

	case "response.output_item.added":
		if ev.Item == nil {
			return nil
		}
		switch ev.Item.Type {
		case "function_call":
			if err := st.beginTool(key, ev.Item.CallID, ev.Item.Name); err != nil {
				return err
			}
			st.setToolArgs(key, ev.Item.Arguments)
		case "reasoning":
			c.reasoning[ev.OutputIndex] = &responsesReasoningData{
				ID:               ev.Item.ID,
				EncryptedContent: ev.Item.EncryptedContent,
			}
			return st.openThinking()
		}

	case "response.reasoning_summary_text.delta", "response.reasoning_text.delta":
		return st.thinkingChunk(ev.Delta)

	case "response.output_text.delta", "response.refusal.delta":
		return st.sayingChunk(ev.Delta)

	case "response.function_call_arguments.delta":
		st.appendToolArgs(key, ev.Delta)

	case "response.function_call_arguments.done":
		st.setToolArgs(key, ev.Arguments)

	case "response.output_item.done":
		if ev.Item == nil {
			return nil
		}
		return c.itemDone(st, key, ev.OutputIndex, ev.Item)

	case "response.completed", "response.incomplete":
		if ev.Response != nil {
			st.captureModel(ev.Response.Model)
			st.captureUsage(NormalizeUsage(ev.Response.Usage))
		}

	case "response.failed":
		verr := &schema.VendorError{Provider: st.provider, Message: "response failed"}
		if ev.Response != nil && ev.Response.Error != nil {
			verr.Type, verr.Message = ev.Response.Error.Code, ev.Response.Error.Message
		}
		return verr

	case "error":
		return &schema.VendorError{Provider: st.provider, Type: ev.Code, Message: ev.Message}

	default:
		slog.Debug("skipping stream event", "provider", st.provider, "type", ev.Type)
	}
	return nil
}

func (c *responsesStream) itemDone(st *streamState, key string, index int, item *responsesItem) error {
	switch item.Type {
	case "function_call":
		if err := st.beginTool(key, item.CallID, item.Name); err != nil {
			return err
		}
		st.setToolArgs(key, item.Arguments)
		return st.completeTool(key)

	case "reasoning":
		d := c.reasoning[index]
		if d == nil {
			d = &responsesReasoningData{}
		}
		if item.ID != "" {
			d.ID = item.ID
		}
		if item.EncryptedContent != "" {
			d.EncryptedContent = item.EncryptedContent
		}
		return st.closeThinking(newResponsesProviderData(c.tag, *d))

	case "message":
		return st.closeSaying()
	}
	return nil
}

// ---------------------------------------------------------------------------
// Batch response
// ---------------------------------------------------------------------------

func parseResponsesOutput(genseq int, tag schema.APIType, raw []byte) ([]schema.Message, schema.GenResult, error) {
	var body responsesBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, schema.GenResult{Usage: schema.NoUsage()},
			fmt.Errorf("%w: %s response: %v", schema.ErrMalformedPayload, tag, err)
	}
	if body.Error != nil && body.Error.Message != "" {
		return nil, schema.GenResult{Usage: schema.NoUsage()},
			&schema.VendorError{Provider: string(tag), Type: body.Error.Code, Message: body.Error.Message}
	}

	c := batchCollector{genseq: genseq}
	for _, item := range body.Output {
		switch item.Type {
		case "reasoning":
			for _, s := range item.Summary {
				c.addThinking(s.Text)
			}
			for _, s := range item.Content {
				c.addThinking(s.Text)
			}
			c.thinkingData = newResponsesProviderData(tag, responsesReasoningData{
				ID:               item.ID,
				EncryptedContent: item.EncryptedContent,
			})
		case "message":
			for _, part := range item.Content {
				switch part.Type {
				case "output_text":
					c.addSaying(part.Text)
				case "refusal":
					c.addSaying(part.Refusal)
				}
			}
		case "function_call":
			c.addCall(item.CallID, item.Name, item.Arguments)
		}
	}

	msgs, err := c.messages()
	res := schema.GenResult{Usage: NormalizeUsage(body.Usage), Model: body.Model}
	return msgs, res, err
}
