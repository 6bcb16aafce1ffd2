package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiGenerator speaks the Gemini generateContent API.
type GeminiGenerator struct {
	httpClient *http.Client
	artifacts  schema.ArtifactResolver
}

func NewGeminiGenerator(client *http.Client, artifacts schema.ArtifactResolver) *GeminiGenerator {
	return &GeminiGenerator{httpClient: client, artifacts: artifacts}
}

func (g *GeminiGenerator) APIType() schema.APIType { return schema.APIGemini }

func (g *GeminiGenerator) GenerateStreaming(
	ctx context.Context,
	req schema.GenRequest,
	recv schema.Receiver,
) (schema.GenResult, error) {
	resp, err := g.send(ctx, req, true)
	if err != nil {
		return schema.GenResult{Usage: schema.NoUsage()}, err
	}
	defer resp.Body.Close()

	c := &geminiStream{}
	return runStream(ctx, recv, req.Provider.Name, req.Genseq, resp.Body, c.handle)
}

func (g *GeminiGenerator) GenerateBatch(
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
	return parseGeminiResponse(req.Genseq, req.Provider.Name, raw)
}

func (g *GeminiGenerator) send(ctx context.Context, req schema.GenRequest, stream bool) (*http.Response, error) {
	model, err := checkRequest(req)
	if err != nil {
		return nil, err
	}
	key, err := apiKey(req.Provider)
	if err != nil {
		return nil, err
	}

	endpoint := baseURL(req.Provider, geminiBaseURL) + "/models/" + url.PathEscape(model)
	if stream {
		endpoint += ":streamGenerateContent?alt=sse"
	} else {
		endpoint += ":generateContent"
	}
	body := g.buildRequest(ctx, req, model)
	return postJSON(ctx, g.httpClient, req.Provider, endpoint, map[string]string{"x-goog-api-key": key}, body)
}

// ---------------------------------------------------------------------------
// Request building
// ---------------------------------------------------------------------------

func (g *GeminiGenerator) buildRequest(ctx context.Context, req schema.GenRequest, model string) map[string]any {
	params := req.Agent.ModelParams.ForAPI(schema.APIGemini)

	gen := map[string]any{"maxOutputTokens": schema.EffectiveMaxTokens(req.Agent, req.Provider)}
	if params.Temperature != nil {
		gen["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		gen["topP"] = *params.TopP
	}
	if params.TopK != nil {
		gen["topK"] = *params.TopK
	}
	if len(params.StopSequences) > 0 {
		gen["stopSequences"] = params.StopSequences
	}
	if params.PresencePenalty != nil {
		gen["presencePenalty"] = *params.PresencePenalty
	}
	if params.FrequencyPenalty != nil {
		gen["frequencyPenalty"] = *params.FrequencyPenalty
	}
	if params.Seed != nil {
		gen["seed"] = *params.Seed
	}
	if params.ThinkingBudget != 0 {
		gen["thinkingConfig"] = map[string]any{
			"thinkingBudget":  params.ThinkingBudget,
			"includeThoughts": true,
		}
	}

	body := map[string]any{
		"contents":         g.convertMessages(ctx, req.Context),
		"generationConfig": gen,
	}
	if req.SystemPrompt != "" {
		body["systemInstruction"] = map[string]any{"parts": []any{map[string]any{"text": req.SystemPrompt}}}
	}
	if len(req.Tools) > 0 {
		decls := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.ParametersOrEmpty(),
			})
		}
		body["tools"] = []any{map[string]any{"functionDeclarations": decls}}
	}
	applyModelOverrides(req.Provider, model, body)
	return body
}

// geminiThoughtData is the continuation data kept for a thinking message.
type geminiThoughtData struct {
	Signature string `json:"signature"`
}

func newGeminiProviderData(signature string) *schema.ProviderData {
	if signature == "" {
		return nil
	}
	raw, _ := json.Marshal(geminiThoughtData{Signature: signature})
	return &schema.ProviderData{Provider: string(schema.APIGemini), Raw: raw}
}

// geminiTurns builds the contents array. Gemini requires alternating user
// and model turns, so parts of consecutive same-role entries are joined.
type geminiTurns struct {
	out []map[string]any
}

func (t *geminiTurns) add(role string, part map[string]any) {
	if n := len(t.out); n > 0 && t.out[n-1]["role"] == role {
		t.out[n-1]["parts"] = append(t.out[n-1]["parts"].([]any), part)
		return
	}
	t.out = append(t.out, map[string]any{"role": role, "parts": []any{part}})
}

func (t *geminiTurns) text(role, text string) {
	if text == "" {
		return
	}
	t.add(role, map[string]any{"text": text})
}

// convertMessages converts the dialog context to Gemini contents. Gemini
// function responses correlate by name; the id is kept when present.
func (g *GeminiGenerator) convertMessages(ctx context.Context, msgs []schema.Message) []map[string]any {
	var turns geminiTurns
	var tracker callTracker
	// Gemini matches responses to calls by name.
	var lastCallName string

	for _, m := range NormalizeToolCallPairs(msgs) {
		switch m.Type {
		case schema.MsgEnvironment, schema.MsgPrompting:
			tracker.sawOther()
			turns.text("user", m.Content)

		case schema.MsgTransientGuide, schema.MsgSaying:
			tracker.sawOther()
			turns.text("model", m.Content)

		case schema.MsgThinking:
			tracker.sawOther()
			var d geminiThoughtData
			raw := m.ProviderData.For(string(schema.APIGemini))
			if raw == nil || json.Unmarshal(raw, &d) != nil || d.Signature == "" {
				continue
			}
			turns.add("model", map[string]any{"text": m.Content, "thought": true, "thoughtSignature": d.Signature})

		case schema.MsgFuncCall:
			var args map[string]any
			if err := json.Unmarshal(argsObject(m.Name, m.Arguments), &args); err != nil {
				args = map[string]any{}
			}
			call := map[string]any{"functionCall": map[string]any{"id": m.ID, "name": m.Name, "args": args}}
			var d geminiThoughtData
			if raw := m.ProviderData.For(string(schema.APIGemini)); raw != nil && json.Unmarshal(raw, &d) == nil && d.Signature != "" {
				call["thoughtSignature"] = d.Signature
			}
			turns.add("model", call)
			tracker.sawCall(m.ID)
			lastCallName = m.Name

		case schema.MsgFuncResult:
			if !tracker.claim(m.ID) {
				turns.text("user", orphanedToolOutput(m))
				continue
			}
			g.functionResponse(ctx, &turns, m)

		case schema.MsgTellaskResult:
			id, correlated := resultCallID(m)
			switch {
			case correlated && tracker.claim(id):
				turns.add("user", map[string]any{"functionResponse": map[string]any{
					"id":       id,
					"name":     lastCallName,
					"response": map[string]any{"content": resultText(m)},
				}})
			case correlated:
				turns.text("user", orphanedToolOutput(m))
			default:
				tracker.sawOther()
				turns.text("user", tellaskText(m))
			}

		default:
			slog.Debug("skipping unknown message type", "provider", "gemini", "type", m.Type)
		}
	}
	return turns.out
}

func (g *GeminiGenerator) functionResponse(ctx context.Context, turns *geminiTurns, m schema.Message) {
	if !hasImageItems(m) {
		turns.add("user", map[string]any{"functionResponse": map[string]any{
			"id":       m.ID,
			"name":     m.Name,
			"response": map[string]any{"content": resultText(m)},
		}})
		return
	}

	var texts []string
	var images []map[string]any
	for _, p := range resolveResultParts(ctx, g.artifacts, m) {
		if p.isImage() {
			images = append(images, map[string]any{"inlineData": map[string]any{"mimeType": p.MimeType, "data": p.Data}})
			continue
		}
		texts = append(texts, p.Text)
	}
	content := strings.Join(texts, "\n")
	turns.add("user", map[string]any{"functionResponse": map[string]any{
		"id":       m.ID,
		"name":     m.Name,
		"response": map[string]any{"content": content},
	}})
	for _, img := range images {
		turns.add("user", img)
	}
}

// ---------------------------------------------------------------------------
// Stream consumer
// ---------------------------------------------------------------------------

type geminiPart struct {
	Text             string `json:"text"`
	Thought          bool   `json:"thought"`
	ThoughtSignature string `json:"thoughtSignature"`
	FunctionCall     *struct {
		ID   string          `json:"id"`
		Name string          `json:"name"`
		Args json.RawMessage `json:"args"`
	} `json:"functionCall"`
}

type geminiChunk struct {
	Candidates []struct {
		Content struct {
			Role  string       `json:"role"`
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata map[string]any `json:"usageMetadata"`
	ModelVersion  string         `json:"modelVersion"`
	Error         *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// geminiStream holds the per-call state of a Gemini event stream.
type geminiStream struct {
	signature string
	calls     int
}

func (c *geminiStream) handle(st *streamState, f sseFrame) error {
	var chunk geminiChunk
	if err := json.Unmarshal([]byte(f.Data), &chunk); err != nil {
		return fmt.Errorf("%w: gemini chunk: %v", schema.ErrMalformedPayload, err)
	}
	if err := geminiChunkError(st.provider, &chunk); err != nil {
		return err
	}
	st.captureModel(chunk.ModelVersion)
	st.captureUsage(NormalizeUsage(chunk.UsageMetadata))

	if len(chunk.Candidates) == 0 {
		return nil
	}
	cand := chunk.Candidates[0]
	for _, part := range cand.Content.Parts {
		if err := c.part(st, part); err != nil {
			return err
		}
	}
	if cand.FinishReason != "" {
		return c.endThinking(st)
	}
	return nil
}

func (c *geminiStream) part(st *streamState, part geminiPart) error {
	if part.ThoughtSignature != "" && part.FunctionCall == nil && (part.Thought || st.active == channelThinking) {
		c.signature = part.ThoughtSignature
	}

	switch {
	case part.Thought:
		return st.thinkingChunk(part.Text)

	case part.FunctionCall != nil:
		if err := c.endThinking(st); err != nil {
			return err
		}
		key := "g" + strconv.Itoa(c.calls)
		c.calls++
		if err := st.beginTool(key, part.FunctionCall.ID, part.FunctionCall.Name); err != nil {
			return err
		}
		if args := string(part.FunctionCall.Args); args != "null" {
			st.setToolArgs(key, args)
		}
		st.setToolData(key, newGeminiProviderData(part.ThoughtSignature))
		return st.completeTool(key)

	case part.Text != "":
		// Thoughts have no end marker; the first answer part ends them.
		if err := c.endThinking(st); err != nil {
			return err
		}
		return st.sayingChunk(part.Text)
	}
	return nil
}

func (c *geminiStream) endThinking(st *streamState) error {
	if st.active != channelThinking {
		return nil
	}
	data := newGeminiProviderData(c.signature)
	c.signature = ""
	return st.closeThinking(data)
}

func geminiChunkError(provider string, chunk *geminiChunk) error {
	if chunk.Error != nil {
		return &schema.VendorError{
			Provider:   provider,
			StatusCode: chunk.Error.Code,
			Type:       chunk.Error.Status,
			Message:    chunk.Error.Message,
		}
	}
	if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" && len(chunk.Candidates) == 0 {
		return &schema.VendorError{
			Provider: provider,
			Type:     "blocked",
			Message:  "prompt blocked: " + chunk.PromptFeedback.BlockReason,
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Batch response
// ---------------------------------------------------------------------------

func parseGeminiResponse(genseq int, provider string, raw []byte) ([]schema.Message, schema.GenResult, error) {
	noUsage := schema.GenResult{Usage: schema.NoUsage()}
	var body geminiChunk
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, noUsage, fmt.Errorf("%w: gemini response: %v", schema.ErrMalformedPayload, err)
	}
	if err := geminiChunkError(provider, &body); err != nil {
		return nil, noUsage, err
	}

	c := batchCollector{genseq: genseq}
	var signature string
	if len(body.Candidates) > 0 {
		for _, part := range body.Candidates[0].Content.Parts {
			switch {
			case part.Thought:
				c.addThinking(part.Text)
				if part.ThoughtSignature != "" {
					signature = part.ThoughtSignature
				}
			case part.FunctionCall != nil:
				args := string(part.FunctionCall.Args)
				if args == "null" {
					args = ""
				}
				c.addCall(part.FunctionCall.ID, part.FunctionCall.Name, args)
				c.setLastCallData(newGeminiProviderData(part.ThoughtSignature))
			case part.Text != "":
				c.addSaying(part.Text)
			}
		}
	}
	if c.thinking.Len() > 0 {
		c.thinkingData = newGeminiProviderData(signature)
	}

	msgs, err := c.messages()
	return msgs, schema.GenResult{Usage: NormalizeUsage(body.UsageMetadata), Model: body.ModelVersion}, err
}
