package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

var responsesFrames = []string{
	`{"type":"response.created","response":{"model":"gpt-5"}}`,
	`{"type":"response.output_item.added","output_index":0,"item":{"type":"reasoning","id":"rs_1"}}`,
	`{"type":"response.reasoning_summary_text.delta","output_index":0,"delta":"Plan"}`,
	`{"type":"response.output_item.done","output_index":0,"item":{"type":"reasoning","id":"rs_1","encrypted_content":"enc"}}`,
	`{"type":"response.output_item.added","output_index":1,"item":{"type":"message","id":"msg_1"}}`,
	`{"type":"response.output_text.delta","output_index":1,"delta":"Hi"}`,
	`{"type":"response.output_item.done","output_index":1,"item":{"type":"message"}}`,
	`{"type":"response.output_item.added","output_index":2,"item":{"type":"function_call","call_id":"call_9","name":"lookup","arguments":""}}`,
	`{"type":"response.function_call_arguments.delta","output_index":2,"delta":"{\"id\":"}`,
	`{"type":"response.function_call_arguments.delta","output_index":2,"delta":"{\"id\":7}"}`,
	`{"type":"response.output_item.done","output_index":2,"item":{"type":"function_call","call_id":"call_9","name":"lookup","arguments":"{\"id\":7}"}}`,
	`{"type":"response.some_future_event"}`,
	`{"type":"response.completed","response":{"model":"gpt-5-2025","usage":{"input_tokens":5,"output_tokens":7,"total_tokens":12}}}`,
}

func TestResponses_Streaming(t *testing.T) {
	srv, c := sseServer(t, responsesFrames...)
	req := testRequest(t, schema.APIOpenAI, srv.URL, prompt("hi"))

	r := &recorder{}
	res, err := NewResponsesGenerator(srv.Client(), nil).GenerateStreaming(context.Background(), req, r)
	if err != nil {
		t.Fatalf("GenerateStreaming: %v", err)
	}
	checkEvents(t, r,
		"thinking_start", "thinking:Plan", "thinking_finish",
		"saying_start", "saying:Hi", "saying_finish",
		`call:call_9:lookup:{"id":7}`,
	)
	if d := r.thinkingData[0]; d == nil || d.Provider != "openai" || string(d.Raw) != `{"id":"rs_1","encrypted_content":"enc"}` {
		t.Errorf("reasoning data = %+v", d)
	}
	if res.Usage.TotalTokens != 12 || res.Model != "gpt-5-2025" {
		t.Errorf("result = %+v", res)
	}

	path, header, body := c.get()
	if path != "/responses" || header.Get("Authorization") != "Bearer secret" {
		t.Errorf("path %q headers %v", path, header)
	}
	if body["store"] != false || body["instructions"] != "be brief" || body["max_output_tokens"] != 2048.0 {
		t.Errorf("body = %v", body)
	}
}

func TestResponses_FailedEvent(t *testing.T) {
	srv, _ := sseServer(t,
		`{"type":"response.output_text.delta","output_index":0,"delta":"x"}`,
		`{"type":"response.failed","response":{"error":{"code":"server_error","message":"boom"}}}`,
	)
	req := testRequest(t, schema.APIOpenAI, srv.URL, prompt("hi"))

	r := &recorder{}
	_, err := NewResponsesGenerator(srv.Client(), nil).GenerateStreaming(context.Background(), req, r)
	var verr *schema.VendorError
	if !errors.As(err, &verr) || verr.Type != "server_error" || verr.Message != "boom" {
		t.Fatalf("expected vendor error, got %v", err)
	}
	checkPairing(t, r.events)
}

func TestResponses_Batch(t *testing.T) {
	srv, _ := jsonServer(t, http.StatusOK, `{
		"model": "gpt-5",
		"output": [
			{"type": "reasoning", "id": "rs_2", "summary": [{"type": "summary_text", "text": "thought"}]},
			{"type": "message", "content": [{"type": "output_text", "text": "Answer"}]},
			{"type": "function_call", "name": "ping", "arguments": "{}"}
		],
		"usage": {"input_tokens": 1, "output_tokens": 2}
	}`)
	req := testRequest(t, schema.APIOpenAI, srv.URL, prompt("hi"))

	msgs, res, err := NewResponsesGenerator(srv.Client(), nil).GenerateBatch(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateBatch: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "thought" || msgs[1].Content != "Answer" {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[2].ID != "call_2_0" || msgs[2].Name != "ping" {
		t.Errorf("call without id should get a synthesized one: %+v", msgs[2])
	}
	if res.Usage.TotalTokens != 3 {
		t.Errorf("usage = %+v", res.Usage)
	}
}

func TestResponses_ReasoningReplayMatchesTag(t *testing.T) {
	raw := json.RawMessage(`{"id":"rs_1","encrypted_content":"enc"}`)
	msgs := []schema.Message{
		prompt("q"),
		schema.NewThinkingMessage(1, "summary", &schema.ProviderData{Provider: "openai", Raw: raw}),
		schema.NewSayingMessage(1, "a"),
	}

	items := convertMessagesForResponses(context.Background(), nil, msgs, schema.APIOpenAI)
	if len(items) != 3 {
		t.Fatalf("openai items = %v", items)
	}
	reasoning := items[1].(map[string]any)
	if reasoning["type"] != "reasoning" || reasoning["id"] != "rs_1" || reasoning["encrypted_content"] != "enc" {
		t.Errorf("reasoning item = %v", reasoning)
	}

	items = convertMessagesForResponses(context.Background(), nil, msgs, schema.APICodex)
	if len(items) != 2 {
		t.Errorf("codex must not replay openai reasoning: %v", items)
	}
}

func TestResponses_ToolResultImagesFollowAsUserMessage(t *testing.T) {
	res := mapResolver{"artifacts/shot.png": []byte("PNG")}
	msgs := []schema.Message{
		schema.NewFuncCallMessage(1, "c1", "screenshot", `{}`),
		schema.NewFuncResultMessage(1, "c1", "screenshot", "captured", []schema.ContentItem{
			{Type: schema.ItemImage, MimeType: "image/png", Artifact: &schema.ArtifactRef{RelPath: "artifacts/shot.png"}},
		}),
	}
	items := convertMessagesForResponses(context.Background(), res, msgs, schema.APIOpenAI)
	if len(items) != 3 {
		t.Fatalf("items = %v", items)
	}
	out := items[1].(map[string]any)
	if out["type"] != "function_call_output" || out["output"] != "captured" {
		t.Errorf("output item = %v", out)
	}
	user := items[2].(map[string]any)
	content := user["content"].([]any)
	img := content[1].(map[string]any)
	if img["type"] != "input_image" || img["image_url"] != "data:image/png;base64,UE5H" {
		t.Errorf("image part = %v", img)
	}
}

// ---------------------------------------------------------------------------
// Codex
// ---------------------------------------------------------------------------

func writeCodexAuth(t *testing.T, dir string) {
	t.Helper()
	data := `{"tokens":{"access_token":"tok","account_id":"acct"}}`
	if err := os.WriteFile(filepath.Join(dir, "auth.json"), []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
}

func codexRequest(t *testing.T, baseURL string) schema.GenRequest {
	t.Helper()
	req := testRequest(t, schema.APICodex, baseURL, prompt("hi"))
	req.Provider.APIKeyEnvVar = "GENLAYER_TEST_CODEX_HOME"
	return req
}

func TestCodex_BatchUnsupported(t *testing.T) {
	_, _, err := NewCodexGenerator(nil, nil).GenerateBatch(context.Background(), schema.GenRequest{})
	if !errors.Is(err, schema.ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
}

func TestCodex_StreamingUsesStoredCredentials(t *testing.T) {
	home := t.TempDir()
	writeCodexAuth(t, home)
	t.Setenv("GENLAYER_TEST_CODEX_HOME", home)

	srv, c := sseServer(t,
		`{"type":"response.output_text.delta","output_index":0,"delta":"ok"}`,
		`{"type":"response.completed","response":{"usage":{"input_tokens":1,"output_tokens":1}}}`,
	)
	req := codexRequest(t, srv.URL)

	r := &recorder{}
	res, err := NewCodexGenerator(srv.Client(), nil).GenerateStreaming(context.Background(), req, r)
	if err != nil {
		t.Fatalf("GenerateStreaming: %v", err)
	}
	checkEvents(t, r, "saying_start", "saying:ok", "saying_finish")
	if res.Usage.TotalTokens != 2 {
		t.Errorf("usage = %+v", res.Usage)
	}

	path, header, body := c.get()
	if path != "/codex/responses" {
		t.Errorf("path = %q", path)
	}
	if header.Get("Authorization") != "Bearer tok" || header.Get("chatgpt-account-id") != "acct" {
		t.Errorf("headers = %v", header)
	}
	if body["stream"] != true || body["prompt_cache_key"] == "" || body["max_output_tokens"] != nil {
		t.Errorf("body = %v", body)
	}
	if text, _ := body["text"].(map[string]any); text["verbosity"] != "medium" {
		t.Errorf("default verbosity missing: %v", body["text"])
	}
}

func TestCodex_MissingCredentials(t *testing.T) {
	t.Setenv("GENLAYER_TEST_CODEX_HOME", t.TempDir())
	req := codexRequest(t, "http://127.0.0.1:1")

	_, err := NewCodexGenerator(nil, nil).GenerateStreaming(context.Background(), req, &recorder{})
	var cerr *schema.ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestCodex_HomeFallback(t *testing.T) {
	home := t.TempDir()
	if err := os.MkdirAll(filepath.Join(home, ".codex"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeCodexAuth(t, filepath.Join(home, ".codex"))
	t.Setenv("GENLAYER_TEST_CODEX_HOME", "")

	g := NewCodexGenerator(nil, nil)
	g.homeDir = func() (string, error) { return home, nil }
	auth, err := g.loadAuth(&schema.ProviderConfig{Name: "codex", APIKeyEnvVar: "GENLAYER_TEST_CODEX_HOME"})
	if err != nil {
		t.Fatalf("loadAuth: %v", err)
	}
	if auth.Tokens.AccessToken != "tok" {
		t.Errorf("auth = %+v", auth)
	}
}

func TestCodex_CacheKeyStablePerDialog(t *testing.T) {
	a := schema.GenRequest{SystemPrompt: "s", Context: []schema.Message{prompt("first")}}
	b := schema.GenRequest{SystemPrompt: "s", Context: []schema.Message{prompt("first"), schema.NewSayingMessage(1, "more")}}
	c := schema.GenRequest{SystemPrompt: "s", Context: []schema.Message{prompt("other")}}
	if codexCacheKey(a) != codexCacheKey(b) {
		t.Error("cache key should only depend on the dialog start")
	}
	if codexCacheKey(a) == codexCacheKey(c) {
		t.Error("different dialogs should get different keys")
	}
}
