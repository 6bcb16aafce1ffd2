package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

// recorder is a Receiver that logs every callback as a compact event string.
type recorder struct {
	events       []string
	thinkingData []*schema.ProviderData
	callData     map[string]*schema.ProviderData
	anomalies    []string
	// onSaying runs after every saying chunk; tests use it to cancel.
	onSaying func()
}

func (r *recorder) ThinkingStart() error {
	r.events = append(r.events, "thinking_start")
	return nil
}

func (r *recorder) ThinkingChunk(chunk string) error {
	r.events = append(r.events, "thinking:"+chunk)
	return nil
}

func (r *recorder) ThinkingFinish(data *schema.ProviderData) error {
	r.events = append(r.events, "thinking_finish")
	r.thinkingData = append(r.thinkingData, data)
	return nil
}

func (r *recorder) SayingStart() error {
	r.events = append(r.events, "saying_start")
	return nil
}

func (r *recorder) SayingChunk(chunk string) error {
	r.events = append(r.events, "saying:"+chunk)
	if r.onSaying != nil {
		r.onSaying()
	}
	return nil
}

func (r *recorder) SayingFinish() error {
	r.events = append(r.events, "saying_finish")
	return nil
}

func (r *recorder) FuncCall(id, name, arguments string) error {
	r.events = append(r.events, fmt.Sprintf("call:%s:%s:%s", id, name, arguments))
	return nil
}

func (r *recorder) FuncCallWithData(id, name, arguments string, data *schema.ProviderData) error {
	if r.callData == nil {
		r.callData = map[string]*schema.ProviderData{}
	}
	r.callData[id] = data
	return r.FuncCall(id, name, arguments)
}

func (r *recorder) StreamError(detail string) {
	r.anomalies = append(r.anomalies, detail)
}

// checkEvents compares the recorded events with want.
func checkEvents(t *testing.T, r *recorder, want ...string) {
	t.Helper()
	if strings.Join(r.events, "\n") != strings.Join(want, "\n") {
		t.Fatalf("events mismatch\n got: %q\nwant: %q", r.events, want)
	}
}

// checkPairing asserts that thinking and saying never overlap and every
// start has exactly one finish.
func checkPairing(t *testing.T, events []string) {
	t.Helper()
	open := ""
	for i, ev := range events {
		switch ev {
		case "thinking_start", "saying_start":
			if open != "" {
				t.Fatalf("event %d %s while %s open: %q", i, ev, open, events)
			}
			open = strings.TrimSuffix(ev, "_start")
		case "thinking_finish", "saying_finish":
			if open != strings.TrimSuffix(ev, "_finish") {
				t.Fatalf("event %d %s without matching start: %q", i, ev, events)
			}
			open = ""
		}
	}
	if open != "" {
		t.Fatalf("%s never finished: %q", open, events)
	}
}

// captured is the last request a vendorServer received.
type captured struct {
	mu     sync.Mutex
	path   string
	query  string
	header http.Header
	body   map[string]any
}

func (c *captured) get() (string, http.Header, map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path, c.header, c.body
}

func (c *captured) record(r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = r.URL.Path
	c.query = r.URL.RawQuery
	c.header = r.Header.Clone()
	c.body = body
}

// sseServer answers every POST with the given data frames as an event
// stream, followed by nothing else.
func sseServer(t *testing.T, frames ...string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.record(r)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

// stallingSSEServer writes frames, flushes, then holds the connection open
// until the client goes away.
func stallingSSEServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
		}
		if fl, ok := w.(http.Flusher); ok {
			fl.Flush()
		}
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// jsonServer answers every POST with status and body.
func jsonServer(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.record(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

const testKeyEnv = "GENLAYER_TEST_API_KEY"

// testRequest builds a request for model "m" against baseURL.
func testRequest(t *testing.T, api schema.APIType, baseURL string, msgs ...schema.Message) schema.GenRequest {
	t.Helper()
	t.Setenv(testKeyEnv, "secret")
	return schema.GenRequest{
		Provider: &schema.ProviderConfig{
			Name:         "test-" + string(api),
			APIType:      api,
			BaseURL:      baseURL,
			APIKeyEnvVar: testKeyEnv,
			Models:       map[string]schema.ModelInfo{"m": {OutputLength: 2048}},
		},
		Agent:        &schema.AgentSpec{ID: "tester", Model: "m"},
		SystemPrompt: "be brief",
		Context:      msgs,
		Genseq:       2,
	}
}

func prompt(text string) schema.Message {
	return schema.NewPromptingMessage(1, "p1", text)
}
