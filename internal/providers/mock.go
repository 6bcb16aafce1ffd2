package providers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

// MockFuncCall is a tool call a mock record asks the model to make.
type MockFuncCall struct {
	ID        string `yaml:"id,omitempty"`
	Name      string `yaml:"name"`
	Arguments string `yaml:"arguments,omitempty"`
}

// MockUsage overrides the computed usage of a mock record.
type MockUsage struct {
	PromptTokens     int `yaml:"promptTokens"`
	CompletionTokens int `yaml:"completionTokens"`
	TotalTokens      int `yaml:"totalTokens,omitempty"`
}

// MockRecord is one scripted exchange of a mock database.
type MockRecord struct {
	Message          string         `yaml:"message"`
	Role             string         `yaml:"role"`
	Response         string         `yaml:"response"`
	Thinking         string         `yaml:"thinking,omitempty"`
	FuncCalls        []MockFuncCall `yaml:"funcCalls,omitempty"`
	StreamError      string         `yaml:"streamError,omitempty"`
	DelayMs          int            `yaml:"delayMs,omitempty"`
	ChunkDelayMs     int            `yaml:"chunkDelayMs,omitempty"`
	Usage            *MockUsage     `yaml:"usage,omitempty"`
	UsageUnavailable bool           `yaml:"usageUnavailable,omitempty"`
}

// MockDB is the on-disk format of <baseURL>/<model>.yaml.
type MockDB struct {
	Responses []MockRecord `yaml:"responses"`
}

// mockKey is the lookup key of a record: role and normalized message text.
func mockKey(role, message string) string {
	return role + ":" + strings.TrimSpace(strings.ToLower(message))
}

type mockDBEntry struct {
	modTime time.Time
	size    int64
	index   map[string]MockRecord
}

// MockGenerator replays scripted responses from YAML files, for tests and
// offline development. Files are re-read when their modification time changes.
type MockGenerator struct {
	mu    sync.Mutex
	cache map[string]*mockDBEntry
}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{cache: map[string]*mockDBEntry{}}
}

func (g *MockGenerator) APIType() schema.APIType { return schema.APIMock }

// MockDBPath returns the database file for model under dir.
func MockDBPath(dir, model string) string {
	return filepath.Join(dir, model+".yaml")
}

// Lookup resolves the record for role and message in the database of model.
// A missing database file is treated as empty.
func (g *MockGenerator) Lookup(dir, model, role, message string) (MockRecord, bool, error) {
	index, err := g.load(MockDBPath(dir, model))
	if err != nil {
		return MockRecord{}, false, err
	}
	rec, ok := index[mockKey(role, message)]
	return rec, ok, nil
}

func (g *MockGenerator) load(path string) (map[string]MockRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		delete(g.cache, path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat mock database %s: %w", path, err)
	}
	if e, ok := g.cache[path]; ok && e.modTime.Equal(info.ModTime()) && e.size == info.Size() {
		return e.index, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mock database %s: %w", path, err)
	}
	var db MockDB
	if err := yaml.Unmarshal(data, &db); err != nil {
		return nil, &schema.ConfigError{Provider: "mock", Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}

	index := make(map[string]MockRecord, len(db.Responses))
	for _, rec := range db.Responses {
		key := mockKey(rec.Role, rec.Message)
		if _, dup := index[key]; dup {
			slog.Warn("duplicate mock record ignored", "file", path, "key", key)
			continue
		}
		index[key] = rec
	}
	g.cache[path] = &mockDBEntry{modTime: info.ModTime(), size: info.Size(), index: index}
	slog.Debug("loaded mock database", "file", path, "records", len(index))
	return index, nil
}

// resolve finds the record answering the last message of the request, or
// builds the fallback record explaining how to add one.
func (g *MockGenerator) resolve(req schema.GenRequest) (MockRecord, error) {
	model, err := checkRequest(req)
	if err != nil {
		return MockRecord{}, err
	}
	dir := strings.TrimSpace(req.Provider.BaseURL)
	if dir == "" {
		return MockRecord{}, &schema.ConfigError{Provider: req.Provider.Name, Reason: "mock baseURL must name the database directory"}
	}

	role, text := string(schema.RoleUser), ""
	if last, ok := schema.LastMessage(req.Context); ok {
		role, text = string(last.Role()), last.Content
	}
	rec, ok, err := g.Lookup(dir, model, role, text)
	if err != nil {
		return MockRecord{}, err
	}
	if !ok {
		slog.Info("no mock record", "model", model, "role", role)
		return mockFallback(MockDBPath(dir, model), model, role, text), nil
	}
	return rec, nil
}

func mockFallback(path, model, role, message string) MockRecord {
	snippet, _ := yaml.Marshal(MockDB{Responses: []MockRecord{{
		Role:     role,
		Message:  strings.TrimSpace(message),
		Response: "<your scripted reply>",
	}}})
	return MockRecord{
		Role:    role,
		Message: message,
		Response: fmt.Sprintf("No mock response is recorded for model %q. Add a record like this to %s:\n\n%s",
			model, path, snippet),
	}
}

func (g *MockGenerator) GenerateStreaming(
	ctx context.Context,
	req schema.GenRequest,
	recv schema.Receiver,
) (schema.GenResult, error) {
	rec, err := g.resolve(req)
	if err != nil {
		return schema.GenResult{Usage: schema.NoUsage()}, err
	}

	st := newStreamState(ctx, recv, req.Provider.Name, req.Genseq)
	defer st.cleanup()

	if err := sleepCtx(ctx, rec.DelayMs); err != nil {
		return st.result(), err
	}
	st.captureModel(req.Agent.Model)

	if rec.Thinking != "" {
		if err := mockChunks(st, rec.Thinking, rec.ChunkDelayMs, st.thinkingChunk); err != nil {
			return st.result(), err
		}
		if err := st.closeThinking(nil); err != nil {
			return st.result(), err
		}
	}
	if err := mockChunks(st, rec.Response, rec.ChunkDelayMs, st.sayingChunk); err != nil {
		return st.result(), err
	}
	if rec.StreamError != "" {
		return st.result(), &schema.VendorError{Provider: req.Provider.Name, Type: "mock_stream_error", Message: rec.StreamError}
	}
	for i, call := range mockCalls(rec) {
		key := fmt.Sprintf("m%d", i)
		if err := st.beginTool(key, call.ID, call.Name); err != nil {
			return st.result(), err
		}
		st.setToolArgs(key, call.Arguments)
		if err := st.completeTool(key); err != nil {
			return st.result(), err
		}
	}
	if err := st.finish(); err != nil {
		return st.result(), err
	}
	st.captureUsage(mockUsage(rec, req.Context))
	return st.result(), nil
}

func (g *MockGenerator) GenerateBatch(
	ctx context.Context,
	req schema.GenRequest,
) ([]schema.Message, schema.GenResult, error) {
	noUsage := schema.GenResult{Usage: schema.NoUsage()}
	rec, err := g.resolve(req)
	if err != nil {
		return nil, noUsage, err
	}
	if err := sleepCtx(ctx, rec.DelayMs); err != nil {
		return nil, noUsage, err
	}
	if rec.StreamError != "" {
		return nil, noUsage, &schema.VendorError{Provider: req.Provider.Name, Type: "mock_stream_error", Message: rec.StreamError}
	}

	c := batchCollector{genseq: req.Genseq}
	c.addThinking(rec.Thinking)
	c.addSaying(rec.Response)
	for _, call := range mockCalls(rec) {
		c.addCall(call.ID, call.Name, call.Arguments)
	}
	msgs, err := c.messages()
	return msgs, schema.GenResult{Usage: mockUsage(rec, req.Context), Model: req.Agent.Model}, err
}

// mockCalls gives every scripted call an id.
func mockCalls(rec MockRecord) []MockFuncCall {
	calls := make([]MockFuncCall, len(rec.FuncCalls))
	for i, c := range rec.FuncCalls {
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		calls[i] = c
	}
	return calls
}

// mockChunks feeds text word by word, waiting delayMs between chunks.
func mockChunks(st *streamState, text string, delayMs int, emit func(string) error) error {
	if text == "" {
		return nil
	}
	for i, chunk := range strings.SplitAfter(text, " ") {
		if chunk == "" {
			continue
		}
		if i > 0 {
			if err := sleepCtx(st.ctx, delayMs); err != nil {
				return err
			}
		}
		if err := st.checkAbort(); err != nil {
			return err
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}

func mockUsage(rec MockRecord, msgs []schema.Message) schema.UsageStats {
	if rec.UsageUnavailable {
		return schema.NoUsage()
	}
	if rec.Usage != nil {
		return NormalizeUsage(map[string]any{
			"promptTokens":     rec.Usage.PromptTokens,
			"completionTokens": rec.Usage.CompletionTokens,
			"totalTokens":      nonZero(rec.Usage.TotalTokens),
		})
	}
	prompt := 0
	for _, m := range msgs {
		prompt += len(strings.Fields(m.Content))
	}
	completion := len(strings.Fields(rec.Thinking)) + len(strings.Fields(rec.Response))
	return schema.UsageStats{
		Kind:             schema.UsageAvailable,
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// nonZero maps 0 to nil so NormalizeUsage falls back to the sum.
func nonZero(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

// sleepCtx waits ms milliseconds or until ctx is done.
func sleepCtx(ctx context.Context, ms int) error {
	if ms <= 0 {
		if ctx.Err() != nil {
			return abortError(ctx)
		}
		return nil
	}
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return abortError(ctx)
	case <-t.C:
		return nil
	}
}
