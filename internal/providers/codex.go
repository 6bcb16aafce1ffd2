package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

const (
	codexBaseURL    = "https://chatgpt.com/backend-api"
	codexOriginator = "genlayer"
)

// CodexAuth is the subset of the Codex CLI's auth.json this layer reads.
type CodexAuth struct {
	Tokens struct {
		AccessToken string `json:"access_token"`
		AccountID   string `json:"account_id"`
	} `json:"tokens"`
}

// CodexGenerator calls the ChatGPT Codex Responses backend using the Codex
// CLI's stored OAuth token. It supports streaming only.
type CodexGenerator struct {
	httpClient *http.Client
	artifacts  schema.ArtifactResolver
	// homeDir resolves the default credential directory; tests replace it.
	homeDir func() (string, error)
}

func NewCodexGenerator(client *http.Client, artifacts schema.ArtifactResolver) *CodexGenerator {
	return &CodexGenerator{httpClient: client, artifacts: artifacts, homeDir: os.UserHomeDir}
}

func (g *CodexGenerator) APIType() schema.APIType { return schema.APICodex }

// GenerateBatch always fails: the codex backend only serves streams.
func (g *CodexGenerator) GenerateBatch(context.Context, schema.GenRequest) ([]schema.Message, schema.GenResult, error) {
	return nil, schema.GenResult{Usage: schema.NoUsage()},
		fmt.Errorf("codex: batch generation: %w", schema.ErrUnsupportedMode)
}

func (g *CodexGenerator) GenerateStreaming(
	ctx context.Context,
	req schema.GenRequest,
	recv schema.Receiver,
) (schema.GenResult, error) {
	noUsage := schema.GenResult{Usage: schema.NoUsage()}
	model, err := checkRequest(req)
	if err != nil {
		return noUsage, err
	}
	auth, err := g.loadAuth(req.Provider)
	if err != nil {
		return noUsage, err
	}

	params := req.Agent.ModelParams.ForAPI(schema.APICodex)
	body := responsesPayload(ctx, g.artifacts, req, model, schema.APICodex, params)
	body["stream"] = true
	// The backend rejects requests without instructions.
	body["instructions"] = req.SystemPrompt
	body["prompt_cache_key"] = codexCacheKey(req)
	if _, ok := body["text"]; !ok {
		body["text"] = map[string]any{"verbosity": "medium"}
	}
	if _, ok := body["tools"]; ok && params.ParallelToolCalls == nil {
		body["parallel_tool_calls"] = true
	}
	applyModelOverrides(req.Provider, model, body)

	headers := map[string]string{
		"Authorization":      "Bearer " + auth.Tokens.AccessToken,
		"chatgpt-account-id": auth.Tokens.AccountID,
		"OpenAI-Beta":        "responses=experimental",
		"originator":         codexOriginator,
		"User-Agent":         "genlayer (go)",
		"Accept":             "text/event-stream",
	}
	url := baseURL(req.Provider, codexBaseURL) + "/codex/responses"
	resp, err := postJSON(ctx, g.httpClient, req.Provider, url, headers, body)
	if err != nil {
		return noUsage, codexFriendlyError(err)
	}
	defer resp.Body.Close()

	c := newResponsesStream(schema.APICodex)
	return runStream(ctx, recv, req.Provider.Name, req.Genseq, resp.Body, c.handle)
}

// authPath resolves auth.json: the provider's env var names the Codex home
// directory, falling back to ~/.codex.
func (g *CodexGenerator) authPath(p *schema.ProviderConfig) (string, error) {
	if p.APIKeyEnvVar != "" {
		if dir := strings.TrimSpace(os.Getenv(p.APIKeyEnvVar)); dir != "" {
			return filepath.Join(dir, "auth.json"), nil
		}
	}
	home, err := g.homeDir()
	if err != nil {
		return "", &schema.ConfigError{Provider: p.Name, Reason: fmt.Sprintf("resolve home directory: %v", err)}
	}
	return filepath.Join(home, ".codex", "auth.json"), nil
}

func (g *CodexGenerator) loadAuth(p *schema.ProviderConfig) (*CodexAuth, error) {
	path, err := g.authPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &schema.ConfigError{
			Provider: p.Name,
			Reason:   fmt.Sprintf("codex credentials not found at %s (run `codex login` first): %v", path, err),
		}
	}
	var auth CodexAuth
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, &schema.ConfigError{Provider: p.Name, Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}
	if auth.Tokens.AccessToken == "" {
		return nil, &schema.ConfigError{Provider: p.Name, Reason: fmt.Sprintf("%s has no access_token", path)}
	}
	return &auth, nil
}

// codexCacheKey derives a stable prompt cache key from the start of the
// dialog, so every turn of one dialog shares a key.
func codexCacheKey(req schema.GenRequest) string {
	b, _ := json.Marshal(struct {
		System string
		First  *schema.Message
	}{System: req.SystemPrompt, First: firstMessage(req.Context)})

	h := fnv.New64a()
	h.Write(b)
	return fmt.Sprintf("%016x", h.Sum64())
}

func firstMessage(msgs []schema.Message) *schema.Message {
	if len(msgs) == 0 {
		return nil
	}
	return &msgs[0]
}

func codexFriendlyError(err error) error {
	var verr *schema.VendorError
	if errors.As(err, &verr) && verr.StatusCode == http.StatusTooManyRequests {
		verr.Message = "ChatGPT usage quota exceeded or rate limit triggered. Please try again later."
	}
	return err
}
