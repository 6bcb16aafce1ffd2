package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

// checkRequest validates a generation request before any I/O and returns
// the resolved model id.
func checkRequest(req schema.GenRequest) (string, error) {
	if req.Provider == nil {
		return "", &schema.ConfigError{Reason: "no provider configured"}
	}
	if req.Agent == nil || req.Agent.Model == "" {
		return "", &schema.ConfigError{Provider: req.Provider.Name, Reason: "no model configured for agent"}
	}
	if _, ok := req.Provider.Model(req.Agent.Model); !ok {
		return "", &schema.ConfigError{
			Provider: req.Provider.Name,
			Reason:   fmt.Sprintf("model %q is not in the provider catalog", req.Agent.Model),
		}
	}
	return req.Agent.Model, nil
}

// apiKey reads the provider credential from its environment variable.
func apiKey(p *schema.ProviderConfig) (string, error) {
	if p.APIKeyEnvVar == "" {
		return "", &schema.ConfigError{Provider: p.Name, Reason: "apiKeyEnvVar is not set"}
	}
	key := os.Getenv(p.APIKeyEnvVar)
	if key == "" {
		return "", &schema.ConfigError{
			Provider: p.Name,
			Reason:   fmt.Sprintf("environment variable %s is empty or unset", p.APIKeyEnvVar),
		}
	}
	return key, nil
}

// baseURL returns the configured base URL, or fallback, without a trailing slash.
func baseURL(p *schema.ProviderConfig, fallback string) string {
	base := strings.TrimSpace(p.BaseURL)
	if base == "" {
		base = fallback
	}
	return strings.TrimRight(base, "/")
}

// postJSON sends payload and returns the response when the vendor answered
// with a 2xx status. Any other status is turned into a *schema.VendorError.
func postJSON(
	ctx context.Context,
	client *http.Client,
	provider *schema.ProviderConfig,
	url string,
	headers map[string]string,
	payload any,
) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", provider.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", provider.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	for k, v := range provider.ExtraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, abortError(ctx)
		}
		return nil, fmt.Errorf("%s HTTP request: %w", provider.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, readVendorError(provider.Name, resp)
	}
	return resp, nil
}

// readVendorError extracts the vendor's error message from a failed response.
func readVendorError(provider string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	verr := &schema.VendorError{Provider: provider, StatusCode: resp.StatusCode}
	if typ, msg, ok := parseErrorBody(raw); ok {
		verr.Type, verr.Message = typ, msg
		return verr
	}
	verr.Message = friendlyHTTPError(resp.StatusCode, raw)
	return verr
}

// parseErrorBody understands {"error": {...}} and {"error": "..."} bodies.
func parseErrorBody(raw []byte) (typ, msg string, ok bool) {
	var body struct {
		Type  string          `json:"type"`
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Error) == 0 {
		return "", "", false
	}
	var s string
	if err := json.Unmarshal(body.Error, &s); err == nil {
		return body.Type, s, s != ""
	}
	var obj struct {
		Type    string `json:"type"`
		Status  string `json:"status"`
		Code    any    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body.Error, &obj); err != nil || obj.Message == "" {
		return "", "", false
	}
	typ = obj.Type
	if typ == "" {
		typ = obj.Status
	}
	return typ, obj.Message, true
}

func friendlyHTTPError(code int, body []byte) string {
	if code == http.StatusTooManyRequests {
		return "rate limit exceeded"
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}

// readBody reads a batch response body, mapping cancellation to abort.
func readBody(ctx context.Context, provider string, resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, abortError(ctx)
		}
		return nil, fmt.Errorf("read %s response: %w", provider, err)
	}
	return raw, nil
}
