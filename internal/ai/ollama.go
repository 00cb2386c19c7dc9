package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Compile-time interface check.
var _ Provider = (*OllamaProvider)(nil)

// DefaultOllamaURL is where a local Ollama server listens by default.
const DefaultOllamaURL = "http://127.0.0.1:11434"

// OllamaProvider implements Provider using the Ollama generate endpoint with
// streaming disabled.
type OllamaProvider struct {
	endpoint string
	client   *http.Client
}

// NewOllamaProvider creates an OllamaProvider. An empty baseURL selects
// DefaultOllamaURL.
func NewOllamaProvider(baseURL string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &OllamaProvider{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/generate",
		client:   &http.Client{Timeout: timeout},
	}
}

// Name implements Provider.
func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Complete posts the prompt to /api/generate and returns the response field.
func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	payload := ollamaRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
	}
	if req.MaxTokens > 0 {
		payload.Options = &ollamaOptions{NumPredict: req.MaxTokens}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	slog.Debug("calling Ollama", "model", req.Model, "endpoint", p.endpoint)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", wrapCallError(fmt.Errorf("sending request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wrapCallError(fmt.Errorf("reading response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr ollamaResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return "", fmt.Errorf("%w: ollama error (status %d): %s", ErrTransport, resp.StatusCode, apiErr.Error)
		}
		return "", fmt.Errorf("%w: unexpected status code: %d", ErrTransport, resp.StatusCode)
	}

	var apiResp ollamaResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %w", ErrMalformedResponse, err)
	}
	if apiResp.Error != "" {
		return "", fmt.Errorf("%w: ollama error: %s", ErrTransport, apiResp.Error)
	}

	return apiResp.Response, nil
}
