package ai

import (
	"context"
	"fmt"
	"time"
)

const defaultTimeout = 60 * time.Second

// Provider is the interface that all LLM backends must implement.
type Provider interface {
	// Complete sends one prompt and returns the raw text of the answer.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Name identifies the backend in logs.
	Name() string
}

// NewProvider creates the appropriate provider based on config.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	switch cfg.Provider {
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL, timeout), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, timeout), nil
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
}
