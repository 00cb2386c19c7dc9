package ai

import "time"

// ProviderConfig holds the configuration needed to create an AI provider.
type ProviderConfig struct {
	Provider string // "ollama" | "anthropic" | "openai"
	APIKey   string
	BaseURL  string // optional; empty selects the provider's public endpoint
	Timeout  time.Duration
}

// CompletionRequest is a single prompt sent to a provider.
type CompletionRequest struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}
