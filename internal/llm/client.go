// Package llm abstracts the external text-generation service behind a small
// client interface with interchangeable providers.
package llm

import (
	"context"
	"fmt"
)

// Usage reports token consumption for one generation call. The orchestrator
// accumulates TotalTokens onto the owning job.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Result is the generated text plus its resource cost.
type Result struct {
	Text  string
	Usage Usage
}

// Client is an abstraction over LLM providers.
type Client interface {
	// Generate produces free-form text for the given system and user
	// instructions using the specified model tier.
	Generate(ctx context.Context, system, prompt string, tier ModelTier) (*Result, error)
	// GenerateJSON produces a JSON response, with markdown fences already
	// stripped from the returned text.
	GenerateJSON(ctx context.Context, system, prompt string, tier ModelTier) (*Result, error)
	// Close releases any resources held by the client.
	Close() error
}

// NewClient creates an LLM client based on configuration.
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(config, apiKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", config.Provider)
	}
}
