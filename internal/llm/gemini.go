package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiClient implements Client for Google Gemini.
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{client: client, config: config}, nil
}

// Generate produces free-form text for the given instructions.
func (c *GeminiClient) Generate(ctx context.Context, system, prompt string, tier ModelTier) (*Result, error) {
	return c.generate(ctx, system, prompt, tier, "")
}

// GenerateJSON produces a JSON response with markdown fences stripped.
func (c *GeminiClient) GenerateJSON(ctx context.Context, system, prompt string, tier ModelTier) (*Result, error) {
	res, err := c.generate(ctx, system, prompt, tier, "application/json")
	if err != nil {
		return nil, err
	}
	res.Text = CleanJSONBlock(res.Text)
	return res, nil
}

func (c *GeminiClient) generate(ctx context.Context, system, prompt string, tier ModelTier, mimeType string) (*Result, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(0.4)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if mimeType != "" {
		model.ResponseMIMEType = mimeType
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return nil, err
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return &Result{Text: text, Usage: usage}, nil
}

// Close releases resources held by the client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// extractTextFromResponse extracts text from a Gemini API response.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
