package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIClient implements Client for the OpenAI chat completion API.
type OpenAIClient struct {
	client openai.Client
	config *Config
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(config *Config, apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		config: config,
	}, nil
}

// Generate produces free-form text for the given instructions.
func (c *OpenAIClient) Generate(ctx context.Context, system, prompt string, tier ModelTier) (*Result, error) {
	return c.generate(ctx, system, prompt, tier, false)
}

// GenerateJSON produces a JSON response using the json_object response format.
func (c *OpenAIClient) GenerateJSON(ctx context.Context, system, prompt string, tier ModelTier) (*Result, error) {
	res, err := c.generate(ctx, system, prompt, tier, true)
	if err != nil {
		return nil, err
	}
	res.Text = CleanJSONBlock(res.Text)
	return res, nil
}

func (c *OpenAIClient) generate(ctx context.Context, system, prompt string, tier ModelTier, asJSON bool) (*Result, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", tier)
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(modelName),
		Messages:    messages,
		Temperature: openai.Float(0.4),
	}
	if asJSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{Type: "json_object"},
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no completion choices returned")
	}

	return &Result{
		Text: completion.Choices[0].Message.Content,
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
	}, nil
}

// Close is a no-op; the OpenAI client holds no connections.
func (c *OpenAIClient) Close() error { return nil }
