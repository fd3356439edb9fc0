package llm

import "os"

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

// ModelTier selects a model by cost/quality tradeoff rather than by name.
type ModelTier string

const (
	// TierFast is used for short structured calls (fact checking, patch
	// proposals, research digests).
	TierFast ModelTier = "fast"
	// TierQuality is used for long-form generation (copy, assembly).
	TierQuality ModelTier = "quality"
)

// Config holds provider selection and the model name per tier.
type Config struct {
	Provider Provider
	Models   map[ModelTier]string
}

// DefaultConfig returns the Gemini defaults, overridable via LLM_PROVIDER,
// LLM_MODEL_FAST and LLM_MODEL_QUALITY.
func DefaultConfig() *Config {
	cfg := &Config{
		Provider: ProviderGemini,
		Models: map[ModelTier]string{
			TierFast:    "gemini-2.0-flash",
			TierQuality: "gemini-2.5-pro",
		},
	}

	if p := os.Getenv("LLM_PROVIDER"); p != "" {
		cfg.Provider = Provider(p)
		if cfg.Provider == ProviderOpenAI {
			cfg.Models = map[ModelTier]string{
				TierFast:    "gpt-4o-mini",
				TierQuality: "gpt-4o",
			}
		}
	}
	if m := os.Getenv("LLM_MODEL_FAST"); m != "" {
		cfg.Models[TierFast] = m
	}
	if m := os.Getenv("LLM_MODEL_QUALITY"); m != "" {
		cfg.Models[TierQuality] = m
	}

	return cfg
}

// GetModel returns the model name configured for a tier.
func (c *Config) GetModel(tier ModelTier) string {
	if c.Models == nil {
		return ""
	}
	return c.Models[tier]
}
