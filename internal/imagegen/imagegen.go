// Package imagegen abstracts the external image-generation service used by
// the design step.
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Image is a generated binary asset.
type Image struct {
	Data     []byte
	MIMEType string
}

// Refusal is a structured decline from the image service. It is an error so
// callers can branch on it without losing the reason.
type Refusal struct {
	Reason string
}

func (r *Refusal) Error() string {
	return fmt.Sprintf("image generation refused: %s", r.Reason)
}

// Generator produces an image for a prompt and aspect ratio.
type Generator interface {
	Generate(ctx context.Context, prompt, aspectRatio string) (*Image, error)
}

// OpenAIGenerator implements Generator over the OpenAI Images API.
type OpenAIGenerator struct {
	client openai.Client
	model  openai.ImageModel
}

// NewOpenAIGenerator creates an image generator.
func NewOpenAIGenerator(apiKey string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	return &OpenAIGenerator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  openai.ImageModelDallE3,
	}, nil
}

// Generate renders an image. A content-policy decline is returned as *Refusal.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt, aspectRatio string) (*Image, error) {
	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          g.model,
		Size:           sizeForAspect(aspectRatio),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == 400 &&
			strings.Contains(strings.ToLower(apiErr.Message), "content policy") {
			return nil, &Refusal{Reason: apiErr.Message}
		}
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no image in response")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}

	return &Image{Data: data, MIMEType: "image/png"}, nil
}

// sizeForAspect maps an aspect ratio to the closest supported size.
func sizeForAspect(aspect string) openai.ImageGenerateParamsSize {
	switch aspect {
	case "16:9", "landscape":
		return openai.ImageGenerateParamsSize1792x1024
	case "9:16", "portrait":
		return openai.ImageGenerateParamsSize1024x1792
	default:
		return openai.ImageGenerateParamsSize1024x1024
	}
}
