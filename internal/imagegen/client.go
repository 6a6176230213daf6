// Package imagegen generates article illustrations through an image
// generation API. Requests may reference the previous image of the same
// article so a sequence of images stays visually consistent.
package imagegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/newsroom/content-pipeline/internal/config"
	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/research"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-image-1"
	DefaultSize    = "1536x1024"

	providerName = "image-generation"
)

// Generator produces one image for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt, contextURL string) (*Image, error)
}

// Image is a generated image as returned by the API.
type Image struct {
	URL           string
	RevisedPrompt string
}

// Client calls the image generation API.
type Client struct {
	http    *research.HTTPClient
	baseURL string
	model   string
	size    string
}

var _ Generator = (*Client)(nil)

// NewClient creates an image generation client.
func NewClient(cfg config.ImagesConfig) *Client {
	baseURL := cfg.Endpoint.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	size := cfg.Size
	if size == "" {
		size = DefaultSize
	}
	return &Client{
		http: research.NewHTTPClient(research.HTTPClientConfig{
			Name:         providerName,
			Timeout:      cfg.Endpoint.Timeout,
			RateLimit:    cfg.Endpoint.RateLimit,
			MaxRetries:   cfg.Endpoint.MaxRetries,
			APIKey:       cfg.Endpoint.APIKey,
			APIKeyHeader: "Authorization",
			APIKeyPrefix: "Bearer ",
		}),
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		size:    size,
	}
}

type generationRequest struct {
	Model             string `json:"model"`
	Prompt            string `json:"prompt"`
	Size              string `json:"size"`
	N                 int    `json:"n"`
	ReferenceImageURL string `json:"reference_image_url,omitempty"`
}

type generationResponse struct {
	Data []struct {
		URL           string `json:"url"`
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// Generate creates one image. A non-empty contextURL is sent as the reference
// image and mentioned in the prompt.
func (c *Client) Generate(ctx context.Context, prompt, contextURL string) (*Image, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, domain.NewValidationError("prompt", "prompt is required")
	}
	if contextURL != "" {
		prompt += "\n\nKeep the visual style, palette and characters consistent with the reference image: " + contextURL
	}

	var resp generationResponse
	err := c.http.PostJSON(ctx, c.baseURL+"/images/generations", generationRequest{
		Model:             c.model,
		Prompt:            prompt,
		Size:              c.size,
		N:                 1,
		ReferenceImageURL: contextURL,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, domain.NewExternalAPIError(providerName, 200, "response contains no images", nil)
	}

	d := resp.Data[0]
	url := d.URL
	if url == "" && d.B64JSON != "" {
		url = "data:image/png;base64," + d.B64JSON
	}
	if url == "" {
		return nil, domain.NewExternalAPIError(providerName, 200, "image has neither url nor data", nil)
	}
	return &Image{URL: url, RevisedPrompt: d.RevisedPrompt}, nil
}
