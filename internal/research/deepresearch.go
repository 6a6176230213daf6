package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/newsroom/content-pipeline/internal/config"
	"github.com/newsroom/content-pipeline/internal/domain"
)

const (
	DefaultDeepResearchBaseURL = "https://api.tavily.com"

	deepResearchMaxResults = 20
)

// DeepResearchClient queries a research API that returns the full text of
// each result.
type DeepResearchClient struct {
	http    *HTTPClient
	baseURL string
	now     func() time.Time
}

// NewDeepResearchClient creates a deep research client from endpoint settings.
func NewDeepResearchClient(cfg config.EndpointConfig) *DeepResearchClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultDeepResearchBaseURL
	}
	return &DeepResearchClient{
		http: NewHTTPClient(HTTPClientConfig{
			Name:         string(domain.ProviderDeepResearch),
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			MaxRetries:   cfg.MaxRetries,
			APIKey:       cfg.APIKey,
			APIKeyHeader: "Authorization",
			APIKeyPrefix: "Bearer ",
		}),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

type deepResearchRequest struct {
	Query             string `json:"query"`
	SearchDepth       string `json:"search_depth"`
	MaxResults        int    `json:"max_results"`
	IncludeRawContent bool   `json:"include_raw_content"`
	IncludeAnswer     bool   `json:"include_answer"`
}

type deepResearchResponse struct {
	Results []struct {
		Title      string  `json:"title"`
		URL        string  `json:"url"`
		Content    string  `json:"content"`
		RawContent string  `json:"raw_content"`
		Score      float64 `json:"score"`
	} `json:"results"`
}

// Research returns up to sourceCount full-text sources about topic.
func (c *DeepResearchClient) Research(ctx context.Context, topic string, sourceCount int) ([]domain.Source, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, domain.NewValidationError("topic", "topic is required")
	}
	if sourceCount <= 0 {
		sourceCount = 5
	}
	if sourceCount > deepResearchMaxResults {
		sourceCount = deepResearchMaxResults
	}

	var resp deepResearchResponse
	err := c.http.PostJSON(ctx, c.baseURL+"/search", deepResearchRequest{
		Query:             topic,
		SearchDepth:       "advanced",
		MaxResults:        sourceCount,
		IncludeRawContent: true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("deep research: %w", err)
	}

	retrieved := c.now().UTC()
	sources := make([]domain.Source, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.URL == "" {
			continue
		}
		text := r.RawContent
		if strings.TrimSpace(text) == "" {
			text = r.Content
		}
		sources = append(sources, domain.Source{
			URL:           r.URL,
			Title:         strings.TrimSpace(r.Title),
			ExtractedText: strings.TrimSpace(text),
			RetrievedAt:   retrieved,
			Provider:      domain.ProviderDeepResearch,
		})
	}
	return sources, nil
}
