package research

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newsroom/content-pipeline/internal/config"
	"github.com/newsroom/content-pipeline/internal/domain"
)

const (
	DefaultNewsBaseURL = "https://newsapi.org/v2"

	// newsMaxPageSize is the largest page the news API serves.
	newsMaxPageSize = 100
)

// NewsClient searches recent news coverage.
type NewsClient struct {
	http    *HTTPClient
	baseURL string
	now     func() time.Time
}

// NewNewsClient creates a news search client from endpoint settings.
func NewNewsClient(cfg config.EndpointConfig) *NewsClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultNewsBaseURL
	}
	return &NewsClient{
		http: NewHTTPClient(HTTPClientConfig{
			Name:         string(domain.ProviderNewsSearch),
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			MaxRetries:   cfg.MaxRetries,
			APIKey:       cfg.APIKey,
			APIKeyHeader: "X-Api-Key",
		}),
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

type newsResponse struct {
	Status       string        `json:"status"`
	TotalResults int           `json:"totalResults"`
	Articles     []newsArticle `json:"articles"`
	Code         string        `json:"code"`
	Message      string        `json:"message"`
}

type newsArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Content     string `json:"content"`
	PublishedAt string `json:"publishedAt"`
}

// Search returns up to maxResults articles about query, most relevant first.
func (c *NewsClient) Search(ctx context.Context, query string, maxResults int) ([]domain.Source, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewValidationError("query", "query is required")
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	if maxResults > newsMaxPageSize {
		maxResults = newsMaxPageSize
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("pageSize", strconv.Itoa(maxResults))
	params.Set("sortBy", "relevancy")
	params.Set("language", "en")

	var resp newsResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/everything?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("news search: %w", err)
	}
	if resp.Status == "error" {
		return nil, domain.NewExternalAPIError(c.http.Name(), 200, resp.Code+": "+resp.Message, nil)
	}

	retrieved := c.now().UTC()
	sources := make([]domain.Source, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if a.URL == "" {
			continue
		}
		sources = append(sources, domain.Source{
			URL:           a.URL,
			Title:         strings.TrimSpace(a.Title),
			ExtractedText: joinNonEmpty(a.Description, stripTruncationMarker(a.Content)),
			RetrievedAt:   retrieved,
			Provider:      domain.ProviderNewsSearch,
		})
	}
	return sources, nil
}

// stripTruncationMarker removes the "[+123 chars]" suffix the news API appends
// to shortened content.
func stripTruncationMarker(s string) string {
	if i := strings.LastIndex(s, "[+"); i >= 0 && strings.HasSuffix(s, " chars]") {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
