// Package graph pushes article entities into the knowledge graph so related
// coverage can be linked across articles.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/newsroom/content-pipeline/internal/config"
	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/research"
)

const (
	DefaultBaseURL = "https://api.getzep.com/api/v2"

	providerName = "knowledge-graph"

	// maxEpisodeChars is the largest data payload the graph API accepts.
	maxEpisodeChars = 10000
)

// Syncer records an article's entities in the knowledge graph.
type Syncer interface {
	Sync(ctx context.Context, ep Episode) error
}

// Episode is one article's contribution to the graph.
type Episode struct {
	ArticleID string   `json:"article_id"`
	App       string   `json:"app"`
	Title     string   `json:"title"`
	Entities  []string `json:"entities"`
}

// Client calls the knowledge-graph API.
type Client struct {
	http    *research.HTTPClient
	baseURL string
}

var _ Syncer = (*Client)(nil)

// NewClient creates a knowledge-graph client.
func NewClient(cfg config.EndpointConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http: research.NewHTTPClient(research.HTTPClientConfig{
			Name:         providerName,
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			MaxRetries:   cfg.MaxRetries,
			APIKey:       cfg.APIKey,
			APIKeyHeader: "Authorization",
			APIKeyPrefix: "Api-Key ",
		}),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type addDataRequest struct {
	GroupID string `json:"group_id"`
	Type    string `json:"type"`
	Data    string `json:"data"`
}

// Sync adds the episode to the app's graph group.
func (c *Client) Sync(ctx context.Context, ep Episode) error {
	if ep.ArticleID == "" {
		return domain.NewValidationError("article_id", "article ID is required")
	}

	data, err := encodeEpisode(ep)
	if err != nil {
		return err
	}

	err = c.http.PostJSON(ctx, c.baseURL+"/graph", addDataRequest{
		GroupID: groupID(ep.App),
		Type:    "json",
		Data:    data,
	}, nil)
	if err != nil {
		return fmt.Errorf("graph sync for article %s: %w", ep.ArticleID, err)
	}
	return nil
}

// encodeEpisode serialises ep, dropping trailing entities until it fits the
// payload limit.
func encodeEpisode(ep Episode) (string, error) {
	for {
		b, err := json.Marshal(ep)
		if err != nil {
			return "", fmt.Errorf("encode graph episode: %w", err)
		}
		if len(b) <= maxEpisodeChars || len(ep.Entities) == 0 {
			return string(b), nil
		}
		ep.Entities = ep.Entities[:len(ep.Entities)-1]
	}
}

func groupID(app string) string {
	if app == "" {
		return "articles"
	}
	return "articles-" + strings.ToLower(app)
}
