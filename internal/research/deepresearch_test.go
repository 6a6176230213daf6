package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroom/content-pipeline/internal/config"
	"github.com/newsroom/content-pipeline/internal/domain"
)

func TestDeepResearchClient_Research(t *testing.T) {
	var got deepResearchRequest
	var gotAuth, gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"title": "Deep one", "url": "https://d.example/1", "content": "snippet", "raw_content": "full raw text"},
			{"title": "Snippet only", "url": "https://d.example/2", "content": "just the snippet", "raw_content": ""},
			{"title": "Missing url", "url": "", "content": "x"}
		]}`))
	}))
	defer srv.Close()

	c := NewDeepResearchClient(config.EndpointConfig{BaseURL: srv.URL, APIKey: "tvly", RateLimit: 1000})
	sources, err := c.Research(context.Background(), "housing policy", 50)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/search", gotPath)
	assert.Equal(t, "Bearer tvly", gotAuth)
	assert.Equal(t, "housing policy", got.Query)
	assert.Equal(t, "advanced", got.SearchDepth)
	assert.Equal(t, deepResearchMaxResults, got.MaxResults)
	assert.True(t, got.IncludeRawContent)

	require.Len(t, sources, 2)
	assert.Equal(t, "full raw text", sources[0].ExtractedText)
	assert.Equal(t, "just the snippet", sources[1].ExtractedText)
	assert.Equal(t, domain.ProviderDeepResearch, sources[1].Provider)
}

func TestDeepResearchClient_Research_EmptyTopic(t *testing.T) {
	c := NewDeepResearchClient(config.EndpointConfig{})
	_, err := c.Research(context.Background(), "", 5)
	assert.Error(t, err)
}

func TestDeepResearchClient_Research_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewDeepResearchClient(config.EndpointConfig{BaseURL: srv.URL, RateLimit: 1000})
	_, err := c.Research(context.Background(), "topic", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deep research")
}
