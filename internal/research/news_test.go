package research

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroom/content-pipeline/internal/config"
	"github.com/newsroom/content-pipeline/internal/domain"
)

func TestNewsClient_Search(t *testing.T) {
	var gotPath, gotQuery, gotPageSize, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		gotPageSize = r.URL.Query().Get("pageSize")
		gotKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "ok",
			"totalResults": 3,
			"articles": [
				{"title": " Rates rise ", "url": "https://a.example/1", "description": "Central bank moves.", "content": "The bank raised rates today... [+1234 chars]"},
				{"title": "No URL", "url": "", "description": "dropped"},
				{"title": "Second", "url": "https://b.example/2", "description": "", "content": "Full body"}
			]
		}`))
	}))
	defer srv.Close()

	c := NewNewsClient(config.EndpointConfig{BaseURL: srv.URL + "/", APIKey: "news-key", RateLimit: 1000})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	sources, err := c.Search(context.Background(), "interest rates", 500)
	require.NoError(t, err)

	assert.Equal(t, "/everything", gotPath)
	assert.Equal(t, "interest rates", gotQuery)
	assert.Equal(t, "100", gotPageSize)
	assert.Equal(t, "news-key", gotKey)

	require.Len(t, sources, 2)
	assert.Equal(t, "Rates rise", sources[0].Title)
	assert.Equal(t, "Central bank moves.\n\nThe bank raised rates today...", sources[0].ExtractedText)
	assert.Equal(t, domain.ProviderNewsSearch, sources[0].Provider)
	assert.Equal(t, fixed, sources[0].RetrievedAt)
	assert.Equal(t, "Full body", sources[1].ExtractedText)
}

func TestNewsClient_Search_EmptyQuery(t *testing.T) {
	c := NewNewsClient(config.EndpointConfig{})
	_, err := c.Search(context.Background(), "  ", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestNewsClient_Search_ErrorStatusInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","code":"apiKeyInvalid","message":"bad key"}`))
	}))
	defer srv.Close()

	c := NewNewsClient(config.EndpointConfig{BaseURL: srv.URL, RateLimit: 1000})
	_, err := c.Search(context.Background(), "x", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apiKeyInvalid")
}

func TestNewsClient_Search_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewNewsClient(config.EndpointConfig{BaseURL: srv.URL, RateLimit: 1000})
	_, err := c.Search(context.Background(), "x", 5)
	require.Error(t, err)

	var apiErr *domain.ExternalAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, apiErr.Retryable())
}

func TestStripTruncationMarker(t *testing.T) {
	assert.Equal(t, "Hello world", stripTruncationMarker("Hello world [+42 chars]"))
	assert.Equal(t, "no marker", stripTruncationMarker("no marker"))
	assert.Equal(t, "keeps [+ inside", stripTruncationMarker("keeps [+ inside"))
}
