package research

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroom/content-pipeline/internal/config"
	"github.com/newsroom/content-pipeline/internal/domain"
)

const articlePage = `<!DOCTYPE html>
<html>
<head><title>Site | Housing</title><script>var tracking = 1;</script></head>
<body>
<nav><a href="/">Home</a> <a href="/about">About</a></nav>
<article>
<h1>Housing starts climb</h1>
<p>Housing starts rose for the third straight month as builders responded to lower mortgage rates and steady demand in suburban markets.</p>
<p>Economists said the trend could continue into the spring if financing conditions hold and material costs remain stable across regions.</p>
</article>
<footer>Copyright footer text</footer>
</body>
</html>`

func newTestCrawler() *Crawler {
	return NewCrawler(config.CrawlConfig{RateLimit: 1000, MaxPages: 3})
}

func TestCrawler_Crawl_ExtractsMainContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	sources, err := newTestCrawler().Crawl(context.Background(), []string{srv.URL + "/housing"}, 0)
	require.NoError(t, err)
	require.Len(t, sources, 1)

	src := sources[0]
	assert.Equal(t, srv.URL+"/housing", src.URL)
	assert.Equal(t, "Housing starts climb", src.Title)
	assert.Equal(t, domain.ProviderCrawl, src.Provider)
	assert.Contains(t, src.ExtractedText, "Housing starts rose")
	assert.NotContains(t, src.ExtractedText, "tracking")
	assert.NotContains(t, src.ExtractedText, "Copyright footer")
	assert.NotContains(t, src.ExtractedText, "About")
}

func TestCrawler_Crawl_SkipsFailedPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(articlePage))
		case "/pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	urls := []string{srv.URL + "/missing", srv.URL + "/pdf", srv.URL + "/ok"}
	sources, err := newTestCrawler().Crawl(context.Background(), urls, 3)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, srv.URL+"/ok", sources[0].URL)
}

func TestCrawler_Crawl_AllFail(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestCrawler().Crawl(context.Background(), []string{srv.URL + "/a", srv.URL + "/b"}, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 pages failed")
}

func TestCrawler_Crawl_RespectsMaxPagesAndDedup(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	urls := []string{
		srv.URL + "/1",
		srv.URL + "/1",
		"mailto:someone@example.com",
		srv.URL + "/2",
		srv.URL + "/3",
	}
	sources, err := newTestCrawler().Crawl(context.Background(), urls, 2)
	require.NoError(t, err)
	assert.Len(t, sources, 2)
	assert.Equal(t, 2, hits)
}

func TestCrawler_Crawl_NoURLs(t *testing.T) {
	sources, err := newTestCrawler().Crawl(context.Background(), nil, 3)
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestMainContent_FallsBackToBody(t *testing.T) {
	page := `<html><body><article>short</article><p>` + strings.Repeat("body text ", 30) + `</p></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	sources, err := newTestCrawler().Crawl(context.Background(), []string{srv.URL}, 1)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Contains(t, sources[0].ExtractedText, "body text")
}

func TestIsCrawlable(t *testing.T) {
	assert.True(t, isCrawlable("https://example.com/a"))
	assert.True(t, isCrawlable("http://example.com"))
	assert.False(t, isCrawlable("ftp://example.com"))
	assert.False(t, isCrawlable("/relative"))
	assert.False(t, isCrawlable("://bad"))
}
