package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/newsroom/content-pipeline/internal/config"
	"github.com/newsroom/content-pipeline/internal/domain"
)

const (
	defaultMaxPages     = 5
	defaultMaxBodyBytes = 5 << 20

	// minMainContentChars is the text length a candidate container needs
	// before it is preferred over <body>.
	minMainContentChars = 200
)

// contentSelectors are tried in order to find the main article container.
var contentSelectors = []string{
	"article",
	"main",
	"[role=main]",
	"#content",
	".post-content",
	".article-body",
	".entry-content",
}

// boilerplateSelectors are removed before conversion.
const boilerplateSelectors = "script, style, noscript, nav, header, footer, aside, form, iframe, svg, button"

// Crawler fetches web pages and extracts their main content as markdown.
type Crawler struct {
	http         *HTTPClient
	converter    *md.Converter
	maxPages     int
	maxBodyBytes int64
	now          func() time.Time
}

// NewCrawler creates a crawler from crawl settings.
func NewCrawler(cfg config.CrawlConfig) *Crawler {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Crawler{
		http: NewHTTPClient(HTTPClientConfig{
			Name:      string(domain.ProviderCrawl),
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			UserAgent: cfg.UserAgent,
		}),
		converter:    md.NewConverter("", true, nil),
		maxPages:     maxPages,
		maxBodyBytes: maxBody,
		now:          time.Now,
	}
}

// Crawl fetches up to maxPages of urls in order and returns one Source per
// page that yielded text. Pages that fail are skipped; an error is returned
// only when every attempted page failed.
func (c *Crawler) Crawl(ctx context.Context, urls []string, maxPages int) ([]domain.Source, error) {
	if maxPages <= 0 || maxPages > c.maxPages {
		maxPages = c.maxPages
	}

	var (
		sources  []domain.Source
		failures []error
		seen     = make(map[string]struct{}, len(urls))
	)
	for _, raw := range urls {
		if len(sources)+len(failures) >= maxPages {
			break
		}
		if _, dup := seen[raw]; dup || !isCrawlable(raw) {
			continue
		}
		seen[raw] = struct{}{}

		src, err := c.fetch(ctx, raw)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures = append(failures, err)
			continue
		}
		sources = append(sources, src)
	}

	if len(sources) == 0 && len(failures) > 0 {
		return nil, fmt.Errorf("crawl: all %d pages failed: %w", len(failures), errors.Join(failures...))
	}
	return sources, nil
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) (domain.Source, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return domain.Source{}, fmt.Errorf("build request for %s: %w", pageURL, err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Source{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if err := CheckResponse(c.http.Name(), resp); err != nil {
		return domain.Source{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return domain.Source{}, fmt.Errorf("fetch %s: unsupported content type %q", pageURL, ct)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return domain.Source{}, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	text := strings.TrimSpace(c.converter.Convert(mainContent(doc)))
	if text == "" {
		return domain.Source{}, fmt.Errorf("extract %s: no text content", pageURL)
	}

	return domain.Source{
		URL:           pageURL,
		Title:         pageTitle(doc),
		ExtractedText: text,
		RetrievedAt:   c.now().UTC(),
		Provider:      domain.ProviderCrawl,
	}, nil
}

// mainContent strips boilerplate and returns the first container that holds
// enough text, falling back to <body>.
func mainContent(doc *goquery.Document) *goquery.Selection {
	doc.Find(boilerplateSelectors).Remove()

	for _, sel := range contentSelectors {
		candidate := doc.Find(sel).First()
		if candidate.Length() > 0 && len(strings.TrimSpace(candidate.Text())) >= minMainContentChars {
			return candidate
		}
	}
	return doc.Find("body").First()
}

func pageTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		return h1
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func isCrawlable(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
