package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/observability"
	"github.com/newsroom/content-pipeline/internal/temporal/resilience"
)

// NewsSearcher finds recent news coverage of a topic.
type NewsSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]domain.Source, error)
}

// DeepResearcher returns full-text research results for a topic.
type DeepResearcher interface {
	Research(ctx context.Context, topic string, sourceCount int) ([]domain.Source, error)
}

// PageCrawler fetches pages and extracts their main content.
type PageCrawler interface {
	Crawl(ctx context.Context, urls []string, maxPages int) ([]domain.Source, error)
}

// ResearchActivities provides the research stage activities.
// Methods on this struct are registered as Temporal activities via the worker.
type ResearchActivities struct {
	news    NewsSearcher
	deep    DeepResearcher
	crawler PageCrawler
	metrics *observability.Metrics
}

// NewResearchActivities creates a new ResearchActivities instance.
// The metrics parameter may be nil (metrics recording will be skipped).
func NewResearchActivities(news NewsSearcher, deep DeepResearcher, crawler PageCrawler, metrics *observability.Metrics) *ResearchActivities {
	return &ResearchActivities{
		news:    news,
		deep:    deep,
		crawler: crawler,
		metrics: metrics,
	}
}

// SearchNews queries the news search provider.
func (a *ResearchActivities) SearchNews(ctx context.Context, input SearchNewsInput) (*ResearchOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("searching news", "topic", input.Topic, "maxResults", input.MaxResults)

	start := time.Now()
	sources, err := a.news.Search(ctx, input.Topic, input.MaxResults)
	if err != nil {
		a.recordFailure(domain.ProviderNewsSearch, err)
		logger.Error("news search failed", "topic", input.Topic, "error", err)
		return nil, resilience.ToApplicationError("news search", err)
	}
	a.metrics.RecordResearchRequest(string(domain.ProviderNewsSearch), len(sources), time.Since(start).Seconds())

	logger.Info("news search completed", "topic", input.Topic, "sources", len(sources))
	return &ResearchOutput{Sources: sources}, nil
}

// DeepResearch queries the deep research provider.
func (a *ResearchActivities) DeepResearch(ctx context.Context, input DeepResearchInput) (*ResearchOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("running deep research", "topic", input.Topic, "sourceCount", input.SourceCount)

	start := time.Now()
	sources, err := a.deep.Research(ctx, input.Topic, input.SourceCount)
	if err != nil {
		a.recordFailure(domain.ProviderDeepResearch, err)
		logger.Error("deep research failed", "topic", input.Topic, "error", err)
		return nil, resilience.ToApplicationError("deep research", err)
	}
	a.metrics.RecordResearchRequest(string(domain.ProviderDeepResearch), len(sources), time.Since(start).Seconds())

	logger.Info("deep research completed", "topic", input.Topic, "sources", len(sources))
	return &ResearchOutput{Sources: sources}, nil
}

// DeepCrawl fetches the full text of up to MaxPages URLs, one page at a time
// with a heartbeat per page. Failed pages are skipped; the activity fails
// only when every attempted page failed.
func (a *ResearchActivities) DeepCrawl(ctx context.Context, input DeepCrawlInput) (*ResearchOutput, error) {
	logger := activity.GetLogger(ctx)

	urls := input.URLs
	if input.MaxPages > 0 && len(urls) > input.MaxPages {
		urls = urls[:input.MaxPages]
	}
	logger.Info("crawling pages", "pages", len(urls))

	out := &ResearchOutput{}
	if len(urls) == 0 {
		return out, nil
	}

	start := time.Now()
	var lastErr error
	for i, u := range urls {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		activity.RecordHeartbeat(ctx, fmt.Sprintf("crawling page %d/%d", i+1, len(urls)))

		sources, err := a.crawler.Crawl(ctx, []string{u}, 1)
		if err != nil {
			out.Failed++
			lastErr = err
			logger.Warn("failed to crawl page", "url", u, "error", err)
			continue
		}
		out.Sources = append(out.Sources, sources...)
	}

	if len(out.Sources) == 0 && lastErr != nil {
		a.recordFailure(domain.ProviderCrawl, lastErr)
		return nil, resilience.ToApplicationError(fmt.Sprintf("deep crawl: all %d pages failed", out.Failed), lastErr)
	}
	a.metrics.RecordResearchRequest(string(domain.ProviderCrawl), len(out.Sources), time.Since(start).Seconds())

	logger.Info("crawl completed", "sources", len(out.Sources), "failed", out.Failed)
	return out, nil
}

func (a *ResearchActivities) recordFailure(provider domain.SourceProvider, err error) {
	if errors.Is(err, domain.ErrRateLimited) {
		a.metrics.RecordRateLimited(string(provider))
	}
	a.metrics.RecordResearchRequestFailed(string(provider), resilience.Classify(err).String())
}
