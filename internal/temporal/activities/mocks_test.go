package activities

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/graph"
	"github.com/newsroom/content-pipeline/internal/imagegen"
	"github.com/newsroom/content-pipeline/internal/llm"
	"github.com/newsroom/content-pipeline/internal/outbox"
	"github.com/newsroom/content-pipeline/internal/repository"
)

// ---------------------------------------------------------------------------
// Mock: research clients
// ---------------------------------------------------------------------------

type mockNews struct {
	mock.Mock
}

func (m *mockNews) Search(ctx context.Context, query string, maxResults int) ([]domain.Source, error) {
	args := m.Called(ctx, query, maxResults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Source), args.Error(1)
}

type mockDeep struct {
	mock.Mock
}

func (m *mockDeep) Research(ctx context.Context, topic string, sourceCount int) ([]domain.Source, error) {
	args := m.Called(ctx, topic, sourceCount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Source), args.Error(1)
}

type mockCrawler struct {
	mock.Mock
}

func (m *mockCrawler) Crawl(ctx context.Context, urls []string, maxPages int) ([]domain.Source, error) {
	args := m.Called(ctx, urls, maxPages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Source), args.Error(1)
}

// ---------------------------------------------------------------------------
// Mock: ContentGenerator
// ---------------------------------------------------------------------------

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) ExtractBrief(ctx context.Context, topic string, sources []domain.Source) (*domain.ResearchBrief, llm.Usage, error) {
	args := m.Called(ctx, topic, sources)
	if args.Get(0) == nil {
		return nil, args.Get(1).(llm.Usage), args.Error(2)
	}
	return args.Get(0).(*domain.ResearchBrief), args.Get(1).(llm.Usage), args.Error(2)
}

func (m *mockGenerator) GenerateDraft(ctx context.Context, req llm.DraftRequest) (*domain.ArticleDraft, llm.Usage, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Get(1).(llm.Usage), args.Error(2)
	}
	return args.Get(0).(*domain.ArticleDraft), args.Get(1).(llm.Usage), args.Error(2)
}

// ---------------------------------------------------------------------------
// Mock: image generator, graph syncer
// ---------------------------------------------------------------------------

type mockImages struct {
	mock.Mock
}

func (m *mockImages) Generate(ctx context.Context, prompt, contextURL string) (*imagegen.Image, error) {
	args := m.Called(ctx, prompt, contextURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*imagegen.Image), args.Error(1)
}

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) Sync(ctx context.Context, ep graph.Episode) error {
	return m.Called(ctx, ep).Error(0)
}

// ---------------------------------------------------------------------------
// Mock: repositories
// ---------------------------------------------------------------------------

type mockArticleRepository struct {
	mock.Mock
}

func (m *mockArticleRepository) UpsertByIdempotencyKey(ctx context.Context, article *domain.Article, events ...*domain.OutboxEvent) (bool, error) {
	args := m.Called(ctx, article, events)
	return args.Bool(0), args.Error(1)
}

func (m *mockArticleRepository) Get(ctx context.Context, id string) (*domain.Article, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Article), args.Error(1)
}

func (m *mockArticleRepository) List(ctx context.Context, filter repository.ArticleFilter) ([]*domain.Article, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*domain.Article), args.Get(1).(int64), args.Error(2)
}

type mockRunRepository struct {
	mock.Mock
}

func (m *mockRunRepository) Upsert(ctx context.Context, run *domain.PipelineRun) error {
	return m.Called(ctx, run).Error(0)
}

func (m *mockRunRepository) Get(ctx context.Context, workflowID string) (*domain.PipelineRun, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PipelineRun), args.Error(1)
}

func (m *mockRunRepository) List(ctx context.Context, filter repository.RunFilter) ([]*domain.PipelineRun, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*domain.PipelineRun), args.Get(1).(int64), args.Error(2)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishNonTx(ctx context.Context, params outbox.EmitParams) error {
	return m.Called(ctx, params).Error(0)
}

// requireAppError asserts err is an ApplicationError of the given type and
// retryability.
func requireAppError(t *testing.T, err error, errType string, nonRetryable bool) {
	t.Helper()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr), "expected ApplicationError, got %T: %v", err, err)
	require.Equal(t, errType, appErr.Type())
	require.Equal(t, nonRetryable, appErr.NonRetryable())
}
