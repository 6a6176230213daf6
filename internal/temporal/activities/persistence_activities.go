package activities

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/observability"
	"github.com/newsroom/content-pipeline/internal/outbox"
	"github.com/newsroom/content-pipeline/internal/repository"
	"github.com/newsroom/content-pipeline/internal/temporal/resilience"
)

// PersistenceActivities stores articles together with their outbox event.
// Methods on this struct are registered as Temporal activities via the worker.
type PersistenceActivities struct {
	articles repository.ArticleRepository
	emitter  *outbox.Emitter
	metrics  *observability.Metrics
}

// NewPersistenceActivities creates a new PersistenceActivities instance.
// The metrics parameter may be nil (metrics recording will be skipped).
func NewPersistenceActivities(articles repository.ArticleRepository, emitter *outbox.Emitter, metrics *observability.Metrics) *PersistenceActivities {
	return &PersistenceActivities{
		articles: articles,
		emitter:  emitter,
		metrics:  metrics,
	}
}

// PersistArticle upserts the article keyed by IdempotencyKey. A retry after a
// lost response, or a workflow replay, finds the existing row and returns its
// ID without writing a second article or a second event.
func (a *PersistenceActivities) PersistArticle(ctx context.Context, input PersistArticleInput) (*PersistArticleOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("persisting article",
		"idempotencyKey", input.IdempotencyKey,
		"status", input.Status,
		"images", len(input.Images),
	)

	if input.IdempotencyKey == "" {
		return nil, resilience.KindError(domain.KindInvalidRequest, "persist article", domain.NewValidationError("idempotency_key", "idempotency key is required"), false)
	}

	article := &domain.Article{
		IdempotencyKey: input.IdempotencyKey,
		App:            input.Request.App,
		Topic:          input.Request.Topic,
		Title:          input.Draft.Title,
		BodyMarkdown:   input.Draft.BodyMarkdown,
		WordCount:      input.Draft.WordCount,
		QualityScore:   input.QualityScore,
		Status:         input.Status,
		BestEffort:     input.Draft.BestEffort,
		Citations:      input.Citations,
		Entities:       input.Entities,
		Images:         input.Images,
	}
	// The event is keyed by the article ID, so the ID is fixed before the
	// event is built. On replay the repository overwrites it with the stored ID.
	article.ID = articleID(input.IdempotencyKey)

	event, err := a.emitter.EmitArticlePersisted(domain.ArticlePersistedPayload{
		ArticleID:    article.ID,
		WorkflowID:   input.IdempotencyKey,
		App:          article.App,
		Title:        article.Title,
		Status:       article.Status,
		QualityScore: article.QualityScore,
		WordCount:    article.WordCount,
		ImageCount:   len(article.Images),
	})
	if err != nil {
		return nil, resilience.KindError(domain.KindPersistenceFailed, "build article event", err, false)
	}

	start := time.Now()
	created, err := a.articles.UpsertByIdempotencyKey(ctx, article, event)
	if err != nil {
		logger.Error("failed to persist article", "idempotencyKey", input.IdempotencyKey, "error", err)
		return nil, resilience.KindError(domain.KindPersistenceFailed, "persist article", err, resilience.Classify(err) == resilience.Transient)
	}
	a.metrics.RecordArticlePersisted(string(article.Status), !created, time.Since(start).Seconds())

	logger.Info("article persisted",
		"articleID", article.ID,
		"created", created,
		"status", article.Status,
	)

	return &PersistArticleOutput{ArticleID: article.ID, Created: created}, nil
}

// articleNamespace scopes the name-based article IDs.
var articleNamespace = uuid.MustParse("6f1c1e9a-3b8e-4d4e-9a53-2f0f7c1d8b21")

// articleID derives a stable article ID from the idempotency key.
func articleID(idempotencyKey string) string {
	return uuid.NewSHA1(articleNamespace, []byte(idempotencyKey)).String()
}
