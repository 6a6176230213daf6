package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/newsroom/content-pipeline/internal/database"
	"github.com/newsroom/content-pipeline/internal/domain"
)

// ArticleRepository stores generated articles and their images.
type ArticleRepository interface {
	// UpsertByIdempotencyKey writes the article, its images and events in one
	// transaction. When a row with the same idempotency key already exists
	// nothing is written, article.ID is set to the stored ID and created is
	// false.
	UpsertByIdempotencyKey(ctx context.Context, article *domain.Article, events ...*domain.OutboxEvent) (created bool, err error)

	// Get returns the article with its images, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Article, error)

	// List returns a page of articles and the total number matching filter.
	List(ctx context.Context, filter ArticleFilter) ([]*domain.Article, int64, error)
}

// ArticleFilter narrows article listings. Zero values match everything.
type ArticleFilter struct {
	App    string
	Status domain.ArticleStatus
	Limit  int
	Offset int
}

func (f ArticleFilter) apply(b squirrel.SelectBuilder) squirrel.SelectBuilder {
	if f.App != "" {
		b = b.Where(squirrel.Eq{"app": f.App})
	}
	if f.Status != "" {
		b = b.Where(squirrel.Eq{"status": string(f.Status)})
	}
	return b
}

var _ ArticleRepository = (*PgArticleRepository)(nil)

// PgArticleRepository is the PostgreSQL ArticleRepository.
type PgArticleRepository struct {
	db     TxStarter
	outbox *PgOutboxRepository
	logger zerolog.Logger
}

// NewPgArticleRepository creates an article repository. Events passed to
// UpsertByIdempotencyKey are written through outbox inside the same transaction.
func NewPgArticleRepository(db TxStarter, outbox *PgOutboxRepository, logger zerolog.Logger) *PgArticleRepository {
	return &PgArticleRepository{db: db, outbox: outbox, logger: logger}
}

var articleColumns = []string{
	"id", "idempotency_key", "app", "topic", "title", "body_markdown",
	"word_count", "quality_score", "status", "best_effort",
	"citations", "entities", "created_at", "updated_at",
}

func (r *PgArticleRepository) UpsertByIdempotencyKey(ctx context.Context, article *domain.Article, events ...*domain.OutboxEvent) (bool, error) {
	if article == nil {
		return false, domain.NewValidationError("article", "article cannot be nil")
	}
	if article.IdempotencyKey == "" {
		return false, domain.NewValidationError("idempotency_key", "idempotency key is required")
	}
	if article.ID == "" {
		article.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if article.CreatedAt.IsZero() {
		article.CreatedAt = now
	}
	article.UpdatedAt = now

	citations, err := json.Marshal(nonNil(article.Citations))
	if err != nil {
		return false, fmt.Errorf("marshal citations: %w", err)
	}
	entities, err := json.Marshal(nonNil(article.Entities))
	if err != nil {
		return false, fmt.Errorf("marshal entities: %w", err)
	}

	created := false
	err = database.RunInTx(ctx, r.db, r.logger, func(tx pgx.Tx) error {
		insert := `
			INSERT INTO articles (
				id, idempotency_key, app, topic, title, body_markdown,
				word_count, quality_score, status, best_effort,
				citations, entities, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (idempotency_key) DO NOTHING
			RETURNING id`

		var id string
		err := tx.QueryRow(ctx, insert,
			article.ID, article.IdempotencyKey, article.App, article.Topic, article.Title, article.BodyMarkdown,
			article.WordCount, article.QualityScore, string(article.Status), article.BestEffort,
			citations, entities, article.CreatedAt, article.UpdatedAt,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			existing := `SELECT id FROM articles WHERE idempotency_key = $1`
			if err := tx.QueryRow(ctx, existing, article.IdempotencyKey).Scan(&id); err != nil {
				return fmt.Errorf("load existing article: %w", err)
			}
			article.ID = id
			return nil
		}
		if err != nil {
			if isPgUniqueViolation(err) {
				return domain.NewAlreadyExistsError("article", article.ID)
			}
			return fmt.Errorf("insert article: %w", err)
		}
		created = true

		for i, img := range article.Images {
			_, err := tx.Exec(ctx, `
				INSERT INTO article_images (id, article_id, position, role, url, alt_text, context_image_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				img.ID, id, i, img.Role, img.URL, img.AltText, img.ContextImageID,
			)
			if err != nil {
				return fmt.Errorf("insert image %s: %w", img.Role, err)
			}
		}

		if r.outbox != nil {
			txOutbox := r.outbox.WithTx(tx)
			for _, ev := range events {
				if err := txOutbox.Insert(ctx, ev); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (r *PgArticleRepository) Get(ctx context.Context, id string) (*domain.Article, error) {
	query, args, err := psql.Select(articleColumns...).From("articles").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build article query: %w", err)
	}

	article, err := scanArticle(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("article", id)
		}
		return nil, fmt.Errorf("get article: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, role, url, alt_text, context_image_id
		FROM article_images
		WHERE article_id = $1
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query article images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var img domain.GeneratedImage
		if err := rows.Scan(&img.ID, &img.Role, &img.URL, &img.AltText, &img.ContextImageID); err != nil {
			return nil, fmt.Errorf("scan article image: %w", err)
		}
		article.Images = append(article.Images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article images: %w", err)
	}
	return article, nil
}

func (r *PgArticleRepository) List(ctx context.Context, filter ArticleFilter) ([]*domain.Article, int64, error) {
	countQuery, countArgs, err := filter.apply(psql.Select("COUNT(*)").From("articles")).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count articles: %w", err)
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query, args, err := filter.apply(psql.Select(articleColumns...).From("articles")).
		OrderBy("created_at DESC", "id").
		Limit(limit).
		Offset(offset).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	articles := make([]*domain.Article, 0, limit)
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, total, nil
}

func scanArticle(row pgx.Row) (*domain.Article, error) {
	var (
		a         domain.Article
		status    string
		citations []byte
		entities  []byte
	)
	err := row.Scan(
		&a.ID, &a.IdempotencyKey, &a.App, &a.Topic, &a.Title, &a.BodyMarkdown,
		&a.WordCount, &a.QualityScore, &status, &a.BestEffort,
		&citations, &entities, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.ArticleStatus(status)
	if len(citations) > 0 {
		if err := json.Unmarshal(citations, &a.Citations); err != nil {
			return nil, fmt.Errorf("unmarshal citations: %w", err)
		}
	}
	if len(entities) > 0 {
		if err := json.Unmarshal(entities, &a.Entities); err != nil {
			return nil, fmt.Errorf("unmarshal entities: %w", err)
		}
	}
	return &a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
