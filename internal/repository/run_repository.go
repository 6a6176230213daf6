package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/newsroom/content-pipeline/internal/domain"
)

// RunRepository tracks the status of pipeline runs by workflow ID.
type RunRepository interface {
	// Upsert creates or updates the run row. A row that already holds a
	// terminal status is never moved to a different status.
	Upsert(ctx context.Context, run *domain.PipelineRun) error
	Get(ctx context.Context, workflowID string) (*domain.PipelineRun, error)
	List(ctx context.Context, filter RunFilter) ([]*domain.PipelineRun, int64, error)
}

// RunFilter narrows run listings. Zero values match everything.
type RunFilter struct {
	App    string
	Status domain.PipelineStatus
	Limit  int
	Offset int
}

var _ RunRepository = (*PgRunRepository)(nil)

// PgRunRepository is the PostgreSQL RunRepository.
type PgRunRepository struct {
	db DBTX
}

// NewPgRunRepository creates a run repository.
func NewPgRunRepository(db DBTX) *PgRunRepository {
	return &PgRunRepository{db: db}
}

var runColumns = []string{
	"workflow_id", "run_id", "app", "topic", "status",
	"error_kind", "error_message", "article_id", "created_at", "updated_at",
}

func (r *PgRunRepository) Upsert(ctx context.Context, run *domain.PipelineRun) error {
	if run == nil {
		return domain.NewValidationError("run", "run cannot be nil")
	}
	if run.WorkflowID == "" {
		return domain.NewValidationError("workflow_id", "workflow ID is required")
	}
	if run.Status == "" {
		return domain.NewValidationError("status", "status is required")
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	query := `
		INSERT INTO pipeline_runs (
			workflow_id, run_id, app, topic, status,
			error_kind, error_message, article_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (workflow_id) DO UPDATE SET
			run_id = COALESCE(NULLIF(EXCLUDED.run_id, ''), pipeline_runs.run_id),
			status = EXCLUDED.status,
			error_kind = EXCLUDED.error_kind,
			error_message = EXCLUDED.error_message,
			article_id = COALESCE(NULLIF(EXCLUDED.article_id, ''), pipeline_runs.article_id),
			updated_at = EXCLUDED.updated_at
		WHERE pipeline_runs.status NOT IN ('PUBLISHED', 'REJECTED', 'FAILED', 'CANCELLED')
			OR pipeline_runs.status = EXCLUDED.status`

	_, err := r.db.Exec(ctx, query,
		run.WorkflowID, run.RunID, run.App, run.Topic, string(run.Status),
		string(run.ErrorKind), run.ErrorMessage, run.ArticleID, run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert pipeline run: %w", err)
	}
	return nil
}

func (r *PgRunRepository) Get(ctx context.Context, workflowID string) (*domain.PipelineRun, error) {
	query, args, err := psql.Select(runColumns...).From("pipeline_runs").
		Where("workflow_id = ?", workflowID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build run query: %w", err)
	}

	run, err := scanRun(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("pipeline run", workflowID)
		}
		return nil, fmt.Errorf("get pipeline run: %w", err)
	}
	return run, nil
}

func (r *PgRunRepository) List(ctx context.Context, filter RunFilter) ([]*domain.PipelineRun, int64, error) {
	apply := func(b squirrel.SelectBuilder) squirrel.SelectBuilder {
		if filter.App != "" {
			b = b.Where("app = ?", filter.App)
		}
		if filter.Status != "" {
			b = b.Where("status = ?", string(filter.Status))
		}
		return b
	}

	countQuery, countArgs, err := apply(psql.Select("COUNT(*)").From("pipeline_runs")).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count pipeline runs: %w", err)
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	query, args, err := apply(psql.Select(runColumns...).From("pipeline_runs")).
		OrderBy("updated_at DESC").
		Limit(limit).
		Offset(offset).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan pipeline run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate pipeline runs: %w", err)
	}
	return runs, total, nil
}

func scanRun(row pgx.Row) (*domain.PipelineRun, error) {
	var (
		run       domain.PipelineRun
		status    string
		errorKind string
	)
	if err := row.Scan(
		&run.WorkflowID, &run.RunID, &run.App, &run.Topic, &status,
		&errorKind, &run.ErrorMessage, &run.ArticleID, &run.CreatedAt, &run.UpdatedAt,
	); err != nil {
		return nil, err
	}
	run.Status = domain.PipelineStatus(status)
	run.ErrorKind = domain.ErrorKind(errorKind)
	return &run, nil
}
