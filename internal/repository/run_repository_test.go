package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroom/content-pipeline/internal/domain"
)

var runRowColumns = []string{
	"workflow_id", "run_id", "app", "topic", "status",
	"error_kind", "error_message", "article_id", "created_at", "updated_at",
}

func TestRunUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRunRepository(mock)
	run := &domain.PipelineRun{
		WorkflowID: "article-1",
		RunID:      "run-1",
		App:        "newsroom",
		Topic:      "heat pumps",
		Status:     domain.StatusFailed,
		ErrorKind:  domain.KindInsufficientResearch,
	}

	mock.ExpectExec("INSERT INTO pipeline_runs .+ ON CONFLICT \\(workflow_id\\) DO UPDATE").
		WithArgs("article-1", "run-1", "newsroom", "heat pumps", "FAILED",
			"InsufficientResearch", "", "", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Upsert(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunUpsert_Validation(t *testing.T) {
	repo := NewPgRunRepository(nil)

	assert.ErrorIs(t, repo.Upsert(context.Background(), nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, repo.Upsert(context.Background(), &domain.PipelineRun{Status: domain.StatusStarted}), domain.ErrInvalidInput)
	assert.ErrorIs(t, repo.Upsert(context.Background(), &domain.PipelineRun{WorkflowID: "wf"}), domain.ErrInvalidInput)
}

func TestRunGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	repo := NewPgRunRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("FROM pipeline_runs WHERE workflow_id = $1")).
		WithArgs("article-1").
		WillReturnRows(pgxmock.NewRows(runRowColumns).
			AddRow("article-1", "run-1", "newsroom", "heat pumps", "DRAFTING", "", "", "", now, now))

	run, err := repo.Get(context.Background(), "article-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusDrafting, run.Status)
	assert.Empty(t, run.ErrorKind)
}

func TestRunGet_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgRunRepository(mock)
	mock.ExpectQuery("FROM pipeline_runs").
		WithArgs("nope").
		WillReturnRows(pgxmock.NewRows(runRowColumns))

	_, err = repo.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRunList(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	repo := NewPgRunRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM pipeline_runs WHERE status = $1")).
		WithArgs("REJECTED").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta("FROM pipeline_runs WHERE status = $1 ORDER BY updated_at DESC LIMIT 20 OFFSET 0")).
		WithArgs("REJECTED").
		WillReturnRows(pgxmock.NewRows(runRowColumns).
			AddRow("article-2", "run-2", "company", "earnings", "REJECTED", "", "", "a-9", now, now))

	runs, total, err := repo.List(context.Background(), RunFilter{Status: domain.StatusRejected})

	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, runs, 1)
	assert.Equal(t, "a-9", runs[0].ArticleID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
