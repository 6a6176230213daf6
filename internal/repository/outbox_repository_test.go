package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroom/content-pipeline/internal/domain"
)

func TestNewPgOutboxRepository_QuotesTable(t *testing.T) {
	assert.Equal(t, `"outbox_events"`, NewPgOutboxRepository(nil, "").table)
	assert.Equal(t, `"events; DROP TABLE x"`, NewPgOutboxRepository(nil, "events; DROP TABLE x").table)
}

func TestOutboxInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgOutboxRepository(mock, "pipeline_outbox")
	event, err := domain.NewOutboxEvent(domain.EventTypeRunFailed, "wf-1", domain.AggregateRun, domain.RunFinishedPayload{WorkflowID: "wf-1"})
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "pipeline_outbox"`)).
		WithArgs(event.EventID, 1, "wf-1", domain.AggregateRun, domain.EventTypeRunFailed,
			event.Payload, []byte("{}"), OutboxStatusPending, event.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Insert(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxInsert_Validation(t *testing.T) {
	repo := NewPgOutboxRepository(nil, "")

	assert.ErrorIs(t, repo.Insert(context.Background(), nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, repo.Insert(context.Background(), &domain.OutboxEvent{EventID: "e"}), domain.ErrInvalidInput)
}

func TestOutboxFetchPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now().UTC()
	repo := NewPgOutboxRepository(mock, "")

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "outbox_events"`)).
		WithArgs(OutboxStatusPending, 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"event_id", "event_version", "aggregate_id", "aggregate_type", "event_type",
			"payload", "metadata", "created_at", "attempts",
		}).
			AddRow("e-1", 1, "a-1", "article", "article.persisted", []byte(`{}`), []byte(`{"source":"worker"}`), now, 0).
			AddRow("e-2", 1, "wf-2", "pipeline_run", "pipeline.run_failed", []byte(`{}`), []byte(`{}`), now, 2))

	events, err := repo.FetchPending(context.Background(), 50)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "worker", events[0].Metadata["source"])
	assert.Equal(t, 2, events[1].Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxMarkPublished(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgOutboxRepository(mock, "")
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "outbox_events"`)).
		WithArgs(OutboxStatusPublished, []string{"e-1", "e-2"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	require.NoError(t, repo.MarkPublished(context.Background(), []string{"e-1", "e-2"}))
	require.NoError(t, repo.MarkPublished(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxMarkFailed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPgOutboxRepository(mock, "")
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "outbox_events"`)).
		WithArgs("e-1", "broker unavailable", 30.0, 5, OutboxStatusFailed).
		WillReturnError(errors.New("conn closed"))

	err = repo.MarkFailed(context.Background(), "e-1", "broker unavailable", 5, 30*time.Second)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "e-1")
}
