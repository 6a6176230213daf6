package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/observability"
	"github.com/newsroom/content-pipeline/internal/repository"
)

// StatusActivities records run progress in the pipeline_runs table.
// Methods on this struct are registered as Temporal activities via the worker.
type StatusActivities struct {
	runs    repository.RunRepository
	metrics *observability.Metrics
}

// NewStatusActivities creates a new StatusActivities instance.
// The metrics parameter may be nil (metrics recording will be skipped).
func NewStatusActivities(runs repository.RunRepository, metrics *observability.Metrics) *StatusActivities {
	return &StatusActivities{runs: runs, metrics: metrics}
}

// UpdateRunStatus upserts the run row. Workflows never touch metrics, so the
// run start and terminal outcome are recorded here.
func (a *StatusActivities) UpdateRunStatus(ctx context.Context, input UpdateRunStatusInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("updating run status",
		"workflowID", input.WorkflowID,
		"status", input.Status,
		"errorKind", input.ErrorKind,
	)

	err := a.runs.Upsert(ctx, &domain.PipelineRun{
		WorkflowID:   input.WorkflowID,
		RunID:        input.RunID,
		App:          input.App,
		Topic:        input.Topic,
		Status:       input.Status,
		ErrorKind:    input.ErrorKind,
		ErrorMessage: input.ErrorMessage,
		ArticleID:    input.ArticleID,
	})
	if err != nil {
		logger.Error("failed to update run status",
			"workflowID", input.WorkflowID,
			"status", input.Status,
			"error", err,
		)
		return fmt.Errorf("update run status to %s: %w", input.Status, err)
	}

	// Only the first attempt counts, so activity retries do not double count.
	if activity.GetInfo(ctx).Attempt == 1 {
		switch {
		case input.Status == domain.StatusStarted:
			a.metrics.RecordRunStarted()
		case input.Status.IsTerminal():
			var duration float64
			if !input.StartedAt.IsZero() {
				duration = time.Since(input.StartedAt).Seconds()
			}
			a.metrics.RecordRunFinished(string(input.Status), string(input.ErrorKind), duration)
		}
	}

	return nil
}
