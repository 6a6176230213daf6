package activities

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/observability"
)

func TestUpdateRunStatus(t *testing.T) {
	t.Run("upserts run", func(t *testing.T) {
		runs := new(mockRunRepository)
		runs.On("Upsert", mock.Anything, &domain.PipelineRun{
			WorkflowID: "wf-1",
			RunID:      "run-1",
			App:        "newsroom",
			Topic:      "heat pumps",
			Status:     domain.StatusDrafting,
		}).Return(nil)
		act := NewStatusActivities(runs, nil)

		suite := &testsuite.WorkflowTestSuite{}
		env := suite.NewTestActivityEnvironment()
		env.RegisterActivity(act)

		_, err := env.ExecuteActivity(act.UpdateRunStatus, UpdateRunStatusInput{
			WorkflowID: "wf-1",
			RunID:      "run-1",
			App:        "newsroom",
			Topic:      "heat pumps",
			Status:     domain.StatusDrafting,
		})
		require.NoError(t, err)
		runs.AssertExpectations(t)
	})

	t.Run("terminal status with metrics", func(t *testing.T) {
		runs := new(mockRunRepository)
		runs.On("Upsert", mock.Anything, mock.MatchedBy(func(r *domain.PipelineRun) bool {
			return r.Status == domain.StatusFailed && r.ErrorKind == domain.KindTimeout
		})).Return(nil)
		act := NewStatusActivities(runs, observability.NewMetrics("test_activities_status"))

		suite := &testsuite.WorkflowTestSuite{}
		env := suite.NewTestActivityEnvironment()
		env.RegisterActivity(act)

		_, err := env.ExecuteActivity(act.UpdateRunStatus, UpdateRunStatusInput{
			WorkflowID:   "wf-1",
			Status:       domain.StatusFailed,
			ErrorKind:    domain.KindTimeout,
			ErrorMessage: "pipeline deadline exceeded",
			StartedAt:    time.Now().Add(-time.Minute),
		})
		require.NoError(t, err)
		runs.AssertExpectations(t)
	})

	t.Run("repository error", func(t *testing.T) {
		runs := new(mockRunRepository)
		runs.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("db down"))
		act := NewStatusActivities(runs, nil)

		suite := &testsuite.WorkflowTestSuite{}
		env := suite.NewTestActivityEnvironment()
		env.RegisterActivity(act)

		_, err := env.ExecuteActivity(act.UpdateRunStatus, UpdateRunStatusInput{WorkflowID: "wf-1", Status: domain.StatusStarted})
		require.Error(t, err)
		require.Contains(t, err.Error(), "update run status to STARTED")
	})
}
