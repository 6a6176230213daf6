package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsroom/content-pipeline/internal/config"
	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/temporal"
)

type fakePipeline struct {
	started  []domain.WorkflowRequest
	startErr error
	status   *temporal.RunStatus
	result   *domain.WorkflowResult
	progress *temporal.PipelineProgress
	canceled map[string]string
	closed   bool
}

func (f *fakePipeline) StartWorkflow(_ context.Context, req domain.WorkflowRequest) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.started = append(f.started, req)
	return "article-123", nil
}

func (f *fakePipeline) GetStatus(context.Context, string) (*temporal.RunStatus, error) {
	if f.status == nil {
		return nil, temporal.ErrWorkflowNotFound
	}
	return f.status, nil
}

func (f *fakePipeline) GetResult(context.Context, string) (*domain.WorkflowResult, error) {
	return f.result, nil
}

func (f *fakePipeline) QueryProgress(context.Context, string) (*temporal.PipelineProgress, error) {
	return f.progress, nil
}

func (f *fakePipeline) Cancel(_ context.Context, id, reason string) error {
	if f.canceled == nil {
		f.canceled = map[string]string{}
	}
	f.canceled[id] = reason
	return nil
}

func (f *fakePipeline) Close() { f.closed = true }

func newTestCLI(fake *fakePipeline) *cli {
	return &cli{
		dial: func(*config.Config, zerolog.Logger) (pipelineAPI, error) { return fake, nil },
		load: func() (*config.Config, error) { return &config.Config{}, nil },
	}
}

func execute(t *testing.T, c *cli, args ...string) (string, error) {
	t.Helper()
	root := c.rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStartCmd(t *testing.T) {
	fake := &fakePipeline{}
	out, err := execute(t, newTestCLI(fake), "start", "Solid-state batteries",
		"--app", "techdaily", "--words", "900", "--sources", "4", "--deep-crawl", "--skip-images")
	require.NoError(t, err)

	assert.Equal(t, "article-123\n", out)
	require.Len(t, fake.started, 1)
	req := fake.started[0]
	assert.Equal(t, "Solid-state batteries", req.Topic)
	assert.Equal(t, "techdaily", req.App)
	assert.Equal(t, 900, req.TargetWordCount)
	assert.Equal(t, 4, req.SourceCount)
	assert.True(t, req.Flags.DeepCrawl)
	assert.True(t, req.Flags.SkipImages)
	assert.False(t, req.Flags.SkipGraphSync)
	assert.True(t, fake.closed)
}

func TestStartCmd_Errors(t *testing.T) {
	t.Run("topic is required", func(t *testing.T) {
		_, err := execute(t, newTestCLI(&fakePipeline{}), "start")
		require.Error(t, err)
	})

	t.Run("start failure is reported", func(t *testing.T) {
		fake := &fakePipeline{startErr: domain.NewValidationError("topic", "too short")}
		_, err := execute(t, newTestCLI(fake), "start", "ab")
		require.Error(t, err)
		var verr *domain.ValidationError
		assert.True(t, errors.As(err, &verr))
	})

	t.Run("config failure stops before dialing", func(t *testing.T) {
		dialed := false
		c := &cli{
			dial: func(*config.Config, zerolog.Logger) (pipelineAPI, error) {
				dialed = true
				return &fakePipeline{}, nil
			},
			load: func() (*config.Config, error) { return nil, errors.New("bad config") },
		}
		_, err := execute(t, c, "start", "topic")
		require.Error(t, err)
		assert.False(t, dialed)
	})
}

func TestStatusCmd(t *testing.T) {
	fake := &fakePipeline{status: &temporal.RunStatus{
		WorkflowID: "article-123",
		State:      temporal.RunStateRunning,
		Status:     domain.StatusDrafting,
	}}
	out, err := execute(t, newTestCLI(fake), "status", "article-123")
	require.NoError(t, err)

	var got temporal.RunStatus
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "article-123", got.WorkflowID)
	assert.Equal(t, domain.StatusDrafting, got.Status)

	_, err = execute(t, newTestCLI(&fakePipeline{}), "status", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, temporal.ErrWorkflowNotFound))
}

func TestResultCmd(t *testing.T) {
	t.Run("published run succeeds", func(t *testing.T) {
		fake := &fakePipeline{result: &domain.WorkflowResult{WorkflowID: "article-123", Status: domain.StatusPublished}}
		out, err := execute(t, newTestCLI(fake), "result", "article-123")
		require.NoError(t, err)
		assert.Contains(t, out, `"PUBLISHED"`)
	})

	t.Run("failed run exits with an error", func(t *testing.T) {
		fake := &fakePipeline{result: &domain.WorkflowResult{WorkflowID: "article-123", Status: domain.StatusFailed}}
		out, err := execute(t, newTestCLI(fake), "result", "article-123")
		require.Error(t, err)
		assert.Contains(t, out, `"FAILED"`)
	})
}

func TestCancelCmd(t *testing.T) {
	fake := &fakePipeline{}
	out, err := execute(t, newTestCLI(fake), "cancel", "article-123", "--reason", "duplicate topic")
	require.NoError(t, err)
	assert.Contains(t, out, "cancellation requested for article-123")
	assert.Equal(t, "duplicate topic", fake.canceled["article-123"])
}

func TestMigrateCmd_ArgumentValidation(t *testing.T) {
	c := newTestCLI(&fakePipeline{})

	_, err := execute(t, c, "migrate", "steps", "zero")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-zero integer")

	_, err = execute(t, c, "migrate", "force", "-2")
	require.Error(t, err)
}
