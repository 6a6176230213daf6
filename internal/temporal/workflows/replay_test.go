package workflows

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/newsroom/content-pipeline/internal/domain"
	litemporal "github.com/newsroom/content-pipeline/internal/temporal"
	"github.com/newsroom/content-pipeline/internal/temporal/activities"
)

// historyDir resolves testdata/workflow_histories relative to this file.
func historyDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "testdata", "workflow_histories")
}

// TestReplayWorkflowHistory replays every captured history through the
// current ArticlePipelineWorkflow. A non-determinism error here means a code
// change would break runs that are in flight.
//
// Capture a history from a running cluster with:
//
//	temporal workflow show --workflow-id <id> --output json \
//	  > testdata/workflow_histories/<name>.json
func TestReplayWorkflowHistory(t *testing.T) {
	dir := historyDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Skipf("no history directory at %s: %v", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	if len(files) == 0 {
		t.Skip("no workflow histories captured in testdata/workflow_histories")
	}

	for _, path := range files {
		name := filepath.Base(path)
		t.Run(name, func(t *testing.T) {
			replayer := worker.NewWorkflowReplayer()
			replayer.RegisterWorkflowWithOptions(ArticlePipelineWorkflow, workflow.RegisterOptions{
				Name: litemporal.WorkflowTypeArticlePipeline,
			})
			require.NoError(t, replayer.ReplayWorkflowHistoryFromJSONFile(nil, path),
				"replay of %s hit a non-deterministic change", name)
		})
	}
}

// callLog records the inputs each activity received, in call order per
// activity. Research activities run concurrently, so ordering is only
// meaningful within one activity.
type callLog struct {
	mu    sync.Mutex
	calls map[string][]any
}

func (l *callLog) add(activity string, in any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.calls == nil {
		l.calls = map[string][]any{}
	}
	l.calls[activity] = append(l.calls[activity], in)
}

// runRecorded executes one run in a fresh environment where every activity
// answers the same way and logs its input.
func runRecorded(t *testing.T) (domain.WorkflowResult, map[string][]any) {
	t.Helper()
	env := newTestEnv(t)
	env.SetStartTime(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	log := &callLog{}

	env.OnActivity(statusAct.UpdateRunStatus, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.UpdateRunStatusInput) error {
			in.RunID = ""
			in.StartedAt = time.Time{}
			log.add("UpdateRunStatus", in)
			return nil
		})
	env.OnActivity(eventAct.PublishEvent, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.PublishEventInput) error {
			log.add("PublishEvent", in)
			return nil
		})
	env.OnActivity(researchAct.SearchNews, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.SearchNewsInput) (*activities.ResearchOutput, error) {
			log.add("SearchNews", in)
			return &activities.ResearchOutput{Sources: sources("news", 3, "full article text")}, nil
		})
	env.OnActivity(researchAct.DeepResearch, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.DeepResearchInput) (*activities.ResearchOutput, error) {
			log.add("DeepResearch", in)
			return &activities.ResearchOutput{Sources: sources("deep", 2, "analysis text")}, nil
		})
	env.OnActivity(generationAct.ExtractBrief, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.ExtractBriefInput) (*activities.ExtractBriefOutput, error) {
			log.add("ExtractBrief", in)
			return &activities.ExtractBriefOutput{Brief: testBrief(), Model: "test-model"}, nil
		})
	env.OnActivity(generationAct.GenerateDraft, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.GenerateDraftInput) (*activities.GenerateDraftOutput, error) {
			log.add("GenerateDraft", in)
			d := goodDraft()
			if in.Attempt == 1 {
				d.BodyMarkdown = articleBody(testSections, 300)
			}
			return &activities.GenerateDraftOutput{Draft: d, Model: "test-model"}, nil
		})
	env.OnActivity(imageAct.GenerateImage, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.GenerateImageInput) (*activities.GenerateImageOutput, error) {
			log.add("GenerateImage", in)
			return &activities.GenerateImageOutput{URL: "https://img.example/" + in.Role + ".png"}, nil
		})
	env.OnActivity(persistenceAct.PersistArticle, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.PersistArticleInput) (*activities.PersistArticleOutput, error) {
			log.add("PersistArticle", in)
			return &activities.PersistArticleOutput{ArticleID: "art-1", Created: true}, nil
		})
	env.OnActivity(graphAct.SyncToGraph, mock.Anything, mock.Anything).Return(
		func(_ context.Context, in activities.SyncToGraphInput) error {
			log.add("SyncToGraph", in)
			return nil
		})

	env.ExecuteWorkflow(ArticlePipelineWorkflow, newTestInput())
	return workflowResult(t, env), log.calls
}

// TestArticlePipelineWorkflow_RepeatedRunsMatch runs the same input twice
// against identical activity answers. Any divergence in activity inputs or
// in the result points at workflow code that depends on something other than
// its history.
func TestArticlePipelineWorkflow_RepeatedRunsMatch(t *testing.T) {
	first, firstCalls := runRecorded(t)
	second, secondCalls := runRecorded(t)

	assert.Equal(t, domain.StatusPublished, first.Status)
	assert.Equal(t, 2, first.DraftAttempts)
	assert.Equal(t, first, second)
	assert.Equal(t, firstCalls, secondCalls)

	for _, name := range []string{
		"UpdateRunStatus", "PublishEvent", "SearchNews", "DeepResearch", "ExtractBrief",
		"GenerateDraft", "GenerateImage", "PersistArticle", "SyncToGraph",
	} {
		assert.NotEmpty(t, firstCalls[name], "no %s calls recorded", name)
	}
	assert.Len(t, firstCalls["GenerateDraft"], 2)
}
