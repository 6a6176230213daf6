package temporal

import (
	"time"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/temporal/resilience"
)

// Workflow, signal and query names shared by the client, the worker and the
// workflow implementation. They live here so the server and intake layers can
// start and steer runs without importing the workflows package.
const (
	// WorkflowTypeArticlePipeline is the registered name of the article pipeline workflow.
	WorkflowTypeArticlePipeline = "ArticlePipelineWorkflow"

	// SignalCancel is the signal name used to request cancellation of a run.
	SignalCancel = "cancel"

	// QueryProgress is the query name used to read the progress of a run.
	QueryProgress = "progress"
)

// ArticlePipelineInput is the workflow input. The profile is resolved and the
// request validated before the run starts, so the workflow trusts both.
type ArticlePipelineInput struct {
	Request  domain.WorkflowRequest
	Profile  domain.AppProfile
	Settings domain.PipelineSettings

	// Deadline bounds the whole run. When it elapses the run ends FAILED with
	// kind Timeout. Zero disables the in-workflow deadline.
	Deadline time.Duration
}

// CancelSignal is the optional payload of the cancel signal.
type CancelSignal struct {
	Reason string `json:"reason,omitempty"`
}

// PipelineProgress is the answer to the progress query.
type PipelineProgress struct {
	Status          domain.PipelineStatus `json:"status"`
	SourcesFound    int                   `json:"sources_found"`
	UsableSources   int                   `json:"usable_sources"`
	ResearchRetried bool                  `json:"research_retried"`
	DraftAttempts   int                   `json:"draft_attempts"`
	QualityScore    *float64              `json:"quality_score,omitempty"`
	ImagesGenerated int                   `json:"images_generated"`
	ImagesSkipped   []string              `json:"images_skipped,omitempty"`
	ArticleID       string                `json:"article_id,omitempty"`
	SyncPartial     bool                  `json:"sync_partial"`

	resilience.Progress
}
