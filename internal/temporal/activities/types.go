// Package activities provides Temporal activity implementations for the
// content pipeline.
//
// Activity inputs and outputs are serializable structs that cross the Temporal
// serialization boundary. All fields must be exported for the SDK's default
// JSON data converter. Provider errors are translated into ApplicationErrors
// before they leave an activity, so the workflow only ever sees the
// resilience categories and domain error kinds.
package activities

import (
	"time"

	"github.com/newsroom/content-pipeline/internal/domain"
)

// SearchNewsInput contains the parameters for the news search activity.
type SearchNewsInput struct {
	Topic      string
	MaxResults int
}

// DeepResearchInput contains the parameters for the deep research activity.
type DeepResearchInput struct {
	Topic       string
	SourceCount int
}

// DeepCrawlInput contains the parameters for the deep crawl activity.
type DeepCrawlInput struct {
	URLs     []string
	MaxPages int
}

// ResearchOutput is returned by all research activities. Source IDs are left
// empty; the workflow assigns them when merging results.
type ResearchOutput struct {
	Sources []domain.Source
	// Failed is the number of pages that could not be crawled (DeepCrawl only).
	Failed int
}

// ExtractBriefInput contains the parameters for the brief extraction activity.
type ExtractBriefInput struct {
	Topic   string
	Sources []domain.Source
}

// ExtractBriefOutput contains the brief and the LLM usage that produced it.
type ExtractBriefOutput struct {
	Brief        domain.ResearchBrief
	Model        string
	InputTokens  int
	OutputTokens int
	ParseRetries int
}

// GenerateDraftInput contains the parameters for the draft generation activity.
type GenerateDraftInput struct {
	Topic           string
	Brief           domain.ResearchBrief
	Sources         []domain.Source
	TargetWordCount int
	Profile         domain.AppProfile
	// Feedback names what the previous attempt got wrong; empty on the first attempt.
	Feedback string
	Attempt  int
}

// GenerateDraftOutput contains the draft and the LLM usage that produced it.
type GenerateDraftOutput struct {
	Draft        domain.ArticleDraft
	Model        string
	InputTokens  int
	OutputTokens int
	ParseRetries int
}

// GenerateImageInput contains the parameters for the image generation activity.
type GenerateImageInput struct {
	Prompt string
	Role   string
	// ContextURL is the previous image's URL; empty for the featured image.
	ContextURL string
}

// GenerateImageOutput contains the generated image location.
type GenerateImageOutput struct {
	URL           string
	RevisedPrompt string
}

// PersistArticleInput contains everything written for one article.
type PersistArticleInput struct {
	// IdempotencyKey is the workflow ID. Retries and replays upsert the same row.
	IdempotencyKey string
	Request        domain.WorkflowRequest
	Draft          domain.ArticleDraft
	Images         []domain.GeneratedImage
	QualityScore   float64
	Status         domain.ArticleStatus
	Entities       []string
	Citations      []string
}

// PersistArticleOutput contains the stored article ID.
type PersistArticleOutput struct {
	ArticleID string
	// Created is false when the article already existed for the key.
	Created bool
}

// SyncToGraphInput contains the parameters for the knowledge-graph sync activity.
type SyncToGraphInput struct {
	ArticleID string
	App       string
	Title     string
	Entities  []string
}

// UpdateRunStatusInput records a run's progress in the pipeline_runs table.
type UpdateRunStatusInput struct {
	WorkflowID   string
	RunID        string
	App          string
	Topic        string
	Status       domain.PipelineStatus
	ErrorKind    domain.ErrorKind
	ErrorMessage string
	ArticleID    string
	// StartedAt is the workflow start time, used for the run duration metric
	// on terminal statuses.
	StartedAt time.Time
}

// PublishEventInput contains a terminal run event for the outbox.
type PublishEventInput struct {
	App string
	Run domain.RunFinishedPayload
}
