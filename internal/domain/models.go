// Package domain provides domain models and business logic for the content pipeline.
package domain

import (
	"time"
)

// PipelineStatus represents the lifecycle states of a pipeline run.
// These values must match the database enum pipeline_status.
type PipelineStatus string

const (
	StatusStarted      PipelineStatus = "STARTED"
	StatusResearching  PipelineStatus = "RESEARCHING"
	StatusBriefing     PipelineStatus = "BRIEFING"
	StatusDrafting     PipelineStatus = "DRAFTING"
	StatusQualityCheck PipelineStatus = "QUALITY_CHECK"
	StatusImaging      PipelineStatus = "IMAGING"
	StatusPersisting   PipelineStatus = "PERSISTING"
	StatusSyncing      PipelineStatus = "SYNCING"
	StatusPublished    PipelineStatus = "PUBLISHED"
	StatusRejected     PipelineStatus = "REJECTED"
	StatusFailed       PipelineStatus = "FAILED"
	StatusCancelled    PipelineStatus = "CANCELLED"
)

// IsTerminal returns true if the status represents a final state that will not change.
func (s PipelineStatus) IsTerminal() bool {
	switch s {
	case StatusPublished, StatusRejected, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ErrorKind is the stable error taxonomy surfaced to callers of a pipeline run.
// Activities translate provider errors into one of these kinds before returning.
type ErrorKind string

const (
	KindInsufficientResearch ErrorKind = "InsufficientResearch"
	KindGenerationParseError ErrorKind = "GenerationParseError"
	KindPersistenceFailed    ErrorKind = "PersistenceFailed"
	KindActivityFailed       ErrorKind = "ActivityFailed"
	KindTimeout              ErrorKind = "Timeout"
	KindCancelled            ErrorKind = "Cancelled"
	KindInvalidRequest       ErrorKind = "InvalidRequest"
)

// SourceProvider identifies which research collaborator produced a Source.
type SourceProvider string

const (
	ProviderNewsSearch   SourceProvider = "news-search"
	ProviderDeepResearch SourceProvider = "deep-research"
	ProviderCrawl        SourceProvider = "crawl"
)

// ArticleStatus is the publication state of a persisted article.
// These values must match the database enum article_status.
type ArticleStatus string

const (
	ArticlePublished     ArticleStatus = "published"
	ArticlePendingReview ArticleStatus = "pending_review"
	ArticleRejected      ArticleStatus = "rejected"
)

// Rejection reasons reported on REJECTED results.
const (
	RejectionLowQualityScore      = "low_quality_score"
	RejectionInsufficientResearch = "insufficient_sources"
)

// PipelineFlags toggles the optional stages of a run.
type PipelineFlags struct {
	DeepCrawl     bool `json:"deep_crawl"`
	SkipImages    bool `json:"skip_images"`
	SkipGraphSync bool `json:"skip_graph_sync"`
}

// WorkflowRequest is the immutable input to a pipeline run. It is validated once
// at the entry boundary; later stages trust its shape.
type WorkflowRequest struct {
	Topic           string        `json:"topic" validate:"required,min=3,max=300"`
	App             string        `json:"app" validate:"required,max=64"`
	TargetWordCount int           `json:"target_word_count" validate:"min=300,max=5000"`
	SourceCount     int           `json:"source_count" validate:"min=1,max=20"`
	AutoPublish     bool          `json:"auto_publish"`
	Flags           PipelineFlags `json:"flags"`
}

// AppProfile carries the tenant-specific tone and publishing rules for an app.
type AppProfile struct {
	Name              string   `json:"name" yaml:"name"`
	Tone              string   `json:"tone" yaml:"tone"`
	Audience          string   `json:"audience" yaml:"audience"`
	PublishThreshold  float64  `json:"publish_threshold" yaml:"publish_threshold"`
	RequiredSections  []string `json:"required_sections" yaml:"required_sections"`
	ContentImageCount int      `json:"content_image_count" yaml:"content_image_count"`
	ImageStyle        string   `json:"image_style" yaml:"image_style"`
}

// QualityWeights are the relative weights of the quality gate dimensions.
type QualityWeights struct {
	CitationDensity        float64 `json:"citation_density"`
	WordCountAdherence     float64 `json:"word_count_adherence"`
	StructuralCompleteness float64 `json:"structural_completeness"`
	// TargetCitationsPer500 is the citation density that scores 1.0.
	TargetCitationsPer500 float64 `json:"target_citations_per_500"`
}

// DefaultQualityWeights returns the default quality gate weights.
func DefaultQualityWeights() QualityWeights {
	return QualityWeights{
		CitationDensity:        0.4,
		WordCountAdherence:     0.3,
		StructuralCompleteness: 0.3,
		TargetCitationsPer500:  1.5,
	}
}

// PipelineSettings are the tunable parameters of the pipeline state machine.
type PipelineSettings struct {
	MinSources         int            `json:"min_sources"`
	WordCountTolerance float64        `json:"word_count_tolerance"`
	RegenerationBudget int            `json:"regeneration_budget"`
	Quality            QualityWeights `json:"quality"`
}

// DefaultPipelineSettings returns the default pipeline settings.
func DefaultPipelineSettings() PipelineSettings {
	return PipelineSettings{
		MinSources:         3,
		WordCountTolerance: 0.15,
		RegenerationBudget: 2,
		Quality:            DefaultQualityWeights(),
	}
}

// Source is a single piece of external research.
type Source struct {
	ID            string         `json:"id"`
	URL           string         `json:"url"`
	Title         string         `json:"title"`
	ExtractedText string         `json:"extracted_text"`
	RetrievedAt   time.Time      `json:"retrieved_at"`
	Provider      SourceProvider `json:"provider"`
}

// Usable reports whether the source counts toward the minimum-source contract.
func (s Source) Usable() bool {
	return CountWords(s.ExtractedText) > 0
}

// Citation ties a claim in the brief to the source supporting it.
type Citation struct {
	SourceID string `json:"source_id"`
	Claim    string `json:"claim"`
}

// ResearchBrief is the synthesis of the gathered sources.
type ResearchBrief struct {
	Entities  []string   `json:"entities"`
	Angle     string     `json:"angle"`
	Citations []Citation `json:"citations"`
}

// CitedSourceIDs returns the distinct source IDs cited by the brief, in citation order.
func (b ResearchBrief) CitedSourceIDs() []string {
	seen := make(map[string]bool, len(b.Citations))
	ids := make([]string, 0, len(b.Citations))
	for _, c := range b.Citations {
		if seen[c.SourceID] {
			continue
		}
		seen[c.SourceID] = true
		ids = append(ids, c.SourceID)
	}
	return ids
}

// ArticleDraft is a generated article. Regeneration replaces the whole draft.
type ArticleDraft struct {
	Title         string   `json:"title"`
	BodyMarkdown  string   `json:"body_markdown"`
	WordCount     int      `json:"word_count"`
	CitationsUsed []string `json:"citations_used"`
	Attempt       int      `json:"attempt"`
	BestEffort    bool     `json:"best_effort"`
}

// GeneratedImage is an illustration for the article. ContextImageID references
// the image generated immediately before this one and is empty for the featured image.
type GeneratedImage struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	AltText        string `json:"alt_text"`
	Role           string `json:"role"`
	ContextImageID string `json:"context_image_id,omitempty"`
}

// PipelineState is the accumulator owned by a single workflow run. It is only
// advanced through transition functions that return a new value.
type PipelineState struct {
	Request       WorkflowRequest  `json:"request"`
	Profile       AppProfile       `json:"profile"`
	Settings      PipelineSettings `json:"settings"`
	Sources       []Source         `json:"sources"`
	Brief         *ResearchBrief   `json:"brief,omitempty"`
	Draft         *ArticleDraft    `json:"draft,omitempty"`
	QualityScore  *float64         `json:"quality_score,omitempty"`
	Images        []GeneratedImage `json:"images"`
	ImagesSkipped []string         `json:"images_skipped,omitempty"`
	PersistedID   string           `json:"persisted_id,omitempty"`
	Status        PipelineStatus   `json:"status"`
	DraftAttempts int              `json:"draft_attempts"`
	SyncPartial   bool             `json:"sync_partial"`
}

// UsableSourceCount returns the number of sources with extracted text.
func (s PipelineState) UsableSourceCount() int {
	n := 0
	for _, src := range s.Sources {
		if src.Usable() {
			n++
		}
	}
	return n
}

// PipelineError is the structured error surfaced on FAILED results.
type PipelineError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NewPipelineError creates a new PipelineError.
func NewPipelineError(kind ErrorKind, message string) *PipelineError {
	return &PipelineError{Kind: kind, Message: message}
}

// WorkflowResult is the immutable terminal output of a pipeline run.
type WorkflowResult struct {
	WorkflowID      string           `json:"workflow_id"`
	Status          PipelineStatus   `json:"status"`
	PersistedID     string           `json:"persisted_id,omitempty"`
	QualityScore    *float64         `json:"quality_score,omitempty"`
	Draft           *ArticleDraft    `json:"draft,omitempty"`
	Images          []GeneratedImage `json:"images,omitempty"`
	Error           *PipelineError   `json:"error,omitempty"`
	SyncPartial     bool             `json:"sync_partial"`
	ImagesSkipped   []string         `json:"images_skipped,omitempty"`
	ReviewRequired  bool             `json:"review_required"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	DraftAttempts   int              `json:"draft_attempts"`
}

// Article is a persisted article record.
type Article struct {
	ID             string           `json:"id"`
	IdempotencyKey string           `json:"idempotency_key"`
	App            string           `json:"app"`
	Topic          string           `json:"topic"`
	Title          string           `json:"title"`
	BodyMarkdown   string           `json:"body_markdown"`
	WordCount      int              `json:"word_count"`
	QualityScore   float64          `json:"quality_score"`
	Status         ArticleStatus    `json:"status"`
	BestEffort     bool             `json:"best_effort"`
	Citations      []string         `json:"citations"`
	Entities       []string         `json:"entities"`
	Images         []GeneratedImage `json:"images,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// PipelineRun is the durable status record of a workflow run.
type PipelineRun struct {
	WorkflowID   string         `json:"workflow_id"`
	RunID        string         `json:"run_id"`
	App          string         `json:"app"`
	Topic        string         `json:"topic"`
	Status       PipelineStatus `json:"status"`
	ErrorKind    ErrorKind      `json:"error_kind,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ArticleID    string         `json:"article_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
