package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types written to the outbox and relayed to Kafka.
const (
	EventTypeArticleRequested = "article.requested"
	EventTypeArticlePersisted = "article.persisted"
	EventTypeArticleRejected  = "article.rejected"
	EventTypeRunCompleted     = "pipeline.run_completed"
	EventTypeRunFailed        = "pipeline.run_failed"
	EventTypeRunCancelled     = "pipeline.run_cancelled"
)

// AggregateArticle and AggregateRun are the aggregate types of outbox events.
const (
	AggregateArticle = "article"
	AggregateRun     = "pipeline_run"
)

// OutboxEvent is an event stored in the transactional outbox.
type OutboxEvent struct {
	EventID       string
	EventVersion  int
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       []byte
	Metadata      map[string]string
	CreatedAt     time.Time
}

// NewOutboxEvent creates an outbox event with a JSON-encoded payload.
func NewOutboxEvent(eventType, aggregateID, aggregateType string, payload interface{}) (*OutboxEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		EventID:       uuid.NewString(),
		EventVersion:  1,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payloadBytes,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// WithMetadata sets the metadata on the event.
func (e *OutboxEvent) WithMetadata(metadata map[string]string) *OutboxEvent {
	e.Metadata = metadata
	return e
}

// ArticleRequestedPayload is the payload consumed by the intake listener.
// Field names follow the public trigger API.
type ArticleRequestedPayload struct {
	Topic              string `json:"topic"`
	App                string `json:"app"`
	TargetWordCount    int    `json:"target_word_count"`
	NumResearchSources int    `json:"num_research_sources"`
	DeepCrawlEnabled   bool   `json:"deep_crawl_enabled"`
	SkipImages         bool   `json:"skip_images"`
	SkipZepSync        bool   `json:"skip_zep_sync"`
	AutoApprove        bool   `json:"auto_approve"`
}

// ToRequest converts the trigger payload into a WorkflowRequest.
func (p ArticleRequestedPayload) ToRequest() WorkflowRequest {
	return WorkflowRequest{
		Topic:           p.Topic,
		App:             p.App,
		TargetWordCount: p.TargetWordCount,
		SourceCount:     p.NumResearchSources,
		AutoPublish:     p.AutoApprove,
		Flags: PipelineFlags{
			DeepCrawl:     p.DeepCrawlEnabled,
			SkipImages:    p.SkipImages,
			SkipGraphSync: p.SkipZepSync,
		},
	}
}

// ArticlePersistedPayload is the payload for article.persisted and article.rejected events.
type ArticlePersistedPayload struct {
	ArticleID    string        `json:"article_id"`
	WorkflowID   string        `json:"workflow_id"`
	App          string        `json:"app"`
	Title        string        `json:"title"`
	Status       ArticleStatus `json:"status"`
	QualityScore float64       `json:"quality_score"`
	WordCount    int           `json:"word_count"`
	ImageCount   int           `json:"image_count"`
}

// RunFinishedPayload is the payload for pipeline run terminal events.
type RunFinishedPayload struct {
	WorkflowID  string         `json:"workflow_id"`
	Status      PipelineStatus `json:"status"`
	ArticleID   string         `json:"article_id,omitempty"`
	ErrorKind   ErrorKind      `json:"error_kind,omitempty"`
	Error       string         `json:"error,omitempty"`
	SyncPartial bool           `json:"sync_partial"`
}
