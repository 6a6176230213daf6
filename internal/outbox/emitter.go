package outbox

import (
	"fmt"

	"github.com/newsroom/content-pipeline/internal/domain"
)

// Metadata keys attached to every event.
const (
	MetadataSource        = "source"
	MetadataCorrelationID = "correlation_id"
	MetadataTraceID       = "trace_id"
	MetadataApp           = "app"
)

// EmitterConfig configures the Emitter with service context.
type EmitterConfig struct {
	// ServiceName identifies the source service.
	ServiceName string
}

// EmitParams contains the parameters for emitting an event.
type EmitParams struct {
	// AggregateID is the article ID or workflow ID the event belongs to.
	AggregateID string
	// AggregateType defaults to domain.AggregateRun.
	AggregateType string
	// EventType is the type of event (e.g., "article.persisted").
	EventType string
	// Payload is the event payload that will be JSON-serialized.
	Payload interface{}
	// App is the publishing app, copied into metadata (optional).
	App string
	// CorrelationID for request tracing (optional). Usually the workflow ID.
	CorrelationID string
	// TraceID for distributed tracing (optional).
	TraceID string
}

// Emitter creates outbox events enriched with pipeline context.
type Emitter struct {
	config EmitterConfig
}

// NewEmitter creates a new Emitter with the given service configuration.
func NewEmitter(config EmitterConfig) *Emitter {
	if config.ServiceName == "" {
		config.ServiceName = "content-pipeline"
	}
	return &Emitter{config: config}
}

// Emit creates an outbox event from the given parameters. The event is ready
// to be inserted into the outbox table.
func (e *Emitter) Emit(params EmitParams) (*domain.OutboxEvent, error) {
	if params.AggregateID == "" {
		return nil, fmt.Errorf("aggregate_id is required")
	}
	if params.EventType == "" {
		return nil, fmt.Errorf("event_type is required")
	}

	aggregateType := params.AggregateType
	if aggregateType == "" {
		aggregateType = domain.AggregateRun
	}

	event, err := domain.NewOutboxEvent(params.EventType, params.AggregateID, aggregateType, params.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	metadata := map[string]string{MetadataSource: e.config.ServiceName}
	if params.App != "" {
		metadata[MetadataApp] = params.App
	}
	if params.CorrelationID != "" {
		metadata[MetadataCorrelationID] = params.CorrelationID
	}
	if params.TraceID != "" {
		metadata[MetadataTraceID] = params.TraceID
	}
	return event.WithMetadata(metadata), nil
}

// EmitArticlePersisted builds the article.persisted event, or article.rejected
// when the article was stored with the rejected status.
func (e *Emitter) EmitArticlePersisted(payload domain.ArticlePersistedPayload) (*domain.OutboxEvent, error) {
	eventType := domain.EventTypeArticlePersisted
	if payload.Status == domain.ArticleRejected {
		eventType = domain.EventTypeArticleRejected
	}
	return e.Emit(EmitParams{
		AggregateID:   payload.ArticleID,
		AggregateType: domain.AggregateArticle,
		EventType:     eventType,
		Payload:       payload,
		App:           payload.App,
		CorrelationID: payload.WorkflowID,
	})
}

// EmitRunFinished builds the terminal run event matching payload.Status.
func (e *Emitter) EmitRunFinished(app string, payload domain.RunFinishedPayload) (*domain.OutboxEvent, error) {
	return e.Emit(EmitParams{
		AggregateID:   payload.WorkflowID,
		AggregateType: domain.AggregateRun,
		EventType:     RunEventType(payload.Status),
		Payload:       payload,
		App:           app,
		CorrelationID: payload.WorkflowID,
	})
}

// RunEventType maps a terminal status to its event type. Published and
// rejected runs both completed.
func RunEventType(status domain.PipelineStatus) string {
	switch status {
	case domain.StatusFailed:
		return domain.EventTypeRunFailed
	case domain.StatusCancelled:
		return domain.EventTypeRunCancelled
	default:
		return domain.EventTypeRunCompleted
	}
}
