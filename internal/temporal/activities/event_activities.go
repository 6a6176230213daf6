package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/outbox"
)

// EventPublisher is the interface used by EventActivities to publish events.
type EventPublisher interface {
	PublishNonTx(ctx context.Context, params outbox.EmitParams) error
}

// EventActivities publishes run lifecycle events through the outbox. Article
// events are written by PersistArticle in the article transaction instead.
//
// Methods on this struct are registered as Temporal activities via the worker.
type EventActivities struct {
	publisher EventPublisher
}

// NewEventActivities creates a new EventActivities with the given publisher.
func NewEventActivities(publisher EventPublisher) *EventActivities {
	return &EventActivities{publisher: publisher}
}

// PublishEvent publishes the terminal run event matching input.Run.Status.
// Callers use fire-and-forget semantics; failure never fails the workflow.
func (a *EventActivities) PublishEvent(ctx context.Context, input PublishEventInput) error {
	logger := activity.GetLogger(ctx)
	eventType := outbox.RunEventType(input.Run.Status)
	logger.Info("publishing event",
		"eventType", eventType,
		"workflowID", input.Run.WorkflowID,
	)

	err := a.publisher.PublishNonTx(ctx, outbox.EmitParams{
		AggregateID:   input.Run.WorkflowID,
		AggregateType: domain.AggregateRun,
		EventType:     eventType,
		Payload:       input.Run,
		App:           input.App,
		CorrelationID: input.Run.WorkflowID,
	})
	if err != nil {
		logger.Error("failed to publish event",
			"eventType", eventType,
			"workflowID", input.Run.WorkflowID,
			"error", err,
		)
		return fmt.Errorf("publish event %s: %w", eventType, err)
	}

	return nil
}
