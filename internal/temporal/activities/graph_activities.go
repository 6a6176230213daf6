package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/newsroom/content-pipeline/internal/graph"
	"github.com/newsroom/content-pipeline/internal/observability"
	"github.com/newsroom/content-pipeline/internal/temporal/resilience"
)

// Graph sync outcomes recorded in metrics.
const (
	graphSynced   = "synced"
	graphFailed   = "failed"
	graphDisabled = "disabled"
)

// GraphActivities pushes article entities to the knowledge graph.
// Methods on this struct are registered as Temporal activities via the worker.
type GraphActivities struct {
	syncer  graph.Syncer
	metrics *observability.Metrics
}

// NewGraphActivities creates a new GraphActivities instance. A nil syncer
// turns SyncToGraph into a no-op for deployments without a graph endpoint.
func NewGraphActivities(syncer graph.Syncer, metrics *observability.Metrics) *GraphActivities {
	return &GraphActivities{syncer: syncer, metrics: metrics}
}

// SyncToGraph sends the article's entities to the knowledge graph. The
// workflow treats failure as partial success.
func (a *GraphActivities) SyncToGraph(ctx context.Context, input SyncToGraphInput) error {
	logger := activity.GetLogger(ctx)

	if a.syncer == nil {
		logger.Info("graph sync disabled, skipping", "articleID", input.ArticleID)
		a.metrics.RecordGraphSync(graphDisabled)
		return nil
	}

	logger.Info("syncing article to graph", "articleID", input.ArticleID, "entities", len(input.Entities))

	err := a.syncer.Sync(ctx, graph.Episode{
		ArticleID: input.ArticleID,
		App:       input.App,
		Title:     input.Title,
		Entities:  input.Entities,
	})
	if err != nil {
		a.metrics.RecordGraphSync(graphFailed)
		logger.Warn("graph sync failed", "articleID", input.ArticleID, "error", err)
		return resilience.ToApplicationError("sync to graph", err)
	}
	a.metrics.RecordGraphSync(graphSynced)

	logger.Info("article synced to graph", "articleID", input.ArticleID)
	return nil
}
