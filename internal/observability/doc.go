// Package observability provides structured logging, Prometheus metrics and
// context helpers for the content pipeline processes.
//
// Processes build one zerolog logger from configuration and derive scoped
// loggers from it:
//
//	logger := observability.NewLogger(observability.LoggingConfig{Level: "info", Format: "json"})
//	logger = observability.WithPipelineContext(logger, workflowID, "relocation", topic)
//
// The Temporal SDK receives the same logger through NewTemporalLogger, so
// workflow.GetLogger and activity.GetLogger output shares the format.
//
// Metrics are created once per process with NewMetrics(namespace). Every
// Record* helper is safe to call on a nil *Metrics, which lets tests and
// optional components skip instrumentation.
//
// Standard fields: workflow_id, workflow_run_id, app, topic, stage, provider,
// request_id, component.
package observability
