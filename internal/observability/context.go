package observability

import (
	"context"

	"github.com/rs/zerolog"
)

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	workflowIDKey contextKey = "workflow_id"
	runIDKey      contextKey = "workflow_run_id"
	appKey        contextKey = "app"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request ID, or "" if none is set.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// WithWorkflow adds workflow ID and run ID to the context.
func WithWorkflow(ctx context.Context, workflowID, runID string) context.Context {
	ctx = context.WithValue(ctx, workflowIDKey, workflowID)
	return context.WithValue(ctx, runIDKey, runID)
}

// WorkflowFromContext returns the workflow and run IDs, or empty strings.
func WorkflowFromContext(ctx context.Context) (workflowID, runID string) {
	return stringValue(ctx, workflowIDKey), stringValue(ctx, runIDKey)
}

// WithApp adds the app name of the run being served to the context.
func WithApp(ctx context.Context, app string) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// AppFromContext returns the app name, or "" if none is set.
func AppFromContext(ctx context.Context) string {
	return stringValue(ctx, appKey)
}

// LoggerFromContext enriches logger with every observability field found in ctx.
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	lc := logger.With()
	if id := RequestIDFromContext(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	if wf, run := WorkflowFromContext(ctx); wf != "" {
		lc = lc.Str("workflow_id", wf)
		if run != "" {
			lc = lc.Str("workflow_run_id", run)
		}
	}
	if app := AppFromContext(ctx); app != "" {
		lc = lc.Str("app", app)
	}
	return lc.Logger()
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
