package llm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/observability"
)

// Usage summarises the provider calls behind one generation.
type Usage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
	// ParseRetries counts strict re-prompts after malformed output.
	ParseRetries int
}

// Generator produces briefs and drafts through a Completer.
type Generator struct {
	completer Completer
	metrics   *observability.Metrics
}

// NewGenerator creates a Generator. metrics may be nil.
func NewGenerator(completer Completer, metrics *observability.Metrics) *Generator {
	return &Generator{completer: completer, metrics: metrics}
}

// Completer returns the underlying provider.
func (g *Generator) Completer() Completer {
	return g.completer
}

// ExtractBrief synthesises sources into a research brief. A response that
// does not parse is re-requested once with the strict prompt; a second parse
// failure returns an error wrapping ErrMalformedOutput.
func (g *Generator) ExtractBrief(ctx context.Context, topic string, sources []domain.Source) (*domain.ResearchBrief, Usage, error) {
	return generate(ctx, g, OperationBrief,
		func(strict bool) CompletionRequest { return BriefPrompt(topic, sources, strict) },
		ParseBrief)
}

// GenerateDraft writes an article from the brief with the same parse
// handling as ExtractBrief.
func (g *Generator) GenerateDraft(ctx context.Context, req DraftRequest) (*domain.ArticleDraft, Usage, error) {
	return generate(ctx, g, OperationDraft,
		func(strict bool) CompletionRequest { return DraftPrompt(req, strict) },
		ParseDraft)
}

func generate[T any](
	ctx context.Context,
	g *Generator,
	operation string,
	build func(strict bool) CompletionRequest,
	parse func(string) (*T, error),
) (*T, Usage, error) {
	usage := Usage{Model: g.completer.Model()}

	var parseErr error
	for _, strict := range []bool{false, true} {
		if strict {
			usage.ParseRetries++
			g.metrics.RecordLLMParseRetry(operation)
		}

		completion, err := g.complete(ctx, build(strict))
		if err != nil {
			return nil, usage, err
		}
		usage.Calls++
		usage.Model = completion.Model
		usage.InputTokens += completion.InputTokens
		usage.OutputTokens += completion.OutputTokens

		out, err := parse(completion.Content)
		if err == nil {
			return out, usage, nil
		}
		if !errors.Is(err, ErrMalformedOutput) {
			return nil, usage, err
		}
		parseErr = err
	}

	return nil, usage, fmt.Errorf("%s: strict re-prompt failed: %w", operation, parseErr)
}

func (g *Generator) complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	start := time.Now()
	completion, err := g.completer.Complete(ctx, req)
	if err != nil {
		g.metrics.RecordLLMRequestFailed(req.Operation, g.completer.Model(), errorType(err))
		return nil, fmt.Errorf("%s: %w", req.Operation, err)
	}
	g.metrics.RecordLLMRequest(req.Operation, completion.Model, time.Since(start).Seconds(),
		completion.InputTokens, completion.OutputTokens)
	return completion, nil
}

func errorType(err error) string {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.Type != "":
		return apiErr.Type
	case errors.As(err, &apiErr):
		return "status_" + strconv.Itoa(apiErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "unknown"
	}
}
