package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/llm"
	"github.com/newsroom/content-pipeline/internal/temporal/resilience"
)

// ContentGenerator produces briefs and drafts from an LLM. Implementations
// re-prompt once in strict mode before reporting llm.ErrMalformedOutput.
type ContentGenerator interface {
	ExtractBrief(ctx context.Context, topic string, sources []domain.Source) (*domain.ResearchBrief, llm.Usage, error)
	GenerateDraft(ctx context.Context, req llm.DraftRequest) (*domain.ArticleDraft, llm.Usage, error)
}

// GenerationActivities provides the LLM-backed activities.
// Methods on this struct are registered as Temporal activities via the worker.
type GenerationActivities struct {
	generator ContentGenerator
}

// NewGenerationActivities creates a new GenerationActivities instance.
func NewGenerationActivities(generator ContentGenerator) *GenerationActivities {
	return &GenerationActivities{generator: generator}
}

// ExtractBrief synthesises the sources into a research brief.
//
// Output that still cannot be parsed after the strict re-prompt is reported
// as a non-retryable GenerationParseError.
func (a *GenerationActivities) ExtractBrief(ctx context.Context, input ExtractBriefInput) (*ExtractBriefOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("extracting brief", "topic", input.Topic, "sources", len(input.Sources))

	brief, usage, err := a.generator.ExtractBrief(ctx, input.Topic, input.Sources)
	if err != nil {
		logger.Error("brief extraction failed", "topic", input.Topic, "parseRetries", usage.ParseRetries, "error", err)
		return nil, generationError("extract brief", err)
	}

	logger.Info("brief extracted",
		"entities", len(brief.Entities),
		"citations", len(brief.Citations),
		"model", usage.Model,
		"inputTokens", usage.InputTokens,
		"outputTokens", usage.OutputTokens,
	)

	return &ExtractBriefOutput{
		Brief:        *brief,
		Model:        usage.Model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		ParseRetries: usage.ParseRetries,
	}, nil
}

// GenerateDraft writes one article draft. The returned draft's Attempt is the
// input attempt number.
func (a *GenerationActivities) GenerateDraft(ctx context.Context, input GenerateDraftInput) (*GenerateDraftOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("generating draft",
		"topic", input.Topic,
		"attempt", input.Attempt,
		"targetWordCount", input.TargetWordCount,
		"hasFeedback", input.Feedback != "",
	)

	draft, usage, err := a.generator.GenerateDraft(ctx, llm.DraftRequest{
		Topic:           input.Topic,
		Brief:           input.Brief,
		Sources:         input.Sources,
		TargetWordCount: input.TargetWordCount,
		Profile:         input.Profile,
		Feedback:        input.Feedback,
		Attempt:         input.Attempt,
	})
	if err != nil {
		logger.Error("draft generation failed", "attempt", input.Attempt, "parseRetries", usage.ParseRetries, "error", err)
		return nil, generationError("generate draft", err)
	}
	draft.Attempt = input.Attempt

	logger.Info("draft generated",
		"attempt", input.Attempt,
		"wordCount", draft.WordCount,
		"citations", len(draft.CitationsUsed),
		"model", usage.Model,
	)

	return &GenerateDraftOutput{
		Draft:        *draft,
		Model:        usage.Model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		ParseRetries: usage.ParseRetries,
	}, nil
}

func generationError(message string, err error) error {
	if errors.Is(err, llm.ErrMalformedOutput) {
		return resilience.KindError(domain.KindGenerationParseError, message, err, false)
	}
	return resilience.ToApplicationError(message, err)
}
