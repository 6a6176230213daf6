package activities

import (
	"context"

	"go.temporal.io/sdk/activity"

	"github.com/newsroom/content-pipeline/internal/imagegen"
	"github.com/newsroom/content-pipeline/internal/observability"
	"github.com/newsroom/content-pipeline/internal/temporal/resilience"
)

// ImageActivities provides the image generation activity.
// Methods on this struct are registered as Temporal activities via the worker.
type ImageActivities struct {
	generator imagegen.Generator
	metrics   *observability.Metrics
}

// NewImageActivities creates a new ImageActivities instance.
// The metrics parameter may be nil (metrics recording will be skipped).
func NewImageActivities(generator imagegen.Generator, metrics *observability.Metrics) *ImageActivities {
	return &ImageActivities{generator: generator, metrics: metrics}
}

// GenerateImage generates one image. ContextURL, when set, is passed to the
// provider as the reference image so the series stays visually consistent.
func (a *ImageActivities) GenerateImage(ctx context.Context, input GenerateImageInput) (*GenerateImageOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("generating image", "role", input.Role, "hasContext", input.ContextURL != "")

	img, err := a.generator.Generate(ctx, input.Prompt, input.ContextURL)
	if err != nil {
		a.metrics.RecordImageFailed(input.Role, resilience.Classify(err).String())
		logger.Error("image generation failed", "role", input.Role, "error", err)
		return nil, resilience.ToApplicationError("generate "+input.Role+" image", err)
	}
	a.metrics.RecordImageGenerated(input.Role)

	logger.Info("image generated", "role", input.Role)
	return &GenerateImageOutput{URL: img.URL, RevisedPrompt: img.RevisedPrompt}, nil
}
