// Package llm provides the text generation providers used by the content
// pipeline: extracting a research brief from gathered sources and writing
// the article draft.
//
// Providers implement Completer and are created with NewCompleter. The
// Generator builds prompts, calls the provider and parses the structured
// output, re-prompting once with stricter instructions when the model returns
// malformed JSON.
package llm

import (
	"context"
	"errors"
)

// ErrMalformedOutput is returned when a model response cannot be parsed into
// the expected structure, even after the strict re-prompt.
var ErrMalformedOutput = errors.New("malformed model output")

// Operation names used in prompts, logs and metrics.
const (
	OperationBrief = "brief"
	OperationDraft = "draft"
)

// CompletionRequest is a single prompt sent to a provider.
type CompletionRequest struct {
	// Operation labels logs and metrics, e.g. "brief".
	Operation string
	System    string
	User      string
	// JSON asks the provider to answer with a single JSON object.
	JSON bool
	// Schema is a JSON schema for providers that support structured output.
	Schema    string
	MaxTokens int
}

// Completion is a provider response.
type Completion struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Completer is a text generation provider.
type Completer interface {
	// Complete sends the prompt and returns the raw model output. Transient
	// provider failures are retried internally up to the configured limit.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// Provider returns the provider name, e.g. "openai".
	Provider() string

	// Model returns the model identifier in use.
	Model() string
}
