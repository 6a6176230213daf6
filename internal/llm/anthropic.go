package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicConfig holds the parameters needed to create an Anthropic provider.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

// promptFunc sends one prompt and returns the first text block.
type promptFunc func(system, user, schema, apiKey string, settings types.RequestSettings) (string, error)

// AnthropicProvider implements Completer on top of the llmkit Messages client.
type AnthropicProvider struct {
	prompt      promptFunc
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
}

// NewAnthropicProvider creates an Anthropic provider. The timeout bounds each
// attempt; transient failures are retried up to maxRetries times with
// exponential backoff.
func NewAnthropicProvider(cfg AnthropicConfig, temperature float64, maxTokens int, timeout time.Duration, maxRetries int) *AnthropicProvider {
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &AnthropicProvider{
		prompt:      llmkitPrompt,
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		timeout:     timeout,
		maxRetries:  maxRetries,
		retryDelay:  time.Second,
	}
}

func llmkitPrompt(system, user, schema, apiKey string, settings types.RequestSettings) (string, error) {
	resp, err := anthropic.PromptWithSettings(system, user, schema, apiKey, settings)
	if err != nil {
		return "", err
	}
	if len(resp.Content) == 0 || resp.Content[0].Text == "" {
		return "", errors.New("response contains no text content")
	}
	return resp.Content[0].Text, nil
}

// Complete sends the prompt through llmkit. A schema on the request enables
// structured output.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	settings := types.RequestSettings{
		Model:       p.model,
		MaxTokens:   maxTokens,
		Temperature: p.temperature,
	}
	schema := ""
	if req.JSON {
		schema = req.Schema
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("anthropic: context cancelled during retry: %w", ctx.Err())
			case <-time.After(p.retryDelay * time.Duration(1<<(attempt-1))):
			}
		}

		text, err := p.send(ctx, req.System, req.User, schema, settings)
		if err == nil {
			return &Completion{
				Content:      text,
				Model:        p.model,
				InputTokens:  estimateTokens(req.System) + estimateTokens(req.User),
				OutputTokens: estimateTokens(text),
			}, nil
		}
		if !IsTransient(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("anthropic: all %d retries exhausted: %w", p.maxRetries, lastErr)
}

// send runs one blocking llmkit call and gives up when ctx is done or the
// attempt timeout elapses.
func (p *AnthropicProvider) send(ctx context.Context, system, user, schema string, settings types.RequestSettings) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := p.prompt(system, user, schema, p.apiKey, settings)
		done <- result{text: text, err: err}
	}()

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("anthropic: %w", ctx.Err())
	case <-timer.C:
		return "", &APIError{Provider: "anthropic", Message: "request timed out after " + p.timeout.String(), Type: "timeout"}
	case r := <-done:
		if r.err != nil {
			return "", &APIError{
				Provider:   "anthropic",
				StatusCode: statusFromError(r.err),
				Message:    r.err.Error(),
			}
		}
		return r.text, nil
	}
}

// Provider returns "anthropic".
func (p *AnthropicProvider) Provider() string {
	return "anthropic"
}

// Model returns the model identifier in use.
func (p *AnthropicProvider) Model() string {
	return p.model
}

var statusPattern = regexp.MustCompile(`\b([45]\d\d)\b`)

// statusFromError recovers the HTTP status from an llmkit error message.
// Zero means none was found, which classifies the failure as transient.
func statusFromError(err error) int {
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

// estimateTokens approximates token usage at four characters per token; the
// llmkit response does not expose usage.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
