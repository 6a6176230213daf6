package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aktagon/llmkit/anthropic/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Completer = (*AnthropicProvider)(nil)

func newAnthropicTestProvider(maxRetries int, prompt promptFunc) *AnthropicProvider {
	p := NewAnthropicProvider(AnthropicConfig{APIKey: "sk-ant", Model: "claude-test"}, 0.4, 2048, time.Second, maxRetries)
	p.prompt = prompt
	p.retryDelay = time.Millisecond
	return p
}

func TestAnthropicProvider_Complete(t *testing.T) {
	t.Run("passes settings and schema", func(t *testing.T) {
		var gotSystem, gotUser, gotSchema, gotKey string
		var gotSettings types.RequestSettings
		p := newAnthropicTestProvider(0, func(system, user, schema, apiKey string, settings types.RequestSettings) (string, error) {
			gotSystem, gotUser, gotSchema, gotKey, gotSettings = system, user, schema, apiKey, settings
			return `{"title":"t"}`, nil
		})

		got, err := p.Complete(context.Background(), CompletionRequest{
			System: "sys",
			User:   "usr",
			JSON:   true,
			Schema: draftSchema,
		})
		require.NoError(t, err)

		assert.Equal(t, "sys", gotSystem)
		assert.Equal(t, "usr", gotUser)
		assert.Equal(t, draftSchema, gotSchema)
		assert.Equal(t, "sk-ant", gotKey)
		assert.Equal(t, "claude-test", gotSettings.Model)
		assert.Equal(t, 2048, gotSettings.MaxTokens)
		assert.Equal(t, 0.4, gotSettings.Temperature)

		assert.Equal(t, `{"title":"t"}`, got.Content)
		assert.Equal(t, "claude-test", got.Model)
		assert.Equal(t, 2, got.InputTokens)
		assert.Equal(t, 4, got.OutputTokens)
	})

	t.Run("schema is dropped for plain requests", func(t *testing.T) {
		var gotSchema string
		p := newAnthropicTestProvider(0, func(_, _, schema, _ string, _ types.RequestSettings) (string, error) {
			gotSchema = schema
			return "text", nil
		})

		_, err := p.Complete(context.Background(), CompletionRequest{User: "u", Schema: briefSchema})
		require.NoError(t, err)
		assert.Empty(t, gotSchema)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		p := newAnthropicTestProvider(2, func(_, _, _, _ string, _ types.RequestSettings) (string, error) {
			calls++
			if calls == 1 {
				return "", errors.New("API request failed with status 529: overloaded")
			}
			return "ok", nil
		})

		got, err := p.Complete(context.Background(), CompletionRequest{User: "u"})
		require.NoError(t, err)
		assert.Equal(t, "ok", got.Content)
		assert.Equal(t, 2, calls)
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		calls := 0
		p := newAnthropicTestProvider(3, func(_, _, _, _ string, _ types.RequestSettings) (string, error) {
			calls++
			return "", errors.New("API request failed with status 400: invalid request")
		})

		_, err := p.Complete(context.Background(), CompletionRequest{User: "u"})
		require.Error(t, err)

		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 400, apiErr.StatusCode)
		assert.Equal(t, 1, calls)
	})

	t.Run("context cancellation", func(t *testing.T) {
		block := make(chan struct{})
		defer close(block)
		p := newAnthropicTestProvider(0, func(_, _, _, _ string, _ types.RequestSettings) (string, error) {
			<-block
			return "late", nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := p.Complete(ctx, CompletionRequest{User: "u"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("attempt timeout is transient", func(t *testing.T) {
		block := make(chan struct{})
		defer close(block)
		p := newAnthropicTestProvider(0, func(_, _, _, _ string, _ types.RequestSettings) (string, error) {
			<-block
			return "late", nil
		})
		p.timeout = 10 * time.Millisecond

		_, err := p.Complete(context.Background(), CompletionRequest{User: "u"})
		require.Error(t, err)
		assert.True(t, IsTransient(err))
	})
}

func TestStatusFromError(t *testing.T) {
	assert.Equal(t, 429, statusFromError(errors.New("status 429 too many requests")))
	assert.Equal(t, 500, statusFromError(errors.New("HTTP 500")))
	assert.Equal(t, 0, statusFromError(errors.New("connection reset by peer")))
}
