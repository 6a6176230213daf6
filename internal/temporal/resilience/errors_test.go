package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.temporal.io/sdk/temporal"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/llm"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCategory
	}{
		{"nil", nil, Permanent},
		{"llm rate limit", &llm.APIError{Provider: "openai", StatusCode: 429}, Transient},
		{"llm server error", fmt.Errorf("draft: %w", &llm.APIError{StatusCode: 503}), Transient},
		{"llm network", &llm.APIError{StatusCode: 0, Type: "network_error"}, Transient},
		{"llm bad key", &llm.APIError{StatusCode: 401}, Permanent},
		{"llm quota by type", &llm.APIError{StatusCode: 429, Type: "insufficient_quota"}, Budget},
		{"llm quota by code", &llm.APIError{StatusCode: 429, Code: "insufficient_quota"}, Budget},
		{"malformed output", fmt.Errorf("brief: %w", llm.ErrMalformedOutput), Permanent},
		{"external 502", domain.NewExternalAPIError("news-search", 502, "bad gateway", nil), Transient},
		{"external 400", domain.NewExternalAPIError("news-search", 400, "bad query", nil), Permanent},
		{"rate limit error", domain.NewRateLimitError("news-search", time.Second), Transient},
		{"validation", domain.NewValidationError("topic", "required"), Permanent},
		{"unknown app", fmt.Errorf("lookup: %w", domain.ErrUnknownApp), Permanent},
		{"context cancelled", context.Canceled, Permanent},
		{"app error transient type", temporal.NewApplicationError("x", Transient.String()), Transient},
		{"app error budget type", temporal.NewApplicationError("x", Budget.String()), Budget},
		{"app error parse kind", temporal.NewApplicationError("x", string(domain.KindGenerationParseError)), Permanent},
		{"app error non-retryable", temporal.NewNonRetryableApplicationError("x", "Other", nil), Permanent},
		{"app error retryable kind", temporal.NewApplicationError("x", string(domain.KindPersistenceFailed)), Transient},
		{"message timeout", errors.New("read tcp: i/o timeout"), Transient},
		{"message unauthorized", errors.New("request unauthorized"), Permanent},
		{"message quota", errors.New("You exceeded your current quota: insufficient_quota"), Budget},
		{"unknown defaults to transient", errors.New("something odd"), Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.expected {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected domain.ErrorKind
	}{
		{"nil", nil, ""},
		{"cancelled", temporal.NewCanceledError(), domain.KindCancelled},
		{"context cancelled", fmt.Errorf("wait: %w", context.Canceled), domain.KindCancelled},
		{"deadline", context.DeadlineExceeded, domain.KindTimeout},
		{"typed app error", temporal.NewApplicationError("x", string(domain.KindPersistenceFailed)), domain.KindPersistenceFailed},
		{"category app error", temporal.NewApplicationError("x", Transient.String()), domain.KindActivityFailed},
		{"pipeline error", domain.NewPipelineError(domain.KindInsufficientResearch, "2 of 3"), domain.KindInsufficientResearch},
		{"malformed", llm.ErrMalformedOutput, domain.KindGenerationParseError},
		{"invalid input", domain.NewValidationError("topic", "required"), domain.KindInvalidRequest},
		{"other", errors.New("boom"), domain.KindActivityFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.expected {
				t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.expected)
			}
		})
	}
}

func TestToApplicationError(t *testing.T) {
	if ToApplicationError("x", nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	transient := ToApplicationError("search news", domain.NewExternalAPIError("news-search", 503, "down", nil))
	var appErr *temporal.ApplicationError
	if !errors.As(transient, &appErr) {
		t.Fatalf("expected ApplicationError, got %T", transient)
	}
	if appErr.Type() != "transient" || appErr.NonRetryable() {
		t.Errorf("type=%q nonRetryable=%v, want transient/retryable", appErr.Type(), appErr.NonRetryable())
	}

	permanent := ToApplicationError("search news", domain.NewExternalAPIError("news-search", 401, "bad key", nil))
	if !errors.As(permanent, &appErr) || !appErr.NonRetryable() || appErr.Type() != "permanent" {
		t.Errorf("expected non-retryable permanent error, got %v", permanent)
	}

	already := temporal.NewApplicationError("typed", "Custom")
	if got := ToApplicationError("x", already); got != already {
		t.Errorf("expected ApplicationError to pass through unchanged")
	}
}

func TestToApplicationError_RateLimitCarriesRetryDelay(t *testing.T) {
	err := ToApplicationError("deep research", domain.NewRateLimitError("deep-research", 20*time.Second))

	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected ApplicationError, got %T", err)
	}
	if appErr.NextRetryDelay() != 20*time.Second {
		t.Errorf("NextRetryDelay = %v, want 20s", appErr.NextRetryDelay())
	}
	if appErr.NonRetryable() {
		t.Error("rate limit must stay retryable")
	}
}

func TestKindError(t *testing.T) {
	err := KindError(domain.KindGenerationParseError, "brief", llm.ErrMalformedOutput, true)

	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected ApplicationError, got %T", err)
	}
	if appErr.Type() != string(domain.KindGenerationParseError) {
		t.Errorf("type = %q", appErr.Type())
	}
	if !appErr.NonRetryable() {
		t.Error("parse errors must be non-retryable")
	}

	retryable := KindError(domain.KindPersistenceFailed, "persist", errors.New("conn reset"), true)
	if !errors.As(retryable, &appErr) || appErr.NonRetryable() {
		t.Errorf("persistence failures should stay retryable: %v", retryable)
	}
}

func TestErrorCategory_String(t *testing.T) {
	tests := []struct {
		c    ErrorCategory
		want string
	}{
		{Transient, "transient"},
		{Budget, "budget"},
		{Permanent, "permanent"},
		{ErrorCategory(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("ErrorCategory(%d).String() = %q, want %q", tt.c, got, tt.want)
		}
	}
}
