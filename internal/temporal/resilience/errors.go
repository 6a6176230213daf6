// Package resilience holds the error taxonomy and the declared retry
// policies of the content pipeline: how provider failures are classified,
// how they cross the activity boundary, how long each activity may run and
// how often it is retried, and what the workflow does when a stage gives up.
package resilience

import (
	"context"
	"errors"
	"strings"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/temporal"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/llm"
)

// ErrorCategory classifies errors into workflow-level categories that
// determine retry and degradation behaviour.
type ErrorCategory int

const (
	// Transient errors are temporary failures worth retrying with backoff
	// (timeouts, rate limits, 5xx responses).
	Transient ErrorCategory = iota

	// Budget errors mean a provider quota is exhausted. Retrying within the
	// run will not help.
	Budget

	// Permanent errors are not recoverable by retrying.
	Permanent
)

// String returns a human-readable name for the category. It is also used as
// the ApplicationError type for errors that carry no ErrorKind.
func (c ErrorCategory) String() string {
	switch c {
	case Transient:
		return "transient"
	case Budget:
		return "budget"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// quotaMarkers identify exhausted provider quotas in API error types and codes.
var quotaMarkers = []string{"insufficient_quota", "quota_exceeded", "billing_hard_limit"}

var transientSubstrings = []string{
	"timeout",
	"timed out",
	"network",
	"connection refused",
	"connection reset",
	"rate limit",
	"rate_limit",
	"server_error",
	"service unavailable",
	"temporary",
	"deadline exceeded",
	"eof",
}

// "unauthorized" rather than "auth", which would match "author".
var permanentSubstrings = []string{
	"unauthorized",
	"forbidden",
	"bad request",
	"bad_request",
	"not found",
	"invalid request",
	"invalid_request",
	"validation",
	"content_policy",
	"safety system",
}

// nonRetryableKinds are ErrorKinds whose activity failures must not be retried.
var nonRetryableKinds = map[string]bool{
	string(domain.KindGenerationParseError): true,
	string(domain.KindInvalidRequest):       true,
	string(domain.KindInsufficientResearch): true,
}

// Classify inspects err and returns its ErrorCategory.
//
// Priority: Temporal ApplicationError type, LLM API errors, domain errors,
// then message substrings. Unknown errors are Transient.
func Classify(err error) ErrorCategory {
	if err == nil {
		return Permanent
	}

	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		switch appErr.Type() {
		case Budget.String():
			return Budget
		case Transient.String():
			return Transient
		case Permanent.String():
			return Permanent
		}
		if appErr.NonRetryable() || nonRetryableKinds[appErr.Type()] {
			return Permanent
		}
		if appErr.Type() != "" {
			return Transient
		}
	}

	if temporal.IsCanceledError(err) || errors.Is(err, context.Canceled) {
		return Permanent
	}

	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		if isQuota(apiErr.Type) || isQuota(apiErr.Code) {
			return Budget
		}
		if apiErr.IsTransient() {
			return Transient
		}
		return Permanent
	}

	var extErr *domain.ExternalAPIError
	if errors.As(err, &extErr) {
		if extErr.Retryable() {
			return Transient
		}
		return Permanent
	}

	switch {
	case errors.Is(err, domain.ErrRateLimited), errors.Is(err, domain.ErrServiceUnavailable):
		return Transient
	case errors.Is(err, llm.ErrMalformedOutput),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrUnknownApp):
		return Permanent
	}

	msg := strings.ToLower(err.Error())
	if isQuota(msg) {
		return Budget
	}
	for _, sub := range transientSubstrings {
		if strings.Contains(msg, sub) {
			return Transient
		}
	}
	for _, sub := range permanentSubstrings {
		if strings.Contains(msg, sub) {
			return Permanent
		}
	}
	return Transient
}

// KindOf maps an error returned to the workflow onto the caller-facing
// ErrorKind taxonomy.
func KindOf(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}

	if temporal.IsCanceledError(err) || errors.Is(err, context.Canceled) {
		return domain.KindCancelled
	}

	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) && timeoutErr.TimeoutType() == enums.TIMEOUT_TYPE_START_TO_CLOSE {
		return domain.KindActivityFailed
	}
	if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}

	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		if kind := domain.ErrorKind(appErr.Type()); isKind(kind) {
			return kind
		}
	}

	var pErr *domain.PipelineError
	if errors.As(err, &pErr) {
		return pErr.Kind
	}

	switch {
	case errors.Is(err, llm.ErrMalformedOutput):
		return domain.KindGenerationParseError
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnknownApp):
		return domain.KindInvalidRequest
	}
	return domain.KindActivityFailed
}

// ToApplicationError translates a provider error into the ApplicationError an
// activity returns. The type is the error's category; non-transient errors
// are non-retryable and rate limits carry the provider's retry hint.
func ToApplicationError(message string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return err
	}

	category := Classify(err)
	opts := temporal.ApplicationErrorOptions{
		NonRetryable: category != Transient,
		Cause:        err,
	}
	var rlErr *domain.RateLimitError
	if errors.As(err, &rlErr) && rlErr.RetryAfter > 0 {
		opts.NextRetryDelay = rlErr.RetryAfter
	}
	return temporal.NewApplicationErrorWithOptions(message+": "+err.Error(), category.String(), opts)
}

// KindError returns an ApplicationError typed with kind. Kinds in the
// non-retryable set are never retried regardless of retryable.
func KindError(kind domain.ErrorKind, message string, err error, retryable bool) error {
	opts := temporal.ApplicationErrorOptions{
		NonRetryable: !retryable || nonRetryableKinds[string(kind)],
		Cause:        err,
	}
	if err != nil {
		message += ": " + err.Error()
	}
	return temporal.NewApplicationErrorWithOptions(message, string(kind), opts)
}

func isKind(k domain.ErrorKind) bool {
	switch k {
	case domain.KindInsufficientResearch, domain.KindGenerationParseError,
		domain.KindPersistenceFailed, domain.KindActivityFailed,
		domain.KindTimeout, domain.KindCancelled, domain.KindInvalidRequest:
		return true
	}
	return false
}

func isQuota(s string) bool {
	s = strings.ToLower(s)
	for _, m := range quotaMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
