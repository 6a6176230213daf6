package resilience

import (
	"fmt"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/newsroom/content-pipeline/internal/domain"
)

// PhaseResult is the outcome of a phase execution. At most one of Failed,
// Degraded and Skipped is set, and only together with a non-nil Err.
type PhaseResult struct {
	// Failed means the run must stop with Err.
	Failed bool
	// Degraded means the run continues with a partial result.
	Degraded bool
	// Skipped means the run continues without this phase's output.
	Skipped bool
	Err     error
	// Category is the classification of Err.
	Category ErrorCategory
	// Attempts is the number of times fn ran.
	Attempts int
}

// OK reports whether the phase succeeded.
func (r PhaseResult) OK() bool {
	return r.Err == nil
}

// Progress tracks retry state for the progress query.
type Progress struct {
	RetryAttempt   int    `json:"retry_attempt"`
	RetryPhase     string `json:"retry_phase,omitempty"`
	LastRetryError string `json:"last_retry_error,omitempty"`
}

// ExecutePhase runs fn, which usually executes one activity and waits for
// it, and maps its outcome onto the phase's criticality. Transient errors are
// retried up to cfg.MaxRetries times with deterministic workflow.Sleep
// backoff. Cancellation always fails the phase.
func ExecutePhase(ctx workflow.Context, cfg PhaseConfig, progress *Progress, fn func() error) PhaseResult {
	logger := workflow.GetLogger(ctx)

	for attempt := 0; ; attempt++ {
		if progress != nil {
			progress.RetryAttempt = attempt
			progress.RetryPhase = cfg.Name
		}

		err := fn()
		if err == nil {
			if progress != nil {
				*progress = Progress{}
			}
			return PhaseResult{Attempts: attempt + 1}
		}

		if temporal.IsCanceledError(err) || ctx.Err() != nil {
			return PhaseResult{
				Failed:   true,
				Err:      fmt.Errorf("%s: %w", cfg.Name, err),
				Category: Permanent,
				Attempts: attempt + 1,
			}
		}

		category := Classify(err)
		if progress != nil {
			progress.LastRetryError = err.Error()
		}

		logger.Info("Phase execution failed",
			"phase", cfg.Name,
			"attempt", attempt+1,
			"maxAttempts", cfg.MaxRetries+1,
			"errorCategory", category.String(),
			"error", err,
		)

		if category != Transient {
			return outcome(cfg, category, fmt.Errorf("%s: %s error: %w", cfg.Name, category, err), attempt+1)
		}
		if attempt >= cfg.MaxRetries {
			return outcome(cfg, category, fmt.Errorf("%s: retries exhausted: %w", cfg.Name, err), attempt+1)
		}

		backoff := cfg.backoffForAttempt(attempt)
		logger.Info("Retrying phase after backoff", "phase", cfg.Name, "attempt", attempt+1, "backoff", backoff)
		if sleepErr := workflow.Sleep(ctx, backoff); sleepErr != nil {
			return PhaseResult{
				Failed:   true,
				Err:      fmt.Errorf("%s: cancelled during retry backoff: %w", cfg.Name, sleepErr),
				Category: Permanent,
				Attempts: attempt + 1,
			}
		}
	}
}

// Describe returns the caller-facing account of a failed phase: the phase
// name and how it failed. The underlying error text is left out; it belongs
// in the worker log. activity names the activity whose policy bounded the
// retries.
func Describe(phase, activity string, r PhaseResult) string {
	if r.Err == nil {
		return phase + ": completed"
	}
	switch KindOf(r.Err) {
	case domain.KindCancelled:
		return phase + ": cancelled"
	case domain.KindTimeout:
		return phase + ": timed out"
	}
	switch r.Category {
	case Transient:
		attempts := r.Attempts * int(max(PolicyFor(activity).MaximumAttempts, 1))
		return fmt.Sprintf("%s: retries exhausted after %d attempts", phase, attempts)
	case Budget:
		return phase + ": provider quota exhausted"
	default:
		return phase + ": failed with a non-retryable error"
	}
}

func outcome(cfg PhaseConfig, category ErrorCategory, err error, attempts int) PhaseResult {
	r := PhaseResult{Err: err, Category: category, Attempts: attempts}
	switch cfg.Criticality {
	case Critical:
		r.Failed = true
	case Important:
		r.Degraded = true
	default:
		r.Skipped = true
	}
	return r
}
