package resilience

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/newsroom/content-pipeline/internal/domain"
)

// Activity names as registered with the worker.
const (
	ActivitySearchNews      = "SearchNews"
	ActivityDeepResearch    = "DeepResearch"
	ActivityDeepCrawl       = "DeepCrawl"
	ActivityExtractBrief    = "ExtractBrief"
	ActivityGenerateDraft   = "GenerateDraft"
	ActivityGenerateImage   = "GenerateImage"
	ActivityPersistArticle  = "PersistArticle"
	ActivitySyncToGraph     = "SyncToGraph"
	ActivityUpdateRunStatus = "UpdateRunStatus"
	ActivityPublishEvent    = "PublishEvent"
)

// ActivityPolicy is the declared timeout and retry behaviour of one activity.
type ActivityPolicy struct {
	StartToCloseTimeout time.Duration
	HeartbeatTimeout    time.Duration
	MaximumAttempts     int32
	InitialInterval     time.Duration
	BackoffCoefficient  float64
	MaximumInterval     time.Duration
}

// nonRetryableErrorTypes are ApplicationError types that stop activity retries.
var nonRetryableErrorTypes = []string{
	Permanent.String(),
	Budget.String(),
	string(domain.KindGenerationParseError),
	string(domain.KindInvalidRequest),
	string(domain.KindInsufficientResearch),
}

// RetryPolicy converts the policy into a Temporal retry policy.
func (p ActivityPolicy) RetryPolicy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        p.InitialInterval,
		BackoffCoefficient:     p.BackoffCoefficient,
		MaximumInterval:        p.MaximumInterval,
		MaximumAttempts:        p.MaximumAttempts,
		NonRetryableErrorTypes: append([]string(nil), nonRetryableErrorTypes...),
	}
}

// Options returns the workflow activity options for the policy.
func (p ActivityPolicy) Options() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: p.StartToCloseTimeout,
		HeartbeatTimeout:    p.HeartbeatTimeout,
		RetryPolicy:         p.RetryPolicy(),
	}
}

// WithOptions applies the policy of the named activity to ctx.
func WithOptions(ctx workflow.Context, activity string) workflow.Context {
	return workflow.WithActivityOptions(ctx, PolicyFor(activity).Options())
}

var activityPolicies = map[string]ActivityPolicy{
	ActivitySearchNews: {
		StartToCloseTimeout: 30 * time.Second,
		MaximumAttempts:     3,
		InitialInterval:     2 * time.Second,
		BackoffCoefficient:  2.0,
		MaximumInterval:     30 * time.Second,
	},
	ActivityDeepResearch: {
		StartToCloseTimeout: 3 * time.Minute,
		MaximumAttempts:     3,
		InitialInterval:     5 * time.Second,
		BackoffCoefficient:  2.0,
		MaximumInterval:     time.Minute,
	},
	ActivityDeepCrawl: {
		StartToCloseTimeout: 3 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		MaximumAttempts:     2,
		InitialInterval:     5 * time.Second,
		BackoffCoefficient:  2.0,
		MaximumInterval:     time.Minute,
	},
	ActivityExtractBrief: {
		StartToCloseTimeout: 3 * time.Minute,
		MaximumAttempts:     3,
		InitialInterval:     5 * time.Second,
		BackoffCoefficient:  2.0,
		MaximumInterval:     time.Minute,
	},
	ActivityGenerateDraft: {
		StartToCloseTimeout: 5 * time.Minute,
		MaximumAttempts:     3,
		InitialInterval:     5 * time.Second,
		BackoffCoefficient:  2.0,
		MaximumInterval:     time.Minute,
	},
	ActivityGenerateImage: {
		StartToCloseTimeout: 90 * time.Second,
		MaximumAttempts:     2,
		InitialInterval:     5 * time.Second,
		BackoffCoefficient:  2.0,
		MaximumInterval:     30 * time.Second,
	},
	ActivityPersistArticle: {
		StartToCloseTimeout: 30 * time.Second,
		MaximumAttempts:     5,
		InitialInterval:     time.Second,
		BackoffCoefficient:  2.0,
		MaximumInterval:     30 * time.Second,
	},
	ActivitySyncToGraph: {
		StartToCloseTimeout: 30 * time.Second,
		MaximumAttempts:     2,
		InitialInterval:     2 * time.Second,
		BackoffCoefficient:  2.0,
		MaximumInterval:     10 * time.Second,
	},
	ActivityUpdateRunStatus: {
		StartToCloseTimeout: 30 * time.Second,
		MaximumAttempts:     5,
		InitialInterval:     time.Second,
		BackoffCoefficient:  2.0,
		MaximumInterval:     10 * time.Second,
	},
	ActivityPublishEvent: {
		StartToCloseTimeout: 30 * time.Second,
		MaximumAttempts:     5,
		InitialInterval:     time.Second,
		BackoffCoefficient:  2.0,
		MaximumInterval:     10 * time.Second,
	},
}

// ActivityPolicies returns a copy of the declared policy of every activity.
func ActivityPolicies() map[string]ActivityPolicy {
	out := make(map[string]ActivityPolicy, len(activityPolicies))
	for name, p := range activityPolicies {
		out[name] = p
	}
	return out
}

// PolicyFor returns the policy of the named activity. Unknown names get a
// conservative 1 minute, 3 attempt policy.
func PolicyFor(activity string) ActivityPolicy {
	if p, ok := activityPolicies[activity]; ok {
		return p
	}
	return ActivityPolicy{
		StartToCloseTimeout: time.Minute,
		MaximumAttempts:     3,
		InitialInterval:     time.Second,
		BackoffCoefficient:  2.0,
		MaximumInterval:     30 * time.Second,
	}
}
