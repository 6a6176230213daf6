package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of the content pipeline, grouped by
// subsystem: runs, stages, research, generation, images, persistence, graph
// sync, outbox relay, intake and the Temporal client. Everything is
// registered with the default registry via promauto.
type Metrics struct {
	RunsStarted  prometheus.Counter
	RunsFinished *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec

	// StageDuration observes how long each pipeline stage took, labeled by stage.
	StageDuration *prometheus.HistogramVec

	ResearchRequests        *prometheus.CounterVec
	ResearchRequestDuration *prometheus.HistogramVec
	SourcesFound            *prometheus.CounterVec
	RateLimited             *prometheus.CounterVec

	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestsFailed  *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMTokensUsed      *prometheus.CounterVec
	// LLMParseRetries counts strict re-prompts issued after malformed model output.
	LLMParseRetries *prometheus.CounterVec

	QualityScores       prometheus.Histogram
	QualityGateOutcomes *prometheus.CounterVec

	ImagesGenerated *prometheus.CounterVec
	ImagesFailed    *prometheus.CounterVec

	ArticlesPersisted   *prometheus.CounterVec
	PersistReplays      prometheus.Counter
	PersistDuration     prometheus.Histogram
	GraphSyncs          *prometheus.CounterVec
	OutboxPublished     prometheus.Counter
	OutboxFailed        prometheus.Counter
	OutboxBatchSize     prometheus.Histogram
	IntakeMessages      *prometheus.CounterVec
	TemporalRPCDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of pipeline runs started",
		}),
		RunsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Total number of pipeline runs that reached a terminal status",
		}, []string{"status", "error_kind"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end duration of pipeline runs in seconds",
			Buckets:   []float64{30, 60, 120, 300, 600, 900, 1200, 1800, 2700},
		}, []string{"status"}),

		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stage activities in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),

		ResearchRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "research_requests_total",
			Help:      "Total number of research API requests by provider and outcome",
		}, []string{"provider", "outcome"}),
		ResearchRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "research_request_duration_seconds",
			Help:      "Duration of research API requests in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider"}),
		SourcesFound: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_found_total",
			Help:      "Total number of research sources returned by provider",
		}, []string{"provider"}),
		RateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of rate-limited responses from external APIs",
		}, []string{"provider"}),

		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests by operation and model",
		}, []string{"operation", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM requests",
		}, []string{"operation", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM requests in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"operation", "model"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of LLM tokens used by direction",
		}, []string{"operation", "model", "direction"}),
		LLMParseRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_parse_retries_total",
			Help:      "Total number of strict re-prompts after malformed LLM output",
		}, []string{"operation"}),

		QualityScores: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quality_score",
			Help:      "Distribution of draft quality scores",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),
		QualityGateOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_gate_outcomes_total",
			Help:      "Total number of quality gate decisions by outcome",
		}, []string{"outcome"}),

		ImagesGenerated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_generated_total",
			Help:      "Total number of images generated by role",
		}, []string{"role"}),
		ImagesFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_failed_total",
			Help:      "Total number of failed image generation attempts",
		}, []string{"role", "error_type"}),

		ArticlesPersisted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_persisted_total",
			Help:      "Total number of articles written by publication status",
		}, []string{"status"}),
		PersistReplays: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_replays_total",
			Help:      "Total number of persistence calls that matched an existing idempotency key",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "persist_duration_seconds",
			Help:      "Duration of article persistence transactions in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		GraphSyncs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_syncs_total",
			Help:      "Total number of knowledge-graph sync attempts by outcome",
		}, []string{"outcome"}),
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Total number of outbox events delivered to Kafka",
		}),
		OutboxFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_failed_total",
			Help:      "Total number of failed outbox deliveries",
		}),
		OutboxBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_batch_size",
			Help:      "Number of events claimed per relay poll",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
		}),
		IntakeMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_messages_total",
			Help:      "Total number of article request messages consumed by outcome",
		}, []string{"outcome"}),
		TemporalRPCDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "temporal_rpc_duration_seconds",
			Help:      "Duration of Temporal frontend RPCs in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30},
		}, []string{"method", "code"}),
	}
}

// RecordRunStarted records that a pipeline run has started.
func (m *Metrics) RecordRunStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
}

// RecordRunFinished records a terminal run status.
func (m *Metrics) RecordRunFinished(status, errorKind string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunsFinished.WithLabelValues(status, errorKind).Inc()
	if durationSeconds > 0 {
		m.RunDuration.WithLabelValues(status).Observe(durationSeconds)
	}
}

// RecordStage records the duration of a stage activity.
func (m *Metrics) RecordStage(stage string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordResearchRequest records a research API request and the sources it returned.
func (m *Metrics) RecordResearchRequest(provider string, sources int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ResearchRequests.WithLabelValues(provider, "success").Inc()
	m.ResearchRequestDuration.WithLabelValues(provider).Observe(durationSeconds)
	m.SourcesFound.WithLabelValues(provider).Add(float64(sources))
}

// RecordResearchRequestFailed records a failed research API request.
func (m *Metrics) RecordResearchRequestFailed(provider, errorType string) {
	if m == nil {
		return
	}
	m.ResearchRequests.WithLabelValues(provider, errorType).Inc()
}

// RecordRateLimited records a rate-limited response from an external API.
func (m *Metrics) RecordRateLimited(provider string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(provider).Inc()
}

// RecordLLMRequest records a successful LLM call with its token usage.
func (m *Metrics) RecordLLMRequest(operation, model string, durationSeconds float64, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(operation, model).Inc()
	m.LLMRequestDuration.WithLabelValues(operation, model).Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(operation, model, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(operation, model, "output").Add(float64(outputTokens))
}

// RecordLLMRequestFailed records a failed LLM call.
func (m *Metrics) RecordLLMRequestFailed(operation, model, errorType string) {
	if m == nil {
		return
	}
	m.LLMRequestsFailed.WithLabelValues(operation, model, errorType).Inc()
}

// RecordLLMParseRetry records a strict re-prompt after malformed output.
func (m *Metrics) RecordLLMParseRetry(operation string) {
	if m == nil {
		return
	}
	m.LLMParseRetries.WithLabelValues(operation).Inc()
}

// RecordQualityGate records a quality gate decision.
func (m *Metrics) RecordQualityGate(outcome string, score float64) {
	if m == nil {
		return
	}
	m.QualityGateOutcomes.WithLabelValues(outcome).Inc()
	m.QualityScores.Observe(score)
}

// RecordImageGenerated records a generated image.
func (m *Metrics) RecordImageGenerated(role string) {
	if m == nil {
		return
	}
	m.ImagesGenerated.WithLabelValues(roleLabel(role)).Inc()
}

// RecordImageFailed records a failed image generation attempt.
func (m *Metrics) RecordImageFailed(role, errorType string) {
	if m == nil {
		return
	}
	m.ImagesFailed.WithLabelValues(roleLabel(role), errorType).Inc()
}

// RecordArticlePersisted records a persistence call. replay is true when the
// idempotency key already existed.
func (m *Metrics) RecordArticlePersisted(status string, replay bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ArticlesPersisted.WithLabelValues(status).Inc()
	if replay {
		m.PersistReplays.Inc()
	}
	m.PersistDuration.Observe(durationSeconds)
}

// RecordGraphSync records a knowledge-graph sync outcome (synced, skipped, failed).
func (m *Metrics) RecordGraphSync(outcome string) {
	if m == nil {
		return
	}
	m.GraphSyncs.WithLabelValues(outcome).Inc()
}

// RecordOutboxBatch records one relay poll.
func (m *Metrics) RecordOutboxBatch(claimed, published, failed int) {
	if m == nil {
		return
	}
	m.OutboxBatchSize.Observe(float64(claimed))
	m.OutboxPublished.Add(float64(published))
	m.OutboxFailed.Add(float64(failed))
}

// RecordIntakeMessage records the outcome of a consumed article request.
func (m *Metrics) RecordIntakeMessage(outcome string) {
	if m == nil {
		return
	}
	m.IntakeMessages.WithLabelValues(outcome).Inc()
}

// RecordTemporalRPC records a Temporal frontend RPC.
func (m *Metrics) RecordTemporalRPC(method, code string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TemporalRPCDuration.WithLabelValues(method, code).Observe(durationSeconds)
}

// roleLabel collapses content-N roles into one label value to bound cardinality.
func roleLabel(role string) string {
	if len(role) > len("content-") && role[:len("content-")] == "content-" {
		return "content"
	}
	return role
}
