// Package intake consumes article requests from Kafka and starts a pipeline
// run for each of them.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/newsroom/content-pipeline/internal/domain"
	"github.com/newsroom/content-pipeline/internal/observability"
	litemporal "github.com/newsroom/content-pipeline/internal/temporal"
)

// Outcomes recorded per consumed message.
const (
	OutcomeStarted   = "started"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

const (
	defaultStartAttempts = 3
	defaultRetryDelay    = time.Second
	defaultFetchBackoff  = 500 * time.Millisecond
	maxFetchBackoff      = 30 * time.Second
)

// messageNamespace derives workflow IDs for messages published without a key.
var messageNamespace = uuid.MustParse("6c1f7a0e-2d43-4b8e-9f51-3a7d0c9e2b18")

// Starter starts a pipeline run under a caller-chosen workflow ID.
type Starter interface {
	StartWorkflowWithID(ctx context.Context, workflowID string, req domain.WorkflowRequest) (string, error)
}

// MessageReader is the subset of *kafka.Reader the listener uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds configuration for the intake listener.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string

	// StartAttempts bounds how often a transient start failure is retried
	// before the message is committed as failed. Defaults to 3.
	StartAttempts int

	// RetryDelay is the delay before the first retry; it doubles per attempt.
	RetryDelay time.Duration

	// FetchBackoff is the pause after a failed fetch. It doubles on each
	// consecutive failure up to 30s and resets once a fetch succeeds.
	FetchBackoff time.Duration
}

// Listener turns article.requested messages into pipeline runs. The workflow
// ID is derived from the message key, so a redelivered message finds its run
// already started instead of creating a second one.
type Listener struct {
	reader        MessageReader
	starter       Starter
	metrics       *observability.Metrics
	logger        zerolog.Logger
	startAttempts int
	retryDelay    time.Duration
	fetchBackoff  time.Duration
}

// NewReader builds the consumer-group reader for cfg.
func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  3 * time.Second,
	})
}

// NewListener creates a listener reading from reader.
func NewListener(cfg Config, reader MessageReader, starter Starter, metrics *observability.Metrics, logger zerolog.Logger) *Listener {
	l := &Listener{
		reader:        reader,
		starter:       starter,
		metrics:       metrics,
		logger:        logger.With().Str("component", "intake_listener").Logger(),
		startAttempts: cfg.StartAttempts,
		retryDelay:    cfg.RetryDelay,
		fetchBackoff:  cfg.FetchBackoff,
	}
	if l.startAttempts <= 0 {
		l.startAttempts = defaultStartAttempts
	}
	if l.retryDelay <= 0 {
		l.retryDelay = defaultRetryDelay
	}
	if l.fetchBackoff <= 0 {
		l.fetchBackoff = defaultFetchBackoff
	}
	return l
}

// Run consumes messages until ctx is cancelled. Each message is committed
// once it has been handled, whatever the outcome.
func (l *Listener) Run(ctx context.Context) error {
	l.logger.Info().Msg("starting intake listener")

	backoff := l.fetchBackoff
	for {
		msg, err := l.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info().Msg("intake listener stopped")
				return ctx.Err()
			}
			l.logger.Error().Err(err).Dur("retry_in", backoff).Msg("failed to fetch message from Kafka")
			select {
			case <-ctx.Done():
				l.logger.Info().Msg("intake listener stopped")
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxFetchBackoff)
			continue
		}
		backoff = l.fetchBackoff

		outcome := l.handle(ctx, msg)
		l.metrics.RecordIntakeMessage(outcome)

		if ctx.Err() != nil {
			// Leave the offset uncommitted so the message is redelivered.
			return ctx.Err()
		}
		if err := l.reader.CommitMessages(ctx, msg); err != nil {
			l.logger.Error().Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("failed to commit message")
		}
	}
}

// handle starts the run requested by msg and returns the outcome.
func (l *Listener) handle(ctx context.Context, msg kafka.Message) string {
	logger := l.logger.With().
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	var payload domain.ArticleRequestedPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		logger.Error().Err(err).Str("raw_value", string(msg.Value)).Msg("failed to unmarshal article request")
		return OutcomeInvalid
	}

	workflowID := WorkflowID(msg)
	logger = logger.With().Str("workflow_id", workflowID).Str("app", payload.App).Logger()

	delay := l.retryDelay
	for attempt := 1; ; attempt++ {
		_, err := l.starter.StartWorkflowWithID(ctx, workflowID, payload.ToRequest())
		switch {
		case err == nil:
			logger.Info().Str("topic", payload.Topic).Msg("started pipeline run")
			return OutcomeStarted
		case litemporal.IsWorkflowAlreadyStarted(err):
			logger.Info().Msg("pipeline run already started for message")
			return OutcomeDuplicate
		case isInvalidRequest(err):
			logger.Warn().Err(err).Msg("rejected invalid article request")
			return OutcomeInvalid
		case attempt >= l.startAttempts:
			logger.Error().Err(err).Int("attempts", attempt).Msg("failed to start pipeline run")
			return OutcomeFailed
		}

		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("retrying pipeline start")
		select {
		case <-ctx.Done():
			return OutcomeFailed
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// WorkflowID derives the run's workflow ID from a message. Keyed messages
// use their key; unkeyed ones hash their topic, partition and offset.
func WorkflowID(msg kafka.Message) string {
	if key := strings.TrimSpace(string(msg.Key)); key != "" {
		return "article-" + key
	}
	name := fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	return "article-" + uuid.NewSHA1(messageNamespace, []byte(name)).String()
}

func isInvalidRequest(err error) bool {
	var verr *domain.ValidationError
	return errors.As(err, &verr) || errors.Is(err, domain.ErrUnknownApp)
}

// Close closes the Kafka reader.
func (l *Listener) Close() error {
	l.logger.Info().Msg("closing intake listener")
	return l.reader.Close()
}
