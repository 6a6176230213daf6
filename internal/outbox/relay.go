package outbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/newsroom/content-pipeline/internal/config"
	"github.com/newsroom/content-pipeline/internal/observability"
	"github.com/newsroom/content-pipeline/internal/repository"
)

// Kafka header keys set on relayed messages.
const (
	HeaderEventID       = "event_id"
	HeaderEventType     = "event_type"
	HeaderEventVersion  = "event_version"
	HeaderAggregateType = "aggregate_type"
)

// Store is the outbox table as seen by the Relay.
type Store interface {
	FetchPending(ctx context.Context, limit int) ([]repository.PendingEvent, error)
	MarkPublished(ctx context.Context, eventIDs []string) error
	MarkFailed(ctx context.Context, eventID, lastError string, maxAttempts int, backoff time.Duration) error
}

// MessageWriter is the subset of *kafka.Writer used by the Relay.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Lock is a held leadership lock.
type Lock interface {
	Release(ctx context.Context) error
}

// LockFunc tries to take leadership. It returns a nil Lock and a nil error
// when another process is relaying.
type LockFunc func(ctx context.Context) (Lock, error)

// RelayConfig tunes the polling loop.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	// RetryBackoff is the delay before a failed event is due again.
	RetryBackoff time.Duration
}

// RelayConfigFrom builds a RelayConfig from the outbox settings.
func RelayConfigFrom(cfg config.OutboxConfig) RelayConfig {
	return RelayConfig{
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxRetries,
	}
}

// Relay forwards pending outbox events to Kafka.
type Relay struct {
	store   Store
	writer  MessageWriter
	lock    LockFunc
	cfg     RelayConfig
	metrics *observability.Metrics
	logger  zerolog.Logger

	held Lock
}

// NewKafkaWriter creates the writer used by the Relay. Messages are hashed by
// key onto partitions.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}
	if w.BatchTimeout <= 0 {
		w.BatchTimeout = 50 * time.Millisecond
	}
	return w
}

// NewRelay creates a Relay. A nil lock relays unconditionally.
func NewRelay(store Store, writer MessageWriter, lock LockFunc, cfg RelayConfig, metrics *observability.Metrics, logger zerolog.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 30 * time.Second
	}
	return &Relay{
		store:   store,
		writer:  writer,
		lock:    lock,
		cfg:     cfg,
		metrics: metrics,
		logger:  observability.WithComponent(logger, "outbox_relay"),
	}
}

// Run polls until ctx is cancelled, then releases leadership and closes the
// writer.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info().Dur("poll_interval", r.cfg.PollInterval).Msg("starting outbox relay")

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	defer r.shutdown()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("outbox relay stopped via context cancellation")
			return ctx.Err()
		case <-ticker.C:
		}

		leader, err := r.ensureLeader(ctx)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to acquire outbox relay lock")
			continue
		}
		if !leader {
			continue
		}

		if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error().Err(err).Msg("outbox relay poll failed")
		}
	}
}

// RelayOnce delivers one batch and returns the number of events published.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	events, err := r.store.FetchPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, len(events))
	for i, ev := range events {
		msgs[i] = toMessage(ev)
	}

	writeErrs := make([]error, len(events))
	if err := r.writer.WriteMessages(ctx, msgs...); err != nil {
		var perMessage kafka.WriteErrors
		if errors.As(err, &perMessage) && len(perMessage) == len(events) {
			copy(writeErrs, perMessage)
		} else {
			for i := range writeErrs {
				writeErrs[i] = err
			}
		}
	}

	var published []string
	failed := 0
	for i, ev := range events {
		if writeErrs[i] == nil {
			published = append(published, ev.EventID)
			continue
		}
		failed++
		r.logger.Warn().Err(writeErrs[i]).
			Str("event_id", ev.EventID).
			Str("event_type", ev.EventType).
			Int("attempts", ev.Attempts+1).
			Msg("failed to relay outbox event")
		if err := r.store.MarkFailed(ctx, ev.EventID, writeErrs[i].Error(), r.cfg.MaxAttempts, r.cfg.RetryBackoff); err != nil {
			r.logger.Error().Err(err).Str("event_id", ev.EventID).Msg("failed to record outbox delivery failure")
		}
	}

	if err := r.store.MarkPublished(ctx, published); err != nil {
		return 0, fmt.Errorf("mark published: %w", err)
	}

	r.metrics.RecordOutboxBatch(len(events), len(published), failed)
	r.logger.Debug().
		Int("claimed", len(events)).
		Int("published", len(published)).
		Int("failed", failed).
		Msg("relayed outbox batch")

	return len(published), nil
}

func (r *Relay) ensureLeader(ctx context.Context) (bool, error) {
	if r.lock == nil || r.held != nil {
		return true, nil
	}
	l, err := r.lock(ctx)
	if err != nil {
		return false, err
	}
	if l == nil {
		return false, nil
	}
	r.held = l
	r.logger.Info().Msg("acquired outbox relay leadership")
	return true, nil
}

func (r *Relay) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if r.held != nil {
		if err := r.held.Release(ctx); err != nil {
			r.logger.Error().Err(err).Msg("failed to release outbox relay lock")
		}
		r.held = nil
	}
	if err := r.writer.Close(); err != nil {
		r.logger.Error().Err(err).Msg("failed to close kafka writer")
	}
}

func toMessage(ev repository.PendingEvent) kafka.Message {
	headers := []kafka.Header{
		{Key: HeaderEventID, Value: []byte(ev.EventID)},
		{Key: HeaderEventType, Value: []byte(ev.EventType)},
		{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(ev.EventVersion))},
		{Key: HeaderAggregateType, Value: []byte(ev.AggregateType)},
	}
	keys := make([]string, 0, len(ev.Metadata))
	for k := range ev.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(ev.Metadata[k])})
	}

	return kafka.Message{
		Key:     []byte(ev.AggregateID),
		Value:   ev.Payload,
		Headers: headers,
		Time:    ev.CreatedAt,
	}
}
