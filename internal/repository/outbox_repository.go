package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/newsroom/content-pipeline/internal/domain"
)

// Outbox row states.
const (
	OutboxStatusPending   = "pending"
	OutboxStatusPublished = "published"
	OutboxStatusFailed    = "failed"
)

// DefaultOutboxTable is the table created by the migrations.
const DefaultOutboxTable = "outbox_events"

// PendingEvent is an outbox row waiting for delivery.
type PendingEvent struct {
	domain.OutboxEvent
	Attempts int
}

// PgOutboxRepository reads and writes the transactional outbox table. The
// table name is configurable and quoted as an identifier.
type PgOutboxRepository struct {
	db    DBTX
	table string
}

// NewPgOutboxRepository creates an outbox repository over table. An empty
// table name selects DefaultOutboxTable.
func NewPgOutboxRepository(db DBTX, table string) *PgOutboxRepository {
	if table == "" {
		table = DefaultOutboxTable
	}
	return &PgOutboxRepository{db: db, table: pq.QuoteIdentifier(table)}
}

// WithTx returns a copy of the repository bound to tx.
func (r *PgOutboxRepository) WithTx(tx DBTX) *PgOutboxRepository {
	return &PgOutboxRepository{db: tx, table: r.table}
}

// Insert stores event as pending.
func (r *PgOutboxRepository) Insert(ctx context.Context, event *domain.OutboxEvent) error {
	if event == nil {
		return domain.NewValidationError("event", "event cannot be nil")
	}
	if event.EventID == "" || event.EventType == "" || event.AggregateID == "" {
		return domain.NewValidationError("event", "event_id, event_type and aggregate_id are required")
	}

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}
	if event.Metadata == nil {
		metadata = []byte("{}")
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			event_id, event_version, aggregate_id, aggregate_type, event_type,
			payload, metadata, status, created_at, next_attempt_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`, r.table)

	_, err = r.db.Exec(ctx, query,
		event.EventID, event.EventVersion, event.AggregateID, event.AggregateType, event.EventType,
		event.Payload, metadata, OutboxStatusPending, createdAt,
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return domain.NewAlreadyExistsError("outbox event", event.EventID)
		}
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// FetchPending returns up to limit pending events that are due, oldest first.
func (r *PgOutboxRepository) FetchPending(ctx context.Context, limit int) ([]PendingEvent, error) {
	query := fmt.Sprintf(`
		SELECT event_id, event_version, aggregate_id, aggregate_type, event_type,
			payload, metadata, created_at, attempts
		FROM %s
		WHERE status = $1 AND next_attempt_at <= NOW()
		ORDER BY created_at, event_id
		LIMIT $2`, r.table)

	rows, err := r.db.Query(ctx, query, OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox events: %w", err)
	}
	defer rows.Close()

	var events []PendingEvent
	for rows.Next() {
		var (
			ev       PendingEvent
			metadata []byte
		)
		if err := rows.Scan(
			&ev.EventID, &ev.EventVersion, &ev.AggregateID, &ev.AggregateType, &ev.EventType,
			&ev.Payload, &metadata, &ev.CreatedAt, &ev.Attempts,
		); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal outbox metadata: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return events, nil
}

// MarkPublished marks events as delivered.
func (r *PgOutboxRepository) MarkPublished(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, attempts = attempts + 1, published_at = NOW(), last_error = ''
		WHERE event_id = ANY($2)`, r.table)

	if _, err := r.db.Exec(ctx, query, OutboxStatusPublished, eventIDs); err != nil {
		return fmt.Errorf("mark outbox events published: %w", err)
	}
	return nil
}

// MarkFailed records a failed delivery. The event is retried after backoff
// until maxAttempts deliveries have failed, then parked as failed.
func (r *PgOutboxRepository) MarkFailed(ctx context.Context, eventID, lastError string, maxAttempts int, backoff time.Duration) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET attempts = attempts + 1,
			last_error = $2,
			next_attempt_at = NOW() + make_interval(secs => $3),
			status = CASE WHEN attempts + 1 >= $4 THEN $5 ELSE status END
		WHERE event_id = $1`, r.table)

	_, err := r.db.Exec(ctx, query, eventID, lastError, backoff.Seconds(), maxAttempts, OutboxStatusFailed)
	if err != nil {
		return fmt.Errorf("mark outbox event %s failed: %w", eventID, err)
	}
	return nil
}
