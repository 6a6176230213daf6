// Package outbox publishes content pipeline events through the transactional
// outbox pattern.
//
// # Components
//
//   - Emitter: builds domain.OutboxEvent values enriched with service metadata
//   - Publisher: inserts events outside a transaction (PublishEvent activity)
//   - Relay: polls pending rows and writes them to Kafka
//
// Events that must be atomic with an article write (article.persisted,
// article.rejected) are passed to ArticleRepository.UpsertByIdempotencyKey,
// which inserts them in the same transaction. Run lifecycle events go through
// the Publisher.
//
// # Event Types
//
//   - article.requested: consumed by the intake listener
//   - article.persisted: an article was stored as published or pending review
//   - article.rejected: a draft failed the quality gate and was stored for review
//   - pipeline.run_completed / pipeline.run_failed / pipeline.run_cancelled
//
// # Delivery
//
// Only one worker relays at a time. The Relay takes a PostgreSQL advisory lock
// before each poll and keeps it until shutdown. Messages are keyed by aggregate
// ID so all events for an article land on the same partition.
package outbox
