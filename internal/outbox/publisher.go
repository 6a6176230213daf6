package outbox

import (
	"context"
	"fmt"

	"github.com/newsroom/content-pipeline/internal/domain"
)

// Inserter stores a single outbox event.
type Inserter interface {
	Insert(ctx context.Context, event *domain.OutboxEvent) error
}

// Publisher combines an Emitter with an Inserter for events that are not
// tied to another write.
type Publisher struct {
	emitter *Emitter
	store   Inserter
}

// NewPublisher creates a Publisher.
func NewPublisher(emitter *Emitter, store Inserter) *Publisher {
	return &Publisher{emitter: emitter, store: store}
}

// PublishNonTx emits an event and inserts it outside any transaction.
func (p *Publisher) PublishNonTx(ctx context.Context, params EmitParams) error {
	event, err := p.emitter.Emit(params)
	if err != nil {
		return fmt.Errorf("emit event: %w", err)
	}
	if err := p.store.Insert(ctx, event); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Emitter returns the underlying Emitter.
func (p *Publisher) Emitter() *Emitter {
	return p.emitter
}
