// Package outbox drains the durable outbox table to RabbitMQ, giving the
// integration events at-least-once delivery independent of the in-process
// fire-and-forget emitter.
package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/seat-reservation-engine/internal/adapters/crdb"
	"github.com/robertarktes/seat-reservation-engine/internal/adapters/rabbit"
	"github.com/robertarktes/seat-reservation-engine/internal/observability"
)

const (
	pollInterval = 5 * time.Second
	batchSize    = 10
)

type Publisher struct {
	store     *crdb.Store
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewPublisher(store *crdb.Store, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{store: store, rabbitPub: rabbitPub, logger: logger}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	records, err := p.store.UnpublishedOutbox(ctx, batchSize)
	if err != nil {
		p.logger.WithError(err).Error("failed to read outbox")
		return
	}
	for _, rec := range records {
		observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())

		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithError(err).WithField("outbox_id", rec.ID).Warn("failed to publish outbox record")
			continue
		}
		if err := p.store.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			p.logger.WithError(err).WithField("outbox_id", rec.ID).Error("failed to mark outbox record published")
		}
	}
}
