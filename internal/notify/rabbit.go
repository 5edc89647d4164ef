package notify

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/seat-reservation-engine/internal/adapters/rabbit"
	"github.com/robertarktes/seat-reservation-engine/internal/observability"
)

const publishTimeout = 5 * time.Second

// RabbitEmitter publishes transition events to the topic exchange. Emit
// detaches from the caller's context so a slow broker cannot hold up the
// transition that already committed.
type RabbitEmitter struct {
	pub    *rabbit.Publisher
	logger observability.Logger
}

func NewRabbitEmitter(pub *rabbit.Publisher, logger observability.Logger) *RabbitEmitter {
	return &RabbitEmitter{pub: pub, logger: logger}
}

func (e *RabbitEmitter) Emit(_ context.Context, ev Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		msg := amqp.Publishing{
			MessageId:   ev.ID.String(),
			ContentType: "application/json",
			Body:        ev.Payload(),
		}
		if err := e.pub.Publish(ctx, ev.Topic, msg); err != nil {
			e.logger.WithError(err).WithField("topic", ev.Topic).Error("failed to publish notification")
		}
	}()
}
