package rabbit

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer binds a queue to reservation topics so external listeners
// (ticket rendering, mail) can subscribe to committed transitions.
type Consumer struct {
	ch    *amqp.Channel
	queue string
}

func NewConsumer(conn *amqp.Connection, queue string, topics ...string) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, err
	}
	for _, topic := range topics {
		if err := ch.QueueBind(queue, topic, exchange, false, nil); err != nil {
			return nil, err
		}
	}
	return &Consumer{ch: ch, queue: queue}, nil
}

func (c *Consumer) Consume() (<-chan amqp.Delivery, error) {
	return c.ch.Consume(c.queue, "", false, false, false, false, nil)
}
