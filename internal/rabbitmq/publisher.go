package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"
)

// Publisher is the narrow interface the services publish events through.
// *amqp.Channel satisfies it via ChannelPublisher.
type Publisher interface {
	Publish(routingKey string, message any) error
}

// ChannelPublisher publishes billing events on an amqp channel.
type ChannelPublisher struct {
	Ch *amqp.Channel
}

// Publish marshals the message to JSON and publishes it persistently on the
// billing exchange.
func (p *ChannelPublisher) Publish(routingKey string, message any) error {
	const op = "rabbitmq.Publish"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.Ch.Publish(
		BillingExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
