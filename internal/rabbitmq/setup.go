package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"
)

// BillingExchange is the direct exchange all billing events go through.
const BillingExchange = "billing"

// Routing keys for billing events.
const (
	KeyPaymentSucceeded = "payment.succeeded"
	KeyTrialExpired     = "trial.expired"
	KeyCreditsLow       = "credits.low"
)

// QueueConfig binds one queue to one routing key on the billing exchange.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetBillingQueues lists the queues the notification service consumes.
func GetBillingQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "billing.payment-succeeded", RoutingKey: KeyPaymentSucceeded},
		{QueueName: "billing.trial-expired", RoutingKey: KeyTrialExpired},
		{QueueName: "billing.credits-low", RoutingKey: KeyCreditsLow},
	}
}

// SetupChannel opens a channel, declares the billing exchange and binds the
// given queues to it.
func SetupChannel(conn *amqp.Connection, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	err = ch.ExchangeDeclare(
		BillingExchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			q.QueueName,
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, q.QueueName, err)
		}

		err = ch.QueueBind(
			q.QueueName,
			q.RoutingKey,
			BillingExchange,
			false,
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, q.QueueName, q.RoutingKey, err)
		}
	}

	return ch, nil
}
