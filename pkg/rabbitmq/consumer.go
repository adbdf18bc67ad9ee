package rabbitmq

import (
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer delivers messages from one durable queue to handlers keyed by routing key.
type Consumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

func NewConsumer(amqpURL string, logger *slog.Logger) (*Consumer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, ch: ch, logger: logger.With("component", "rabbitmq_consumer")}, nil
}

// ConsumeWithBindings binds queueName to exchange for every routing key in bindings
// and dispatches deliveries in a background goroutine. A handler returning true
// acknowledges the message; false re-queues it.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]func([]byte) bool) error {
	if len(bindings) == 0 {
		return fmt.Errorf("no bindings provided")
	}

	if err := c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	handlers := make(map[string]func([]byte) bool)
	for routingKey, handler := range bindings {
		if handler == nil {
			continue
		}
		handlers[routingKey] = handler
		if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			settle(c.logger, handlers, d.RoutingKey, d.Body, d)
		}
	}()

	return nil
}

// settler is the subset of amqp.Delivery used to finish a message.
type settler interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(logger *slog.Logger, handlers map[string]func([]byte) bool, routingKey string, body []byte, ack settler) {
	handler, ok := handlers[routingKey]
	if !ok {
		logger.Warn("no handler for routing key; acknowledging to drop", "routing_key", routingKey)
		ack.Ack(false)
		return
	}
	if handler(body) {
		ack.Ack(false)
		return
	}
	logger.Warn("handler failed; re-queuing", "routing_key", routingKey)
	ack.Nack(false, true)
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
