package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// RetryCountHeader counts redeliveries of one message by the relay.
const RetryCountHeader = "x-retry-count"

// AMQPQueue publishes to a RabbitMQ delayed-message exchange (rabbitmq_delayed_message_exchange
// plugin) bound to one durable queue, and consumes from that queue.
type AMQPQueue struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	mu       sync.Mutex // guards publishes on ch
	exchange string
	queue    string
	logger   *zap.Logger
}

func DialAMQP(url, exchange, queueName string, logger *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	q := &AMQPQueue{
		conn:     conn,
		ch:       ch,
		exchange: exchange,
		queue:    queueName,
		logger:   logger.With(zap.String("queue", queueName)),
	}
	if err := q.declare(); err != nil {
		q.Close()
		return nil, err
	}
	return q, nil
}

func (q *AMQPQueue) declare() error {
	err := q.ch.ExchangeDeclare(
		q.exchange,          // name
		"x-delayed-message", // kind
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		amqp.Table{"x-delayed-type": "direct"},
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", q.exchange, err)
	}

	_, err = q.ch.QueueDeclare(
		q.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", q.queue, err)
	}

	if err := q.ch.QueueBind(q.queue, q.queue, q.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", q.queue, err)
	}
	return nil
}

// PublishDelayed stores body in the exchange until delay has elapsed, then routes it to the queue.
func (q *AMQPQueue) PublishDelayed(body []byte, messageID string, delay time.Duration, headers amqp.Table) error {
	if delay < 0 {
		delay = 0
	}
	h := amqp.Table{"x-delay": delay.Milliseconds()}
	for k, v := range headers {
		h[k] = v
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.ch.Publish(q.exchange, q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now(),
		Headers:      h,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", messageID, err)
	}
	q.logger.Debug("message published", zap.String("message_id", messageID), zap.Duration("delay", delay))
	return nil
}

// Consume starts a manual-ack consumer that takes one message at a time.
func (q *AMQPQueue) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	if err := q.ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	msgs, err := q.ch.Consume(
		q.queue,
		consumerTag,
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}
	return msgs, nil
}

func (q *AMQPQueue) Close() error {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// RetryCount reads RetryCountHeader; AMQP tables may carry it as any integer width.
func RetryCount(headers amqp.Table) int {
	switch v := headers[RetryCountHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 0
}
