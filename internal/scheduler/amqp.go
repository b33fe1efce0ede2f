package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// RelayEnvelope is what the AMQP driver parks in the delayed exchange; cmd/worker
// signs Body and POSTs it to CallbackURL once it is due.
type RelayEnvelope struct {
	CallbackURL string    `json:"callback_url"`
	Body        []byte    `json:"body"`
	NotBefore   time.Time `json:"not_before"`
}

// DelayedQueue is satisfied by queue.AMQPQueue.
type DelayedQueue interface {
	PublishDelayed(body []byte, messageID string, delay time.Duration, headers amqp.Table) error
}

type AMQPPublisher struct {
	q      DelayedQueue
	logger *zap.Logger
	now    func() time.Time
}

func NewAMQPPublisher(q DelayedQueue, logger *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{q: q, logger: logger.With(zap.String("scheduler", "amqp")), now: time.Now}
}

func (p *AMQPPublisher) Driver() string { return "amqp" }

func (p *AMQPPublisher) Publish(ctx context.Context, req PublishRequest) (string, error) {
	env, err := json.Marshal(RelayEnvelope{CallbackURL: req.CallbackURL, Body: req.Body, NotBefore: req.NotBefore})
	if err != nil {
		return "", fmt.Errorf("encode relay envelope: %w", err)
	}

	id := uuid.NewString()
	delay := req.NotBefore.Sub(p.now())
	if err := p.q.PublishDelayed(env, id, delay, nil); err != nil {
		return "", err
	}
	p.logger.Info("callback registered", zap.String("message_id", id), zap.Duration("delay", delay))
	return id, nil
}

var _ Publisher = (*AMQPPublisher)(nil)
