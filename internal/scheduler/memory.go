package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/storecast-backend/internal/queue"
)

const memoryTopic = "broadcast_due"

// CallbackFunc runs a due callback in-process.
type CallbackFunc func(ctx context.Context, messageID string, body []byte) error

type memoryDelivery struct {
	MessageID string
	Body      []byte
}

// MemoryPublisher schedules callbacks on an in-process queue and invokes the callback
// function directly instead of over HTTP. Registrations do not survive a restart.
type MemoryPublisher struct {
	q      queue.Queue
	logger *zap.Logger
	now    func() time.Time
}

func NewMemoryPublisher(q queue.Queue, callback CallbackFunc, logger *zap.Logger) (*MemoryPublisher, error) {
	p := &MemoryPublisher{q: q, logger: logger.With(zap.String("scheduler", "memory")), now: time.Now}
	err := q.Subscribe(memoryTopic, func(payload any) error {
		d, ok := payload.(memoryDelivery)
		if !ok {
			p.logger.Error("unexpected payload type", zap.String("type", fmt.Sprintf("%T", payload)))
			return nil // no retry
		}
		return callback(context.Background(), d.MessageID, d.Body)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *MemoryPublisher) Driver() string { return "memory" }

func (p *MemoryPublisher) Publish(ctx context.Context, req PublishRequest) (string, error) {
	id := uuid.NewString()
	delay := req.NotBefore.Sub(p.now())
	if err := p.q.PublishDelayed(memoryTopic, memoryDelivery{MessageID: id, Body: req.Body}, delay); err != nil {
		return "", err
	}
	p.logger.Info("callback registered", zap.String("message_id", id), zap.Duration("delay", delay))
	return id, nil
}

var _ Publisher = (*MemoryPublisher)(nil)
