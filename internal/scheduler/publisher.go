package scheduler

import (
	"context"
	"time"
)

// PublishRequest registers one delayed callback.
type PublishRequest struct {
	CallbackURL string
	Body        []byte
	NotBefore   time.Time
	// DeduplicationID lets the scheduler drop a repeated registration for the same job.
	DeduplicationID string
}

// Publisher is a delayed-dispatch scheduler: it guarantees the callback is invoked
// at or after NotBefore, at least once, with a signed request.
type Publisher interface {
	Publish(ctx context.Context, req PublishRequest) (messageID string, err error)
	Driver() string
}
