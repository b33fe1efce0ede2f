package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/unclebandit/storecast-backend/internal/metrics"
	"github.com/unclebandit/storecast-backend/internal/queue"
	"github.com/unclebandit/storecast-backend/internal/scheduler"
)

// Republisher puts a failed callback back on the delayed exchange.
type Republisher interface {
	PublishDelayed(body []byte, messageID string, delay time.Duration, headers amqp.Table) error
}

// Relay turns due AMQP messages into signed HTTP callbacks, the way QStash would.
type Relay struct {
	Queue      Republisher
	Signer     *scheduler.Signer
	HTTPClient *http.Client
	MaxRetries int
	Backoff    time.Duration
	Logger     *zap.Logger
}

// Handle delivers one message and always settles it: ack on success, on a
// permanent rejection or after the last retry; otherwise republish with backoff.
func (r *Relay) Handle(ctx context.Context, d amqp.Delivery) {
	log := r.Logger.With(zap.String("message_id", d.MessageId))

	var env scheduler.RelayEnvelope
	if err := json.Unmarshal(d.Body, &env); err != nil || env.CallbackURL == "" {
		log.Error("invalid relay envelope, dropping", zap.Error(err))
		metrics.RelayDeliveries.WithLabelValues("dropped").Inc()
		d.Ack(false)
		return
	}

	retries := queue.RetryCount(d.Headers)
	status, err := r.post(ctx, env, d.MessageId, retries)
	switch {
	case err == nil && status >= 200 && status < 300:
		log.Info("callback delivered", zap.Int("status", status), zap.Int("retries", retries))
		metrics.RelayDeliveries.WithLabelValues("delivered").Inc()
		d.Ack(false)
		return
	case err == nil && status >= 400 && status < 500 && status != http.StatusTooManyRequests:
		log.Error("callback rejected, dropping", zap.Int("status", status))
		metrics.RelayDeliveries.WithLabelValues("dropped").Inc()
		d.Ack(false)
		return
	}

	if retries >= r.MaxRetries {
		log.Error("callback failed, giving up", zap.Int("status", status), zap.Int("retries", retries), zap.Error(err))
		metrics.RelayDeliveries.WithLabelValues("gave_up").Inc()
		d.Ack(false)
		return
	}

	delay := r.Backoff * time.Duration(1<<retries)
	headers := amqp.Table{queue.RetryCountHeader: int32(retries + 1)}
	if perr := r.Queue.PublishDelayed(d.Body, d.MessageId, delay, headers); perr != nil {
		log.Error("failed to republish callback, requeueing", zap.Error(perr))
		d.Nack(false, true)
		return
	}
	log.Warn("callback failed, retry scheduled",
		zap.Int("status", status),
		zap.Int("attempt", retries+1),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	metrics.RelayDeliveries.WithLabelValues("retried").Inc()
	d.Ack(false)
}

func (r *Relay) post(ctx context.Context, env scheduler.RelayEnvelope, messageID string, retries int) (int, error) {
	sig, err := r.Signer.Sign(env.CallbackURL, env.Body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, env.CallbackURL, bytes.NewReader(env.Body))
	if err != nil {
		return 0, fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(scheduler.SignatureHeader, sig)
	req.Header.Set(scheduler.MessageIDHeader, messageID)
	req.Header.Set("Upstash-Retried", strconv.Itoa(retries))

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}
