package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/storecast-backend/internal/config"
	"github.com/unclebandit/storecast-backend/internal/logger"
	"github.com/unclebandit/storecast-backend/internal/queue"
	"github.com/unclebandit/storecast-backend/internal/scheduler"
)

// The worker is only needed with SCHEDULER_DRIVER=amqp. It consumes due callbacks
// from RabbitMQ and POSTs them, signed, to the server's execute endpoint.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.CallbackSigningKey == "" {
		log.Fatal("CALLBACK_SIGNING_KEY is required")
	}

	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer appLogger.Sync()

	q, err := queue.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, appLogger)
	if err != nil {
		appLogger.Fatal("rabbitmq unavailable", zap.Error(err))
	}
	defer q.Close()

	msgs, err := q.Consume("broadcast-relay")
	if err != nil {
		appLogger.Fatal("failed to start consumer", zap.Error(err))
	}

	relay := &Relay{
		Queue:      q,
		Signer:     scheduler.NewSigner(cfg.CallbackSigningKey, 5*time.Minute),
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		MaxRetries: 3,
		Backoff:    30 * time.Second,
		Logger:     appLogger.With(zap.String("component", "relay")),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appLogger.Info("worker running, waiting for messages", zap.String("queue", cfg.AMQPQueue))
	for {
		select {
		case <-ctx.Done():
			appLogger.Info("shutting down")
			return
		case d, ok := <-msgs:
			if !ok {
				appLogger.Error("consumer channel closed")
				return
			}
			relay.Handle(ctx, d)
		}
	}
}
