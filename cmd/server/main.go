package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/storecast-backend/internal/cache"
	"github.com/unclebandit/storecast-backend/internal/config"
	"github.com/unclebandit/storecast-backend/internal/controller"
	"github.com/unclebandit/storecast-backend/internal/db"
	"github.com/unclebandit/storecast-backend/internal/handler"
	"github.com/unclebandit/storecast-backend/internal/line"
	"github.com/unclebandit/storecast-backend/internal/logger"
	"github.com/unclebandit/storecast-backend/internal/queue"
	"github.com/unclebandit/storecast-backend/internal/repository"
	"github.com/unclebandit/storecast-backend/internal/scheduler"
	"github.com/unclebandit/storecast-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		appLogger.Fatal("database unavailable", zap.Error(err))
	}
	defer conn.Close()
	appLogger.Info("connected to postgres")

	storeRepo := &repository.StoreRepository{DB: conn}
	templateRepo := &repository.TemplateRepository{DB: conn}
	mediaRepo := &repository.MediaRepository{DB: conn}
	mediaURLRepo := &repository.StoreMediaURLRepository{DB: conn}
	jobRepo := &repository.BroadcastJobRepository{DB: conn}
	deliveryRepo := &repository.DeliveryRepository{DB: conn}

	channels := line.NewFactory(cfg.LineAPIBaseURL, cfg.LineRatePerSec, nil, appLogger)

	broadcasts := &service.BroadcastService{
		Jobs:       jobRepo,
		Deliveries: deliveryRepo,
		Stores:     storeRepo,
		Templates:  templateRepo,
		MediaURLs:  mediaURLRepo,
		Orchestrator: &service.Orchestrator{
			Channels:   channels,
			MediaURLs:  mediaURLRepo,
			Deliveries: deliveryRepo,
			Jobs:       jobRepo,
			Logger:     appLogger,
		},
		Logger:     appLogger,
		TestUserID: cfg.LineTestUserID,
	}

	publisher, closePublisher, err := newPublisher(cfg, broadcasts, appLogger)
	if err != nil {
		appLogger.Fatal("scheduler unavailable", zap.String("driver", cfg.SchedulerDriver), zap.Error(err))
	}
	defer closePublisher()
	appLogger.Info("scheduler ready", zap.String("driver", publisher.Driver()))

	scheduling := &service.SchedulingService{
		Jobs:        jobRepo,
		Publisher:   publisher,
		CallbackURL: cfg.CallbackURL(),
		Logger:      appLogger,
	}

	catalog := &service.CatalogService{
		Stores:    storeRepo,
		Templates: templateRepo,
		Media:     mediaRepo,
		MediaURLs: mediaURLRepo,
		Logger:    appLogger,
	}

	var deduper controller.CallbackDeduper
	if cfg.RedisAddr != "" {
		client := cache.NewClient(cfg.RedisAddr, cfg.RedisPassword)
		defer client.Close()
		deduper = cache.NewCallbackDeduper(client, cfg.CallbackDedupeTTL)
		appLogger.Info("callback dedupe enabled", zap.String("redis", cfg.RedisAddr))
	}

	deps := routerDeps{
		Broadcasts:     controller.NewBroadcastController(broadcasts, scheduling, deduper, appLogger),
		Catalog:        handler.NewCatalogHandler(catalog, appLogger),
		Health:         &handler.HealthHandler{DB: conn, Stores: storeRepo, Logger: appLogger},
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         appLogger,
	}
	if cfg.CallbackSigningKey != "" {
		deps.Verifier = scheduler.NewVerifier(cfg.CallbackSigningKey, cfg.CallbackNextSigningKey, cfg.CallbackURL())
	} else {
		appLogger.Warn("no callback signing key, /api/broadcast/execute is disabled")
	}

	var sweeper *service.Sweeper
	if cfg.SweeperSchedule != "" {
		sweeper, err = service.NewSweeper(broadcasts, cfg.SweeperSchedule, cfg.SweeperStaleAfter, appLogger)
		if err != nil {
			appLogger.Fatal("invalid sweeper schedule", zap.Error(err))
		}
		sweeper.Start(ctx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("server running", zap.Int("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http shutdown failed", zap.Error(err))
	}
	if sweeper != nil {
		sweeper.Stop(shutdownCtx)
	}
}

// newPublisher builds the delayed-dispatch driver named in cfg. The returned func
// releases whatever the driver holds open.
func newPublisher(cfg *config.Config, broadcasts *service.BroadcastService, logger *zap.Logger) (scheduler.Publisher, func(), error) {
	switch cfg.SchedulerDriver {
	case config.DriverQStash:
		return scheduler.NewQStashPublisher(cfg.QStashURL, cfg.QStashToken, nil, logger), func() {}, nil

	case config.DriverAMQP:
		q, err := queue.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			return nil, nil, err
		}
		return scheduler.NewAMQPPublisher(q, logger), func() { q.Close() }, nil

	case config.DriverMemory:
		q := queue.NewInMemoryQueue(logger)
		p, err := scheduler.NewMemoryPublisher(q, runScheduledCallback(broadcasts, logger), logger)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown scheduler driver %q", cfg.SchedulerDriver)
}

// runScheduledCallback executes in-process deliveries from the memory driver.
func runScheduledCallback(broadcasts *service.BroadcastService, logger *zap.Logger) scheduler.CallbackFunc {
	return func(ctx context.Context, messageID string, body []byte) error {
		var p service.ExecutePayload
		if err := json.Unmarshal(body, &p); err != nil {
			logger.Error("dropping undecodable scheduled payload", zap.String("message_id", messageID), zap.Error(err))
			return nil
		}
		res, err := broadcasts.RunScheduled(ctx, p)
		if err != nil {
			return err
		}
		logger.Info("scheduled broadcast executed",
			zap.String("message_id", messageID),
			zap.String("job_id", res.JobID),
			zap.Bool("skipped", res.Skipped),
		)
		return nil
	}
}
