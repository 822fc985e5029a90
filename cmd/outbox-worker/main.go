// Command outbox-worker drains the transactional outbox and publishes each
// domain event to SQS.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/doorstepdoctor/doorstep-api/cmd/mainconfig"
	"github.com/doorstepdoctor/doorstep-api/internal/config"
	"github.com/doorstepdoctor/doorstep-api/internal/events"
	"github.com/doorstepdoctor/doorstep-api/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" || cfg.EventsQueueURL == "" {
		logger.Error("outbox worker requires DATABASE_URL and EVENTS_QUEUE_URL")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	publisher := events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.EventsQueueURL)

	deliverer := events.NewDeliverer(events.NewOutboxStore(pool), publisher, logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval)

	logger.Info("outbox worker started",
		"queue_url", cfg.EventsQueueURL,
		"interval", cfg.OutboxPollInterval.String(),
		"batch_size", cfg.OutboxBatchSize,
	)
	deliverer.Start(ctx)
	logger.Info("outbox worker shutting down")
}
