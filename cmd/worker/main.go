package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wms-platform/cfs-destuffing-service/internal/config"
	mongoRepo "github.com/wms-platform/cfs-destuffing-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/cfs-destuffing-service/internal/workflows"
	"github.com/wms-platform/cfs-destuffing-service/pkg/cloudevents"
	"github.com/wms-platform/cfs-destuffing-service/pkg/kafka"
	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
	"github.com/wms-platform/cfs-destuffing-service/pkg/metrics"
	"github.com/wms-platform/cfs-destuffing-service/pkg/mongodb"
	"github.com/wms-platform/cfs-destuffing-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/cfs-destuffing-service/pkg/outbox/mongodb"
	"github.com/wms-platform/cfs-destuffing-service/pkg/temporal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig(config.ServiceName + "-worker")
	logConfig.Level = logging.LogLevel(cfg.LogLevel)
	logConfig.Environment = cfg.Environment
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting cfs-destuffing-service worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(metrics.DefaultConfig(config.ServiceName + "-worker"))

	mongoClient, err := mongodb.NewClient(ctx, cfg.MongoDBConfig())
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(context.Background())
	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)

	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceDestuffing)
	journal := mongoRepo.NewExecutionJournal(mongoClient, eventFactory).WithTopic(cfg.Kafka.DestuffingTopic)

	outboxRepo := outboxMongo.NewOutboxRepository(mongoClient.Database())
	if err := outboxRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to initialize outbox indexes")
	}

	producer := kafka.NewProducer(cfg.KafkaConfig(), m)
	defer producer.Close()

	publisher := outbox.NewPublisher(outboxRepo, producer, logger, m, outbox.DefaultPublisherConfig())
	if err := publisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer func() {
		_ = publisher.Stop()
	}()
	logger.Info("Outbox publisher started", "topic", cfg.Kafka.DestuffingTopic)

	temporalConfig := cfg.Temporal
	temporalConfig.Identity = config.ServiceName + "-worker"
	temporalClient, err := temporal.NewClient(ctx, &temporalConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", temporalConfig.HostPort)

	planActivities := workflows.NewPlanActivities(journal)

	w := temporalClient.NewWorker()
	w.RegisterWorkflow(workflows.PlanExecutionWorkflow)
	w.RegisterActivity(planActivities.RecordPlanCompleted)
	logger.Info("Registered workflow and activities", "workflow", temporal.WorkflowNames.PlanExecution)

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(nil)
	}()
	logger.Info("Worker started", "taskQueue", temporalConfig.TaskQueue)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		logger.Info("Shutting down worker...")
		w.Stop()
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Worker failed")
		}
	}
	cancel()

	logger.Info("Worker stopped")
}
