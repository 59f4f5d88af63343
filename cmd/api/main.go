package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/cfs-destuffing-service/internal/api/handlers"
	apispec "github.com/wms-platform/cfs-destuffing-service/internal/api/openapi"
	"github.com/wms-platform/cfs-destuffing-service/internal/application"
	"github.com/wms-platform/cfs-destuffing-service/internal/config"
	"github.com/wms-platform/cfs-destuffing-service/internal/domain"
	"github.com/wms-platform/cfs-destuffing-service/internal/infrastructure/clients"
	eventconsumer "github.com/wms-platform/cfs-destuffing-service/internal/infrastructure/kafka"
	mongoRepo "github.com/wms-platform/cfs-destuffing-service/internal/infrastructure/mongodb"
	temporalinfra "github.com/wms-platform/cfs-destuffing-service/internal/infrastructure/temporal"
	"github.com/wms-platform/cfs-destuffing-service/pkg/cloudevents"
	"github.com/wms-platform/cfs-destuffing-service/pkg/contracts/eventschema"
	"github.com/wms-platform/cfs-destuffing-service/pkg/contracts/openapi"
	"github.com/wms-platform/cfs-destuffing-service/pkg/idempotency"
	"github.com/wms-platform/cfs-destuffing-service/pkg/kafka"
	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
	"github.com/wms-platform/cfs-destuffing-service/pkg/metrics"
	"github.com/wms-platform/cfs-destuffing-service/pkg/middleware"
	"github.com/wms-platform/cfs-destuffing-service/pkg/mongodb"
	"github.com/wms-platform/cfs-destuffing-service/pkg/permission"
	platformtemporal "github.com/wms-platform/cfs-destuffing-service/pkg/temporal"
	"github.com/wms-platform/cfs-destuffing-service/pkg/tracing"
)

func main() {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := run(context.Background(), cfg, appDependencies{}, signalCh); err != nil {
		os.Exit(1)
	}
}

type tracerProvider interface {
	Shutdown(ctx context.Context) error
}

type workflowClient interface {
	temporalinfra.WorkflowSignaler
	Close()
}

type eventConsumer interface {
	eventconsumer.Subscriber
	Start(ctx context.Context) error
	Close() error
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type appDependencies struct {
	initTracing       func(ctx context.Context, cfg *tracing.Config) (tracerProvider, error)
	newMongoClient    func(ctx context.Context, cfg *mongodb.Config) (*mongodb.Client, error)
	newTemporalClient func(ctx context.Context, cfg *platformtemporal.Config) (workflowClient, error)
	newConsumer       func(cfg *kafka.Config, logger *logging.Logger, m *metrics.Metrics) eventConsumer
	newHTTPServer     func(addr string, handler http.Handler) httpServer
}

func defaultDependencies() appDependencies {
	return appDependencies{
		initTracing: func(ctx context.Context, cfg *tracing.Config) (tracerProvider, error) {
			return tracing.Initialize(ctx, cfg)
		},
		newMongoClient: mongodb.NewClient,
		newTemporalClient: func(ctx context.Context, cfg *platformtemporal.Config) (workflowClient, error) {
			return platformtemporal.NewClient(ctx, cfg)
		},
		newConsumer: func(cfg *kafka.Config, logger *logging.Logger, m *metrics.Metrics) eventConsumer {
			return kafka.NewConsumer(cfg, logger, m)
		},
		newHTTPServer: func(addr string, handler http.Handler) httpServer {
			// no WriteTimeout: container event streams stay open
			return &http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				IdleTimeout:       120 * time.Second,
			}
		},
	}
}

func (d appDependencies) withDefaults() appDependencies {
	def := defaultDependencies()
	if d.initTracing == nil {
		d.initTracing = def.initTracing
	}
	if d.newMongoClient == nil {
		d.newMongoClient = def.newMongoClient
	}
	if d.newTemporalClient == nil {
		d.newTemporalClient = def.newTemporalClient
	}
	if d.newConsumer == nil {
		d.newConsumer = def.newConsumer
	}
	if d.newHTTPServer == nil {
		d.newHTTPServer = def.newHTTPServer
	}
	return d
}

func run(ctx context.Context, cfg *config.Config, deps appDependencies, signalCh <-chan os.Signal) error {
	deps = deps.withDefaults()
	if cfg == nil {
		cfg = config.Default()
	}

	logConfig := logging.DefaultConfig(config.ServiceName)
	logConfig.Level = logging.LogLevel(cfg.LogLevel)
	logConfig.Environment = cfg.Environment
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting cfs-destuffing-service API")

	tracingConfig := tracing.DefaultConfig(config.ServiceName)
	tracingConfig.OTLPEndpoint = cfg.Tracing.OTLPEndpoint
	tracingConfig.Environment = cfg.Environment
	tracingConfig.Enabled = cfg.Tracing.Enabled

	tp, err := deps.initTracing(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint, "enabled", tracingConfig.Enabled)
	}

	m := metrics.New(metrics.DefaultConfig(config.ServiceName))

	mongoClient, err := deps.newMongoClient(ctx, cfg.MongoDBConfig())
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	defer mongoClient.Close(context.Background())
	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)

	idempotencyStore := idempotency.NewMongoStore(mongoClient.Database())
	if err := idempotencyStore.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to initialize idempotency indexes")
	}

	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceDestuffing)
	journal := mongoRepo.NewExecutionJournal(mongoClient, eventFactory).WithTopic(cfg.Kafka.DestuffingTopic)
	if err := journal.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Warn("Failed to initialize plan container indexes")
	}

	cfsClient := clients.NewCFSClient(cfg.CFSClientConfig(), logger.Logger, m)
	inspectionClient := clients.NewInspectionClient(cfg.InspectionClientConfig(), logger.Logger, m)

	var notifier domain.PlanCompletionNotifier
	temporalConfig := cfg.Temporal
	temporalClient, err := deps.newTemporalClient(ctx, &temporalConfig)
	if err != nil {
		logger.WithError(err).Warn("Temporal unavailable, plan completion will not be signaled")
	} else {
		defer temporalClient.Close()
		notifier = temporalinfra.NewPlanNotifier(temporalClient, cfsClient, logger)
		logger.Info("Connected to Temporal", "hostPort", temporalConfig.HostPort)
	}

	coordinatorConfig := application.DefaultConfig()
	coordinatorConfig.CacheTTL = cfg.CacheTTL
	coordinatorConfig.CallTimeout = cfg.CallTimeout
	coordinator := application.NewDestuffingCoordinator(application.Dependencies{
		Backend:     cfsClient,
		Inspection:  inspectionClient,
		Permissions: permission.NewChecker(),
		Journal:     journal,
		Notifier:    notifier,
	}, coordinatorConfig, logger, m)

	schemas, err := eventschema.NewValidator()
	if err != nil {
		return fmt.Errorf("failed to load event schemas: %w", err)
	}
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	consumer := deps.newConsumer(cfg.KafkaConfig(), logger, m)
	eventconsumer.NewInspectionEventHandler(coordinator, schemas, logger, cfg.Kafka.InspectionTopic).Register(consumer)
	go func() {
		if err := consumer.Start(consumerCtx); err != nil && consumerCtx.Err() == nil {
			logger.WithError(err).Error("Inspection event consumer stopped")
		}
	}()
	defer consumer.Close()
	logger.Info("Inspection event consumer started", "topic", cfg.Kafka.InspectionTopic)

	var contract *openapi.Validator
	if cfg.Features.OpenAPIValidation {
		contract, err = openapi.NewValidatorFromBytes(apispec.Spec)
		if err != nil {
			return fmt.Errorf("failed to load API contract: %w", err)
		}
	}

	router := newRouter(routerDeps{
		service:          coordinator,
		logger:           logger,
		metrics:          m,
		idempotencyStore: idempotencyStore,
		requireKey:       cfg.Features.RequireIdempotencyKey,
		contract:         contract,
		ready: func() error {
			return mongoClient.HealthCheck(ctx)
		},
	})

	srv := deps.newHTTPServer(cfg.ServerAddr, router)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", cfg.ServerAddr)

	if signalCh == nil {
		signalCh = make(chan os.Signal, 1)
	}
	select {
	case <-signalCh:
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")

	stopConsumer()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
	return nil
}

type routerDeps struct {
	service          handlers.DestuffingService
	logger           *logging.Logger
	metrics          *metrics.Metrics
	idempotencyStore idempotency.Store
	requireKey       bool
	contract         *openapi.Validator
	ready            func() error
}

func newRouter(d routerDeps) *gin.Engine {
	router := gin.New()

	middleware.Setup(router, middleware.DefaultConfig(config.ServiceName, d.logger.Logger))
	router.Use(middleware.MetricsMiddleware(d.metrics))
	router.Use(middleware.Tracing(config.ServiceName))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(config.ServiceName))
	router.GET("/ready", middleware.ReadinessCheck(config.ServiceName, d.ready))
	router.GET("/metrics", middleware.MetricsEndpoint(d.metrics))

	apiV1 := router.Group("/api/v1")
	if d.contract != nil {
		apiV1.Use(openapi.RequestValidation(d.contract, d.logger.Logger))
	}
	if d.idempotencyStore != nil {
		idempotencyConfig := idempotency.DefaultConfig(config.ServiceName, d.idempotencyStore, d.logger.Logger)
		idempotencyConfig.RequireKey = d.requireKey
		idempotencyConfig.Metrics = idempotency.NewMetrics(d.metrics.Registry())
		apiV1.Use(idempotency.Middleware(idempotencyConfig))
	}

	handlers.NewDestuffingHandlers(d.service, d.logger).RegisterRoutes(apiV1)
	return router
}
