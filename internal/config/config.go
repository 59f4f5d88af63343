// Package config loads the service configuration from an optional YAML file
// and environment variables. Environment variables win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wms-platform/cfs-destuffing-service/internal/infrastructure/clients"
	"github.com/wms-platform/cfs-destuffing-service/pkg/kafka"
	"github.com/wms-platform/cfs-destuffing-service/pkg/mongodb"
	platformtemporal "github.com/wms-platform/cfs-destuffing-service/pkg/temporal"
)

// ServiceName identifies the service in logs, metrics and traces
const ServiceName = "cfs-destuffing-service"

// EnvConfigFile names the optional YAML file read before the environment
const EnvConfigFile = "CONFIG_FILE"

// Config holds application configuration
type Config struct {
	ServerAddr  string `yaml:"serverAddr"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"logLevel"`

	CFSBackendURL string        `yaml:"cfsBackendUrl"`
	InspectionURL string        `yaml:"inspectionUrl"`
	CallTimeout   time.Duration `yaml:"callTimeout"`
	CacheTTL      time.Duration `yaml:"cacheTtl"`

	MongoDB  MongoConfig             `yaml:"mongodb"`
	Kafka    KafkaConfig             `yaml:"kafka"`
	Temporal platformtemporal.Config `yaml:"temporal"`
	Tracing  TracingConfig           `yaml:"tracing"`
	Features FeatureFlags            `yaml:"features"`
}

// MongoConfig holds the MongoDB connection settings
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// KafkaConfig holds the broker settings
type KafkaConfig struct {
	Brokers         []string `yaml:"brokers"`
	ConsumerGroup   string   `yaml:"consumerGroup"`
	InspectionTopic string   `yaml:"inspectionTopic"`
	DestuffingTopic string   `yaml:"destuffingTopic"`
}

// TracingConfig holds the OTLP exporter settings
type TracingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
}

// FeatureFlags toggle optional request checks
type FeatureFlags struct {
	OpenAPIValidation     bool `yaml:"openapiValidation"`
	RequireIdempotencyKey bool `yaml:"requireIdempotencyKey"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		ServerAddr:    ":8030",
		Environment:   "development",
		LogLevel:      "info",
		CFSBackendURL: "http://localhost:8031",
		InspectionURL: "http://localhost:8032",
		CallTimeout:   10 * time.Second,
		CacheTTL:      30 * time.Second,
		MongoDB: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "cfs_destuffing",
		},
		Kafka: KafkaConfig{
			Brokers:         []string{"localhost:9092"},
			ConsumerGroup:   ServiceName,
			InspectionTopic: kafka.Topics.InspectionEvents,
			DestuffingTopic: kafka.Topics.DestuffingEvents,
		},
		Temporal: *platformtemporal.DefaultConfig(),
		Tracing: TracingConfig{
			Enabled:      true,
			OTLPEndpoint: "localhost:4317",
		},
		Features: FeatureFlags{
			OpenAPIValidation: true,
		},
	}
}

// Load reads CONFIG_FILE when set, then applies environment overrides
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv(EnvConfigFile); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.ServerAddr = getEnv("SERVER_ADDR", c.ServerAddr)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.CFSBackendURL = getEnv("CFS_BACKEND_URL", c.CFSBackendURL)
	c.InspectionURL = getEnv("INSPECTION_SERVICE_URL", c.InspectionURL)

	c.MongoDB.URI = getEnv("MONGODB_URI", c.MongoDB.URI)
	c.MongoDB.Database = getEnv("MONGODB_DATABASE", c.MongoDB.Database)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.ConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", c.Kafka.ConsumerGroup)
	c.Kafka.InspectionTopic = getEnv("KAFKA_INSPECTION_TOPIC", c.Kafka.InspectionTopic)
	c.Kafka.DestuffingTopic = getEnv("KAFKA_DESTUFFING_TOPIC", c.Kafka.DestuffingTopic)

	c.Temporal.HostPort = getEnv("TEMPORAL_HOST", c.Temporal.HostPort)
	c.Temporal.Namespace = getEnv("TEMPORAL_NAMESPACE", c.Temporal.Namespace)
	c.Temporal.TaskQueue = getEnv("TEMPORAL_TASK_QUEUE", c.Temporal.TaskQueue)

	c.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.OTLPEndpoint)

	var err error
	if c.CallTimeout, err = getDuration("CALL_TIMEOUT", c.CallTimeout); err != nil {
		return err
	}
	if c.CacheTTL, err = getDuration("CACHE_TTL", c.CacheTTL); err != nil {
		return err
	}
	if c.Tracing.Enabled, err = getBool("TRACING_ENABLED", c.Tracing.Enabled); err != nil {
		return err
	}
	if c.Features.OpenAPIValidation, err = getBool("OPENAPI_VALIDATION", c.Features.OpenAPIValidation); err != nil {
		return err
	}
	if c.Features.RequireIdempotencyKey, err = getBool("REQUIRE_IDEMPOTENCY_KEY", c.Features.RequireIdempotencyKey); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	switch {
	case c.CFSBackendURL == "":
		return fmt.Errorf("cfs backend url is required")
	case c.InspectionURL == "":
		return fmt.Errorf("inspection service url is required")
	case c.CallTimeout <= 0:
		return fmt.Errorf("call timeout must be positive, got %s", c.CallTimeout)
	case c.CacheTTL < 0:
		return fmt.Errorf("cache ttl must not be negative, got %s", c.CacheTTL)
	case len(c.Kafka.Brokers) == 0:
		return fmt.Errorf("at least one kafka broker is required")
	}
	return nil
}

// MongoDBConfig returns the connection settings for pkg/mongodb
func (c *Config) MongoDBConfig() *mongodb.Config {
	cfg := mongodb.DefaultConfig()
	cfg.URI = c.MongoDB.URI
	cfg.Database = c.MongoDB.Database
	return cfg
}

// KafkaConfig returns the broker settings for pkg/kafka
func (c *Config) KafkaConfig() *kafka.Config {
	cfg := kafka.DefaultConfig()
	cfg.Brokers = c.Kafka.Brokers
	cfg.ConsumerGroup = c.Kafka.ConsumerGroup
	return cfg
}

// CFSClientConfig returns the CFS backend client settings
func (c *Config) CFSClientConfig() clients.Config {
	return clients.Config{BaseURL: c.CFSBackendURL, Timeout: c.CallTimeout}
}

// InspectionClientConfig returns the inspection service client settings
func (c *Config) InspectionClientConfig() clients.Config {
	return clients.Config{BaseURL: c.InspectionURL, Timeout: c.CallTimeout}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
