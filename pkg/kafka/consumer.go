package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wms-platform/cfs-destuffing-service/pkg/cloudevents"
	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
	"github.com/wms-platform/cfs-destuffing-service/pkg/metrics"
)

// EventHandler processes one decoded event. A returned error triggers a
// redelivery attempt.
type EventHandler func(ctx context.Context, event *cloudevents.WMSCloudEvent) error

// messageReader is the part of kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads subscribed topics in one consumer group and commits each
// offset only after its event was handled or given up on.
type Consumer struct {
	config  *Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	readers *topicPool[messageReader]

	mu sync.Mutex
	// topic -> event type -> handler; "*" matches any type
	handlers map[string]map[string]EventHandler
}

func NewConsumer(config *Config, logger *logging.Logger, m *metrics.Metrics) *Consumer {
	return &Consumer{
		config:   config,
		logger:   logger.WithComponent("kafka-consumer"),
		metrics:  m,
		handlers: make(map[string]map[string]EventHandler),
		readers: newTopicPool(func(topic string) messageReader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers:  config.Brokers,
				GroupID:  config.ConsumerGroup,
				Topic:    topic,
				MinBytes: config.MinBytes,
				MaxBytes: config.MaxBytes,
				MaxWait:  config.MaxWait,
			})
		}),
	}
}

// Subscribe routes eventType on topic to handler. Subscriptions made after
// Start are not picked up.
func (c *Consumer) Subscribe(topic string, eventType string, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byType, ok := c.handlers[topic]
	if !ok {
		byType = make(map[string]EventHandler)
		c.handlers[topic] = byType
	}
	byType[eventType] = handler
}

// Start consumes every subscribed topic until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, topic := range topics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.consumeTopic(ctx, topic)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) consumeTopic(ctx context.Context, topic string) {
	reader := c.readers.get(topic)
	c.logger.Info("Starting consumer for topic", "topic", topic, "group", c.config.ConsumerGroup)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping consumer for topic", "topic", topic)
				return
			}
			c.logger.Error("Error fetching message", "topic", topic, "error", err)
			continue
		}

		if c.process(ctx, topic, msg) {
			if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.logger.Error("Error committing message", "topic", topic, "error", err)
			}
		}
	}
}

// process handles one message and reports whether its offset may be
// committed. Handler failures are retried with backoff, then skipped.
func (c *Consumer) process(ctx context.Context, topic string, msg kafka.Message) bool {
	event, err := parseMessage(msg)
	if err != nil {
		c.logger.Error("Dropping unparseable message", "topic", topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		c.metrics.RecordKafkaConsume(topic, "unknown", false)
		return true
	}

	c.logger.KafkaConsume(ctx, topic, event.Type, msg.Partition, msg.Offset)

	attempts := c.config.HandlerRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		err = c.handleEvent(ctx, topic, event)
		if err == nil {
			c.metrics.RecordKafkaConsume(topic, event.Type, true)
			return true
		}
		c.logger.Warn("Error handling event",
			"topic", topic,
			"eventType", event.Type,
			"eventId", event.ID,
			"attempt", attempt,
			"error", err,
		)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.config.RetryBackoff * time.Duration(attempt)):
		}
	}

	c.metrics.RecordKafkaConsume(topic, event.Type, false)
	c.logger.Error("Skipping event after retries", "topic", topic, "eventType", event.Type, "eventId", event.ID)
	return true
}

// parseMessage parses a Kafka message into a CloudEvent. Extension headers
// fill attributes missing from the body.
func parseMessage(msg kafka.Message) (*cloudevents.WMSCloudEvent, error) {
	var event cloudevents.WMSCloudEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	for _, header := range msg.Headers {
		value := string(header.Value)
		switch header.Key {
		case "ce-" + cloudevents.ExtCorrelationID:
			if event.CorrelationID == "" {
				event.CorrelationID = value
			}
		case "ce-" + cloudevents.ExtWorkflowID:
			if event.WorkflowID == "" {
				event.WorkflowID = value
			}
		case "ce-" + cloudevents.ExtPlanID:
			if event.PlanID == "" {
				event.PlanID = value
			}
		case "ce-" + cloudevents.ExtContainerID:
			if event.ContainerID == "" {
				event.ContainerID = value
			}
		}
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}

func (c *Consumer) handleEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	c.mu.Lock()
	handlers := c.handlers[topic]
	handler, exists := handlers[event.Type]
	if !exists {
		handler, exists = handlers["*"]
	}
	c.mu.Unlock()

	if !exists {
		c.logger.Debug("No handler found for event type", "topic", topic, "eventType", event.Type)
		return nil
	}

	if event.CorrelationID != "" {
		ctx = logging.ContextWithCorrelationID(ctx, event.CorrelationID)
	}
	return handler(ctx, event)
}

func (c *Consumer) Close() error { return c.readers.close() }
