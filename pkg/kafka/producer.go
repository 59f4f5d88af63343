package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"

	"github.com/wms-platform/cfs-destuffing-service/pkg/cloudevents"
	"github.com/wms-platform/cfs-destuffing-service/pkg/metrics"
	"github.com/wms-platform/cfs-destuffing-service/pkg/tracing"
)

// messageWriter is the part of kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes CloudEvents with one synchronous writer per topic
type Producer struct {
	writers *topicPool[messageWriter]
	metrics *metrics.Metrics
}

func NewProducer(config *Config, m *metrics.Metrics) *Producer {
	return &Producer{
		metrics: m,
		writers: newTopicPool(func(topic string) messageWriter {
			return &kafka.Writer{
				Addr:         kafka.TCP(config.Brokers...),
				Topic:        topic,
				Balancer:     &kafka.Hash{},
				BatchSize:    config.BatchSize,
				BatchTimeout: config.BatchTimeout,
				RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
			}
		}),
	}
}

// PublishEvent writes event to topic. Events are keyed by subject so every event of one container lands on one partition.
func (p *Producer) PublishEvent(ctx context.Context, topic string, event *cloudevents.WMSCloudEvent) error {
	start := time.Now()
	msg, err := messageFor(ctx, event)
	if err != nil {
		return err
	}

	err = p.writers.get(topic).WriteMessages(ctx, msg)
	p.metrics.RecordKafkaPublish(topic, event.Type, err == nil, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
	}
	return nil
}

func messageFor(ctx context.Context, event *cloudevents.WMSCloudEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	headers := event.Headers()
	carrier := propagation.MapCarrier{}
	tracing.InjectHeaders(ctx, carrier)
	for k, v := range carrier {
		headers["ce-"+k] = v
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msg := kafka.Message{
		Key:   []byte(event.Subject),
		Value: data,
		Time:  event.Time,
	}
	for _, k := range keys {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(headers[k])})
	}
	return msg, nil
}

func (p *Producer) Close() error { return p.writers.close() }
