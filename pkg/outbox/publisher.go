package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wms-platform/cfs-destuffing-service/pkg/logging"
	"github.com/wms-platform/cfs-destuffing-service/pkg/metrics"
)

var (
	errAlreadyRunning = errors.New("outbox publisher already running")
	errNotRunning     = errors.New("outbox publisher not running")
)

// PublisherConfig controls how often the outbox is polled
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultPublisherConfig polls every second, 100 events at a time
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{PollInterval: time.Second, BatchSize: 100}
}

// PublisherStats counts relay outcomes since the publisher was created
type PublisherStats struct {
	Published int64
	Failed    int64
}

// Publisher polls the outbox and relays destuffing events to Kafka. An event
// that fails is retried on a later poll until it reaches MaxRetries.
type Publisher struct {
	repo     Repository
	producer EventPublisher
	logger   *logging.Logger
	metrics  *metrics.Metrics
	config   PublisherConfig

	published atomic.Int64
	failed    atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPublisher builds a publisher. m may be nil.
func NewPublisher(repo Repository, producer EventPublisher, logger *logging.Logger, m *metrics.Metrics, config *PublisherConfig) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}
	return &Publisher{
		repo:     repo,
		producer: producer,
		logger:   logger.WithComponent("outbox-publisher"),
		metrics:  m,
		config:   *config,
	}
}

// Start begins polling in the background until Stop is called or ctx ends
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return errAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.poll(runCtx, p.done)

	p.logger.Info("Starting outbox publisher", "interval", p.config.PollInterval, "batchSize", p.config.BatchSize)
	return nil
}

// Stop cancels polling and waits for the batch in progress
func (p *Publisher) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return errNotRunning
	}

	cancel()
	<-done

	stats := p.Stats()
	p.logger.Info("Outbox publisher stopped", "published", stats.Published, "failed", stats.Failed)
	return nil
}

// IsRunning reports whether Start was called without a matching Stop
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Stats returns the relay counters
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{Published: p.published.Load(), Failed: p.failed.Load()}
}

func (p *Publisher) poll(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch relays one batch and returns how many events reached Kafka
func (p *Publisher) ProcessBatch(ctx context.Context) int {
	events, err := p.repo.FindUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.WithError(err).Error("Failed to find unpublished events")
		return 0
	}
	p.metrics.SetOutboxPending(len(events))

	relayed := 0
	for _, event := range events {
		if err := p.relay(ctx, event); err != nil {
			p.fail(ctx, event, err)
			continue
		}
		relayed++
		p.published.Add(1)
		p.metrics.RecordOutboxPublish(event.EventType, true)
		if err := p.repo.MarkPublished(ctx, event.ID); err != nil {
			p.logger.WithError(err).Error("Failed to mark event as published", "eventId", event.ID)
		}
	}
	return relayed
}

func (p *Publisher) relay(ctx context.Context, event *OutboxEvent) error {
	ce, err := event.ToCloudEvent()
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := p.producer.PublishEvent(ctx, event.Topic, ce); err != nil {
		return err
	}
	p.logger.Debug("Relayed outbox event",
		"eventId", event.ID,
		"eventType", event.EventType,
		"topic", event.Topic,
		"aggregateId", event.AggregateID,
	)
	return nil
}

func (p *Publisher) fail(ctx context.Context, event *OutboxEvent, err error) {
	p.failed.Add(1)
	p.metrics.RecordOutboxPublish(event.EventType, false)
	p.logger.WithError(err).Error("Failed to relay outbox event",
		"eventId", event.ID,
		"eventType", event.EventType,
		"aggregateId", event.AggregateID,
		"attempt", event.RetryCount+1,
	)

	if err := p.repo.IncrementRetry(ctx, event.ID, err.Error()); err != nil {
		p.logger.WithError(err).Error("Failed to increment retry count", "eventId", event.ID)
		return
	}
	p.metrics.RecordOutboxRetry(event.EventType)
}
