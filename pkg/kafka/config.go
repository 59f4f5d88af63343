package kafka

import "time"

// Config is shared by the outbox producer and the inspection consumer
type Config struct {
	Brokers       []string
	ConsumerGroup string

	BatchSize    int
	BatchTimeout time.Duration
	// RequiredAcks follows kafka-go: -1 waits for every in-sync replica
	RequiredAcks int

	MinBytes int
	MaxBytes int
	MaxWait  time.Duration

	// HandlerRetries bounds redelivery of one message before it is skipped
	HandlerRetries int
	RetryBackoff   time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		Brokers:        []string{"localhost:9092"},
		ConsumerGroup:  "cfs-destuffing-service",
		BatchSize:      100,
		BatchTimeout:   10 * time.Millisecond,
		RequiredAcks:   -1,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		MaxWait:        500 * time.Millisecond,
		HandlerRetries: 3,
		RetryBackoff:   500 * time.Millisecond,
	}
}

// Topics names the streams this service publishes to and consumes from
var Topics = struct {
	DestuffingEvents string
	InspectionEvents string
}{
	DestuffingEvents: "wms.destuffing.events",
	InspectionEvents: "wms.inspection.events",
}
