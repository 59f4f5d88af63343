package kafka

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// topicPool lazily opens one reader or writer per topic
type topicPool[T io.Closer] struct {
	mu   sync.Mutex
	open map[string]T
	dial func(topic string) T
}

func newTopicPool[T io.Closer](dial func(topic string) T) *topicPool[T] {
	return &topicPool[T]{open: make(map[string]T), dial: dial}
}

func (p *topicPool[T]) get(topic string) T {
	p.mu.Lock()
	defer p.mu.Unlock()
	conn, ok := p.open[topic]
	if !ok {
		conn = p.dial(topic)
		p.open[topic] = conn
	}
	return conn
}

// close closes every open member and joins their errors
func (p *topicPool[T]) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for topic, conn := range p.open {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", topic, err))
		}
		delete(p.open, topic)
	}
	return errors.Join(errs...)
}
