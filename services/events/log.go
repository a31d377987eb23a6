package eventsvc

import (
	"context"
	"sync"

	"github.com/eminingcampus/campus/core"
)

// LogPublisher logs the events instead of publishing them (no kafka brokers configured).
type LogPublisher struct {
	logger core.Logger
}

var _ core.EventPublisher = (*LogPublisher)(nil)

func NewLogPublisher(logger core.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, events ...core.Event) {
	for _, event := range events {
		p.logger.Debug("event "+event.Topic, map[string]interface{}{"key": event.Key})
	}
}

// MemoryPublisher keeps the published events (TEST).
type MemoryPublisher struct {
	mu     sync.Mutex
	events []core.Event
}

var _ core.EventPublisher = (*MemoryPublisher)(nil)

func (p *MemoryPublisher) Publish(_ context.Context, events ...core.Event) {
	p.mu.Lock()
	p.events = append(p.events, events...)
	p.mu.Unlock()
}

// Topics returns the topics of the published events, in order.
func (p *MemoryPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := make([]string, 0, len(p.events))
	for _, event := range p.events {
		topics = append(topics, event.Topic)
	}
	return topics
}

func (p *MemoryPublisher) Events() []core.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Event(nil), p.events...)
}
