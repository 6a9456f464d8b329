package eventbus

import (
	"sync"

	"go.uber.org/zap"
)

// Bus is a minimal in-process publish/subscribe fan-out keyed by topic.
// Handlers run synchronously on the publishing goroutine; a handler panic is
// isolated and logged so remaining handlers still run.
type Bus struct {
	logger *zap.Logger

	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]func(payload any)
}

// New constructs a Bus. A nil logger falls back to a no-op logger.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger:   logger,
		handlers: make(map[string]map[int]func(payload any)),
	}
}

// Subscribe registers a handler for the topic and returns a removal func.
func (b *Bus) Subscribe(topic string, handler func(payload any)) func() {
	if b == nil || handler == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int]func(payload any))
	}
	id := b.nextID
	b.nextID++
	b.handlers[topic][id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[topic], id)
	}
}

// Publish delivers the payload to every handler subscribed to the topic.
func (b *Bus) Publish(topic string, payload any) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := make([]func(payload any), 0, len(b.handlers[topic]))
	for _, h := range b.handlers[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.invoke(topic, handler, payload)
	}
}

func (b *Bus) invoke(topic string, handler func(payload any), payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic",
				zap.String("topic", topic),
				zap.Any("panic", r),
			)
		}
	}()
	handler(payload)
}
