// Package eventbus carries generation events from the orchestrator to the
// journal, metrics and chat listeners.
package eventbus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an in-process pub/sub bus. A nil *Bus drops every event, so
// components built without one need no checks.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]subscription
	nextID uint64
	logger *slog.Logger
}

// New creates a bus that reports handler panics to slog.Default.
func New() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// NewWithLogger creates a bus that reports handler panics to logger.
func NewWithLogger(logger *slog.Logger) *Bus {
	b := New()
	b.logger = logger
	return b
}

// Subscribe registers handler for topic and returns a func that removes it.
func (b *Bus) Subscribe(topic Topic, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to the topic's handlers synchronously, in
// subscription order. A panicking handler is logged and skipped; it never
// reaches the publisher.
func (b *Bus) Publish(topic Topic, payload any) {
	event, handlers := b.snapshot(topic, payload)
	for _, h := range handlers {
		b.deliver(h, event)
	}
}

// PublishAsync delivers an event to each handler on its own goroutine.
func (b *Bus) PublishAsync(topic Topic, payload any) {
	event, handlers := b.snapshot(topic, payload)
	for _, h := range handlers {
		go b.deliver(h, event)
	}
}

func (b *Bus) deliver(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log().Error("event handler panicked",
				"topic", event.Topic, "panic", fmt.Sprint(r))
		}
	}()
	h(event)
}

func (b *Bus) log() *slog.Logger {
	if b.logger != nil {
		return b.logger
	}
	return slog.Default()
}

func (b *Bus) snapshot(topic Topic, payload any) (Event, []Handler) {
	event := Event{Topic: topic, Payload: payload, Timestamp: time.Now()}
	if b == nil {
		return event, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.subs[topic]
	handlers := make([]Handler, len(subs))
	for i, s := range subs {
		handlers[i] = s.handler
	}
	return event, handlers
}
